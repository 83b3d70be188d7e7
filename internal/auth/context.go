package auth

import "context"

type accessTokenContextKey struct{}

// WithAccessToken attaches the authenticated token (nil for anonymous
// requests) to ctx, mirroring the teacher's SetRequestHeaderToContext
// pattern for passing per-request state down into the executor.
func WithAccessToken(ctx context.Context, token *AccessToken) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// AccessTokenFromContext returns the token attached by WithAccessToken,
// or nil if the request was anonymous or never ran through Authenticate.
func AccessTokenFromContext(ctx context.Context) *AccessToken {
	token, _ := ctx.Value(accessTokenContextKey{}).(*AccessToken)
	return token
}
