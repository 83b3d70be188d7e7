package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// supportedAlgorithms are the signature algorithms §4.I names as valid;
// jwt.WithValidMethods rejects anything outside this list before the
// key lookup even runs, closing off the classic "alg: none" attack.
var supportedAlgorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256",
	"EdDSA",
}

// Authenticator validates bearer tokens against one or more configured
// providers, trying each in declared order until one claims the token.
type Authenticator struct {
	providers []ProviderConfig
	jwks      *jwksCache
}

// NewAuthenticator builds an Authenticator. jwksCacheSize bounds the
// number of distinct JWKS URLs cached at once (0 selects a default).
func NewAuthenticator(providers []ProviderConfig, httpClient *http.Client, jwksCacheSize int) *Authenticator {
	return &Authenticator{
		providers: providers,
		jwks:      newJWKSCache(httpClient, jwksCacheSize),
	}
}

// Authenticate implements the §4.I entry point: `authenticate(headers)
// -> AccessToken | Anonymous | Refused`. Providers are tried in
// declared order; the first whose header is present decides the
// outcome — a malformed or invalid token under a matched header is a
// definitive Refused, not a fallthrough to the next provider.
func (a *Authenticator) Authenticate(ctx context.Context, headers http.Header) Result {
	for _, provider := range a.providers {
		raw, ok := provider.extractToken(headers)
		if !ok {
			continue
		}

		claims, err := a.verify(ctx, provider, raw)
		if err != nil {
			return Result{Status: StatusRefused, Err: fmt.Errorf("auth: provider %q: %w", provider.Name, err)}
		}

		return Result{
			Status: StatusAuthenticated,
			Token: &AccessToken{
				Provider: provider.Name,
				Claims:   claims,
				Raw:      raw,
			},
		}
	}

	return Result{Status: StatusAnonymous}
}

func (a *Authenticator) verify(ctx context.Context, provider ProviderConfig, raw string) (map[string]interface{}, error) {
	set, err := a.jwks.get(ctx, provider.JWKSURL, provider.PollInterval)
	if err != nil {
		return nil, err
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)

		var key jwk.Key
		if kid != "" {
			k, ok := set.LookupKeyID(kid)
			if !ok {
				return nil, fmt.Errorf("no JWK with kid %q", kid)
			}
			key = k
		} else if set.Len() == 1 {
			key, _ = set.Key(0)
		} else {
			return nil, fmt.Errorf("token has no kid and JWKS has %d keys", set.Len())
		}

		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("materialize JWK: %w", err)
		}
		return raw, nil
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(supportedAlgorithms)}
	if provider.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(provider.Issuer))
	}
	if provider.Audience != "" {
		opts = append(opts, jwt.WithAudience(provider.Audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token failed validation")
	}

	return map[string]interface{}(claims), nil
}
