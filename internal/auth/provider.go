// Package auth implements request authentication (JWT/JWKS against one
// or more configured providers) and dispatches the pre/post-execution
// modifier hooks (`@authenticated`, `@requiresScopes`, `@authorized`)
// into extensions.
package auth

import (
	"net/http"
	"strings"
	"time"
)

// ProviderConfig describes one JWT-issuing identity provider, as
// carried by `authentication.providers[]` in the gateway's TOML config.
type ProviderConfig struct {
	Name         string
	HeaderName   string
	ValuePrefix  string
	JWKSURL      string
	PollInterval time.Duration
	Issuer       string
	Audience     string
}

func (p ProviderConfig) headerName() string {
	if p.HeaderName == "" {
		return "Authorization"
	}
	return p.HeaderName
}

func (p ProviderConfig) valuePrefix() string {
	if p.ValuePrefix == "" {
		return "Bearer "
	}
	return p.ValuePrefix
}

// extractToken pulls the bearer token for this provider out of the
// request headers, returning ok=false when the header is absent or
// doesn't carry this provider's prefix (meaning: try the next provider).
func (p ProviderConfig) extractToken(headers http.Header) (string, bool) {
	raw := headers.Get(p.headerName())
	if raw == "" {
		return "", false
	}
	prefix := p.valuePrefix()
	if prefix != "" {
		if !strings.HasPrefix(raw, prefix) {
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(raw, prefix)), true
	}
	return strings.TrimSpace(raw), true
}

// Status is the outcome of Authenticate.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
	StatusRefused
)

// AccessToken is a verified identity carried forward into operation
// preparation for `@authenticated`/`@requiresScopes` evaluation.
type AccessToken struct {
	Provider string
	Claims   map[string]interface{}
	Raw      string
}

// Scopes reads the conventional space-delimited "scope" claim, falling
// back to a "scopes" array claim some providers issue instead.
func (t *AccessToken) Scopes() []string {
	if t == nil {
		return nil
	}
	if s, ok := t.Claims["scope"].(string); ok && s != "" {
		return strings.Fields(s)
	}
	if raw, ok := t.Claims["scopes"].([]interface{}); ok {
		scopes := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}

// HasScope reports whether the token's scope claim contains want.
func (t *AccessToken) HasScope(want string) bool {
	for _, s := range t.Scopes() {
		if s == want {
			return true
		}
	}
	return false
}

// Result is the verdict returned by Authenticate.
type Result struct {
	Status Status
	Token  *AccessToken
	Err    error
}
