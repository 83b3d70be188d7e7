package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
)

func noHooks() extension.Registry {
	return extension.Registry{}
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()

	pub, err := jwk.FromRaw(key.PublicKey)
	if err != nil {
		t.Fatalf("jwk.FromRaw: %v", err)
	}
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		t.Fatalf("set alg: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("AddKey: %v", err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestAuthenticator_Authenticate_ValidRS256Token(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	server := newJWKSServer(t, key, "kid-1")
	defer server.Close()

	provider := auth.ProviderConfig{
		Name:         "primary",
		JWKSURL:      server.URL,
		PollInterval: time.Minute,
		Issuer:       "https://issuer.example",
		Audience:     "gateway",
	}
	authenticator := auth.NewAuthenticator([]auth.ProviderConfig{provider}, server.Client(), 0)

	token := signToken(t, key, "kid-1", jwt.MapClaims{
		"iss":   "https://issuer.example",
		"aud":   "gateway",
		"sub":   "user-1",
		"scope": "read:products write:products",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	result := authenticator.Authenticate(context.Background(), headers)
	if result.Status != auth.StatusAuthenticated {
		t.Fatalf("expected StatusAuthenticated, got %v (err=%v)", result.Status, result.Err)
	}
	if !result.Token.HasScope("write:products") {
		t.Fatalf("expected token to carry write:products scope, got %v", result.Token.Scopes())
	}
}

func TestAuthenticator_Authenticate_NoMatchingHeaderIsAnonymous(t *testing.T) {
	provider := auth.ProviderConfig{Name: "primary", JWKSURL: "http://unused.invalid", PollInterval: time.Minute}
	authenticator := auth.NewAuthenticator([]auth.ProviderConfig{provider}, http.DefaultClient, 0)

	result := authenticator.Authenticate(context.Background(), http.Header{})
	if result.Status != auth.StatusAnonymous {
		t.Fatalf("expected StatusAnonymous, got %v", result.Status)
	}
}

func TestAuthenticator_Authenticate_WrongSigningKeyIsRefused(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	server := newJWKSServer(t, key, "kid-1")
	defer server.Close()

	provider := auth.ProviderConfig{Name: "primary", JWKSURL: server.URL, PollInterval: time.Minute}
	authenticator := auth.NewAuthenticator([]auth.ProviderConfig{provider}, server.Client(), 0)

	token := signToken(t, otherKey, "kid-1", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	result := authenticator.Authenticate(context.Background(), headers)
	if result.Status != auth.StatusRefused {
		t.Fatalf("expected StatusRefused for a token signed by the wrong key, got %v", result.Status)
	}
}

func TestAuthorizePreExecution_MissingScopeIsUnauthorized(t *testing.T) {
	token := &auth.AccessToken{Claims: map[string]interface{}{"scope": "read:products"}}

	err := auth.AuthorizeEdgePreExecution(context.Background(), noHooks(), "GetProduct", token, auth.Directive{
		RequiredScopes: []string{"write:products"},
	})
	if err == nil || err.Code != auth.CodeUnauthorized {
		t.Fatalf("expected CodeUnauthorized, got %+v", err)
	}
}

func TestAuthorizePreExecution_AnonymousAgainstAuthenticatedDirectiveIsUnauthenticated(t *testing.T) {
	err := auth.AuthorizeEdgePreExecution(context.Background(), noHooks(), "Me", nil, auth.Directive{Authenticated: true})
	if err == nil || err.Code != auth.CodeUnauthenticated {
		t.Fatalf("expected CodeUnauthenticated, got %+v", err)
	}
}
