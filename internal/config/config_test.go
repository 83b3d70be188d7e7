package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_InterpolatesEnvAndDecodesSections(t *testing.T) {
	t.Setenv("GATEWAY_TEST_REDIS_URL", "redis://cache.internal:6379")

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	contents := `
[gateway]
timeout = "30s"
port = 4000

[gateway.rate_limit]
global = 100
window = "1s"
storage = "redis"

[gateway.rate_limit.redis]
url = "{{ env.GATEWAY_TEST_REDIS_URL }}"
key_prefix = "gw"

[operation_preparation]
document_key_precedence = "trusted"

[subgraphs.accounts]
url = "http://accounts.internal/graphql"
retry_max_attempts = 3
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.RateLimit.Redis.URL != "redis://cache.internal:6379" {
		t.Fatalf("expected interpolated redis url, got %q", cfg.Gateway.RateLimit.Redis.URL)
	}
	if cfg.OperationPrep.DocumentKeyPrecedence != "trusted" {
		t.Fatalf("expected document_key_precedence trusted, got %q", cfg.OperationPrep.DocumentKeyPrecedence)
	}
	sub, ok := cfg.Subgraphs["accounts"]
	if !ok {
		t.Fatalf("expected subgraphs.accounts to be present")
	}
	if sub.RetryMaxAttempts != 3 {
		t.Fatalf("expected retry_max_attempts 3, got %d", sub.RetryMaxAttempts)
	}
}

func TestInterpolateEnv_MissingVariableBecomesEmptyString(t *testing.T) {
	os.Unsetenv("GATEWAY_TEST_UNSET_VAR")
	got := interpolateEnv(`url = "{{ env.GATEWAY_TEST_UNSET_VAR }}"`)
	if got != `url = ""` {
		t.Fatalf("expected empty substitution, got %q", got)
	}
}

func TestDuration_FallsBackOnEmptyOrInvalid(t *testing.T) {
	if got := Duration("", 5); got != 5 {
		t.Fatalf("expected fallback for empty string, got %v", got)
	}
	if got := Duration("not-a-duration", 7); got != 7 {
		t.Fatalf("expected fallback for invalid string, got %v", got)
	}
}
