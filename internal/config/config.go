// Package config loads the gateway's TOML configuration surface
// (spec.md §6) and expands `{{ env.NAME }}` placeholders against the
// process environment before the typed tree is handed to the rest of
// the gateway, generalizing the teacher's `loadGatewaySetting` in
// `server/gateway.go` from a flat YAML `GatewayOption` struct to a
// nested TOML tree with per-concern sections.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root of the gateway's TOML configuration file.
type Config struct {
	Gateway          Gateway              `toml:"gateway"`
	EntityCaching    EntityCaching        `toml:"entity_caching"`
	OperationCaching OperationCaching     `toml:"operation_caching"`
	OperationPrep    OperationPreparation `toml:"operation_preparation"`
	TLS              TLS                  `toml:"tls"`
	Telemetry        Telemetry            `toml:"telemetry"`
	Subgraphs        map[string]Subgraph  `toml:"subgraphs"`
	Authentication   Authentication       `toml:"authentication"`
	TrustedDocuments TrustedDocuments     `toml:"trusted_documents"`
	CORS             CORS                 `toml:"cors"`
}

// Gateway holds the top-level request-handling knobs.
type Gateway struct {
	Timeout   string    `toml:"timeout"`
	RateLimit RateLimit `toml:"rate_limit"`
	Port      int       `toml:"port"`
	ServiceName string  `toml:"service_name"`
}

type RateLimit struct {
	Global  int    `toml:"global"`
	Window  string `toml:"window"`
	Storage string `toml:"storage"` // "memory" or "redis"
	Redis   Redis  `toml:"redis"`
}

type Redis struct {
	URL       string `toml:"url"`
	KeyPrefix string `toml:"key_prefix"`
	TLS       struct {
		Enable bool `toml:"enable"`
	} `toml:"tls"`
}

type EntityCaching struct {
	Storage string `toml:"storage"` // "memory" or "redis"
	Redis   Redis  `toml:"redis"`
}

type OperationCaching struct {
	Enabled bool  `toml:"enabled"`
	Limit   int   `toml:"limit"`
	Redis   Redis `toml:"redis"`
}

// OperationPreparation resolves the document-key-precedence Open
// Question (SPEC_FULL.md §9): whether a request carrying both a
// trusted document id and an APQ hash is resolved against the trusted
// store first or the APQ cache first.
type OperationPreparation struct {
	DocumentKeyPrecedence string `toml:"document_key_precedence"` // "trusted" or "apq"
	MaxDepth              int    `toml:"max_depth"`
	MaxHeight             int    `toml:"max_height"`
	MaxAliases            int    `toml:"max_aliases"`
	MaxComplexity         int    `toml:"max_complexity"`
	MaxRootFields         int    `toml:"max_root_fields"`
}

type TLS struct {
	Certificate string `toml:"certificate"`
	Key         string `toml:"key"`
}

type Telemetry struct {
	ServiceName string  `toml:"service_name"`
	Tracing     Tracing `toml:"tracing"`
}

type Tracing struct {
	Enable      bool    `toml:"enable"`
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Subgraph describes one federated subgraph and how the executor talks
// to it, mirroring the teacher's `gateway.GatewayService` entry but
// carrying the retry and rate-limit policy inline instead of globally.
type Subgraph struct {
	URL              string            `toml:"url"`
	Headers          map[string]string `toml:"headers"`
	RemoveHeaders    []string          `toml:"remove_headers"`
	ForwardHeaders   []string          `toml:"forward_headers"`
	RateLimit        int               `toml:"rate_limit"`
	RetryMaxAttempts int               `toml:"retry_max_attempts"`
	RetryRate        float64           `toml:"retry_rate"`
	RetryBurst       int               `toml:"retry_burst"`
	Timeout          string            `toml:"timeout"`
	IntrospectionURL string            `toml:"introspection_url"`
	SchemaPath       string            `toml:"schema_path"`
}

// Authentication lists the JWT-issuing providers checked, in order,
// by internal/auth.Authenticator.
type Authentication struct {
	Providers []Provider `toml:"providers"`
}

type Provider struct {
	Name         string `toml:"name"`
	HeaderName   string `toml:"header_name"`
	ValuePrefix  string `toml:"value_prefix"`
	Issuer       string `toml:"issuer"`
	Audience     string `toml:"audience"`
	JWKSURL      string `toml:"jwks_url"`
	PollInterval string `toml:"jwks_poll_interval"`
}

type TrustedDocuments struct {
	Enabled      bool   `toml:"enabled"`
	BypassHeader string `toml:"bypass_header"`
	ManifestPath string `toml:"manifest_path"`
}

type CORS struct {
	AllowedOrigins   []string `toml:"allowed_origins"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
}

// Load reads and decodes the TOML file at path, interpolating
// `{{ env.NAME }}` placeholders against the process environment first.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	interpolated := interpolateEnv(string(raw))

	var cfg Config
	if _, err := toml.Decode(interpolated, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return &cfg, nil
}

// Duration parses a Go duration string, falling back to def when s is
// empty so zero-value config sections don't need every field set.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
