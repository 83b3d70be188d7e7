package main

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/config"
	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ratelimit"
)

func TestBuildRateLimiter_DefaultsToMemory(t *testing.T) {
	limiter, err := buildRateLimiter(config.RateLimit{})
	if err != nil {
		t.Fatalf("buildRateLimiter: %v", err)
	}
	if _, ok := limiter.(*ratelimit.MemoryLimiter); !ok {
		t.Fatalf("expected a *ratelimit.MemoryLimiter, got %T", limiter)
	}
}

func TestBuildRateLimiter_RejectsUnknownStorage(t *testing.T) {
	if _, err := buildRateLimiter(config.RateLimit{Storage: "filesystem"}); err == nil {
		t.Fatalf("expected an error for an unknown storage backend")
	}
}

func TestBuildDocumentSource_DefaultsToTrustedPrecedence(t *testing.T) {
	cfg := &config.Config{}
	ds, err := buildDocumentSource(cfg)
	if err != nil {
		t.Fatalf("buildDocumentSource: %v", err)
	}
	if ds.Precedence != operation.PrecedenceTrusted {
		t.Fatalf("expected PrecedenceTrusted by default, got %v", ds.Precedence)
	}
}

func TestBuildDocumentSource_HonorsConfiguredAPQPrecedence(t *testing.T) {
	cfg := &config.Config{}
	cfg.OperationPrep.DocumentKeyPrecedence = "apq"
	ds, err := buildDocumentSource(cfg)
	if err != nil {
		t.Fatalf("buildDocumentSource: %v", err)
	}
	if ds.Precedence != operation.PrecedenceAPQ {
		t.Fatalf("expected PrecedenceAPQ, got %v", ds.Precedence)
	}
}

func TestBuildDocumentSource_ErrorsOnUnreadableManifest(t *testing.T) {
	cfg := &config.Config{}
	cfg.TrustedDocuments.Enabled = true
	cfg.TrustedDocuments.ManifestPath = "/nonexistent/manifest.json"
	if _, err := buildDocumentSource(cfg); err == nil {
		t.Fatalf("expected an error for a missing manifest file")
	}
}

func TestBuildSuperGraph_ErrorsWithNoSubgraphsConfigured(t *testing.T) {
	if _, err := buildSuperGraph(&config.Config{}); err == nil {
		t.Fatalf("expected an error when no subgraphs are configured")
	}
}
