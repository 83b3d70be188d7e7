package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/config"
	"github.com/n9te9/go-graphql-federation-gateway/internal/entitycache"
	"github.com/n9te9/go-graphql-federation-gateway/internal/executor"
	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ingress"
	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ratelimit"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
	"github.com/n9te9/go-graphql-federation-gateway/internal/subgraph"
	"github.com/n9te9/go-graphql-federation-gateway/internal/trusteddocs"
)

// gatewayVersion is reported by `gateway version` and tags the traces
// InitTracer's resource carries.
const gatewayVersion = "v0.1.0"

// app holds every long-lived component newApp wires together, handed
// to serveCmd's Run. `gateway validate` does not build an app; it calls
// buildSuperGraph directly.
type app struct {
	cfg        *config.Config
	superGraph *schema.SuperGraph
	router     http.Handler
}

// buildSuperGraph loads every configured subgraph's SDL from disk and
// composes them, mirroring gateway.NewGateway's `os.ReadFile` +
// `graph.NewSubGraphV2` loop generalized to the TOML `[subgraphs.*]`
// table.
func buildSuperGraph(cfg *config.Config) (*schema.SuperGraph, error) {
	if len(cfg.Subgraphs) == 0 {
		return nil, fmt.Errorf("bootstrap: no subgraphs configured")
	}

	var subGraphs []*schema.SubGraph
	for name, s := range cfg.Subgraphs {
		if s.SchemaPath == "" {
			return nil, fmt.Errorf("bootstrap: subgraph %q has no schema_path configured", name)
		}
		sdl, err := os.ReadFile(s.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: reading schema for subgraph %q: %w", name, err)
		}
		sg, err := schema.NewSubGraph(name, sdl, s.URL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: parsing schema for subgraph %q: %w", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	return schema.Compose(subGraphs)
}

func buildAuthenticator(cfg *config.Config, httpClient *http.Client) *auth.Authenticator {
	if len(cfg.Authentication.Providers) == 0 {
		return nil
	}
	providers := make([]auth.ProviderConfig, 0, len(cfg.Authentication.Providers))
	for _, p := range cfg.Authentication.Providers {
		providers = append(providers, auth.ProviderConfig{
			Name:         p.Name,
			HeaderName:   p.HeaderName,
			ValuePrefix:  p.ValuePrefix,
			JWKSURL:      p.JWKSURL,
			PollInterval: config.Duration(p.PollInterval, 5*time.Minute),
			Issuer:       p.Issuer,
			Audience:     p.Audience,
		})
	}
	return auth.NewAuthenticator(providers, httpClient, 256)
}

func buildRateLimiter(r config.RateLimit) (ratelimit.Limiter, error) {
	switch r.Storage {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: r.Redis.URL})
		return ratelimit.NewRedisLimiter(client, r.Redis.KeyPrefix), nil
	case "", "memory":
		return ratelimit.NewMemoryLimiter(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown rate_limit.storage %q", r.Storage)
	}
}

func buildEntityCache(c config.EntityCaching) (*entitycache.Cache, error) {
	switch c.Storage {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.Redis.URL})
		return entitycache.New(entitycache.NewRedisStore(client, c.Redis.KeyPrefix)), nil
	case "", "memory":
		return entitycache.New(entitycache.NewMemoryStore()), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown entity_caching.storage %q", c.Storage)
	}
}

func buildOperationCache(c config.OperationCaching) *operation.Cache {
	if !c.Enabled {
		return operation.NewCache(0)
	}
	return operation.NewCache(c.Limit)
}

func buildDocumentSource(cfg *config.Config) (*operation.DocumentSource, error) {
	precedence := operation.PrecedenceTrusted
	if cfg.OperationPrep.DocumentKeyPrecedence == string(operation.PrecedenceAPQ) {
		precedence = operation.PrecedenceAPQ
	}

	var store *trusteddocs.Store
	if cfg.TrustedDocuments.Enabled && cfg.TrustedDocuments.ManifestPath != "" {
		s, err := trusteddocs.Load(cfg.TrustedDocuments.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: loading trusted document manifest: %w", err)
		}
		store = s
	}

	return &operation.DocumentSource{
		TrustedDocumentsEnabled: cfg.TrustedDocuments.Enabled,
		TrustedDocuments:        store,
		APQEnabled:              true,
		APQCache:                operation.NewAPQCache(1000),
		Precedence:              precedence,
	}, nil
}

// buildHeaderRules derives each subgraph's §8 header rule from its
// TOML table: `headers` inserts, `remove_headers` strips, and
// `forward_headers` is the authoritative, always-winning selection
// from the inbound client request.
func buildHeaderRules(cfg *config.Config) map[string]subgraph.HeaderRule {
	rules := make(map[string]subgraph.HeaderRule, len(cfg.Subgraphs))
	for name, s := range cfg.Subgraphs {
		rules[name] = subgraph.HeaderRule{
			Insert:  s.Headers,
			Remove:  s.RemoveHeaders,
			Forward: s.ForwardHeaders,
		}
	}
	return rules
}

func buildLimits(o config.OperationPreparation) operation.Limits {
	return operation.Limits{
		MaxDepth:      o.MaxDepth,
		MaxHeight:     o.MaxHeight,
		MaxAliases:    o.MaxAliases,
		MaxComplexity: o.MaxComplexity,
		MaxRootFields: o.MaxRootFields,
	}
}

// newApp wires every gateway component together from a loaded config,
// building the HTTP router `serveCmd` hangs off an *http.Server.
func newApp(cfg *config.Config) (*app, error) {
	superGraph, err := buildSuperGraph(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.Duration(cfg.Gateway.Timeout, 30*time.Second)}

	authenticator := buildAuthenticator(cfg, httpClient)

	rateLimiter, err := buildRateLimiter(cfg.Gateway.RateLimit)
	if err != nil {
		return nil, err
	}

	entityCache, err := buildEntityCache(cfg.EntityCaching)
	if err != nil {
		return nil, err
	}

	hooks := extension.Registry{}
	headerRules := buildHeaderRules(cfg)

	documentSource, err := buildDocumentSource(cfg)
	if err != nil {
		return nil, err
	}

	p := planner.New(superGraph)
	schemaID := fmt.Sprintf("%x", schema.Fingerprint(superGraph.SubGraphs))
	preparer := operation.NewPreparer(superGraph, schemaID, p, documentSource, buildLimits(cfg.OperationPrep), buildOperationCache(cfg.OperationCaching))

	retry := executor.RetryPolicy{}
	exec := executor.New(httpClient, superGraph, retry).
		WithEntityCache(entityCache, 10*time.Second).
		WithHooks(hooks).
		WithHeaderRules(headerRules)

	resolver := subgraph.NewResolver(httpClient, hooks)

	graphqlHandler := &ingress.Handler{
		Authenticator:   authenticator,
		Preparer:        preparer,
		Executor:        exec,
		SuperGraph:      superGraph,
		RateLimiter:     rateLimiter,
		GlobalRateLimit: cfg.Gateway.RateLimit.Global,
		RateLimitWindow: config.Duration(cfg.Gateway.RateLimit.Window, time.Second),
		Hooks:           hooks,
	}

	subExecutor := &ingress.SubscriptionExecutor{Preparer: preparer, Resolver: resolver, HeaderRules: headerRules}
	wsHandler := &ingress.WSHandler{
		Authenticator:       authenticator,
		ExecuteSubscription: subExecutor.Execute,
		InitTimeout:         3 * time.Second,
	}

	router := ingress.NewRouter(ingress.Config{
		GraphQL: graphqlHandler,
		WebSocket: wsHandler,
		CORS: ingress.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		EnableTracing: cfg.Telemetry.Tracing.Enable,
		ServiceName:   cfg.Telemetry.ServiceName,
	})

	return &app{cfg: cfg, superGraph: superGraph, router: router}, nil
}
