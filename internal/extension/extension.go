// Package extension defines the in-process hook contract gateway
// components call into. Out-of-process or sandboxed (WASM) extension
// execution is out of scope; every implementation here runs in the
// gateway's own process and address space.
package extension

import (
	"context"
	"net/http"
)

// AuthorizationHook authorizes an incoming operation after it has been
// parsed and bound, and may authorize individual response values after
// execution (post-execution field-level authorization).
type AuthorizationHook interface {
	// Authorize runs before planning. Returning an error rejects the
	// whole operation.
	Authorize(ctx context.Context, claims map[string]interface{}, operationName string) error
}

// SubgraphRequestHook mutates outgoing headers for one subgraph fetch,
// after header rules have already been applied.
type SubgraphRequestHook interface {
	OnSubgraphRequest(ctx context.Context, subgraphName string, headers http.Header)
}

// SubgraphResponseHook observes the outcome of one subgraph fetch for
// telemetry purposes (duration, byte count, cache status).
type SubgraphResponseHook interface {
	OnSubgraphResponse(ctx context.Context, subgraphName string, status SubgraphResponseStatus)
}

// SubgraphResponseStatus summarizes one subgraph round trip.
type SubgraphResponseStatus struct {
	Success     bool
	Bytes       int
	DurationMS  int64
	CacheStatus string // "hit", "miss", "bypass"
}

// ModifierHook evaluates post-execution authorization over a batch of
// response values sharing an object shape, returning the ids (by
// caller-defined index) that must be nulled or made inaccessible.
type ModifierHook interface {
	EvaluateBatch(ctx context.Context, typeName string, values []map[string]interface{}) ([]Decision, error)
}

// Decision is one ModifierHook verdict.
type Decision struct {
	Index        int
	Denied       bool
	Inaccessible bool
}

// Registry collects the hooks wired for one gateway instance. A nil
// field means that hook kind is not installed.
type Registry struct {
	Authorization    AuthorizationHook
	SubgraphRequest  SubgraphRequestHook
	SubgraphResponse SubgraphResponseHook
	Modifier         ModifierHook
}
