package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
)

// Resolver is the §4.F subgraph contract's single entry point: the
// three verbs — ExecuteQuery, DialSubscriptionWS, StreamSSE — all
// apply the subgraph's header rule, run on_subgraph_request, and emit
// on_subgraph_response telemetry the same way.
type Resolver struct {
	httpClient *http.Client
	hooks      extension.Registry
}

func NewResolver(httpClient *http.Client, hooks extension.Registry) *Resolver {
	return &Resolver{httpClient: httpClient, hooks: hooks}
}

func (r *Resolver) buildHeaders(ctx context.Context, subgraphName string, rule HeaderRule, incoming http.Header) http.Header {
	headers := rule.Apply(incoming)
	if r.hooks.SubgraphRequest != nil {
		r.hooks.SubgraphRequest.OnSubgraphRequest(ctx, subgraphName, headers)
	}
	return headers
}

// ExecuteQuery issues the execute_query verb of the §4.F subgraph
// contract: a plain POST JSON query/mutation fetch, applying header
// rules and both subgraph hooks the same way the streaming verbs do.
func (r *Resolver) ExecuteQuery(ctx context.Context, subgraphName, host string, rule HeaderRule, incoming http.Header, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	reqBody := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		reqBody["variables"] = variables
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("subgraph: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("subgraph: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	headers := r.buildHeaders(ctx, subgraphName, rule, incoming)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.recordResponse(ctx, subgraphName, start, 0, false)
		return nil, fmt.Errorf("subgraph: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		r.recordResponse(ctx, subgraphName, start, 0, false)
		return nil, fmt.Errorf("subgraph: reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		r.recordResponse(ctx, subgraphName, start, len(respBody), false)
		return nil, fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		r.recordResponse(ctx, subgraphName, start, len(respBody), false)
		return nil, fmt.Errorf("subgraph: unmarshaling response: %w", err)
	}

	r.recordResponse(ctx, subgraphName, start, len(respBody), true)
	return result, nil
}

func (r *Resolver) recordResponse(ctx context.Context, subgraphName string, start time.Time, bytes int, success bool) {
	if r.hooks.SubgraphResponse == nil {
		return
	}
	r.hooks.SubgraphResponse.OnSubgraphResponse(ctx, subgraphName, extension.SubgraphResponseStatus{
		Success:     success,
		Bytes:       bytes,
		DurationMS:  time.Since(start).Milliseconds(),
		CacheStatus: "bypass",
	})
}

// DialSubscriptionWS opens a graphql-transport-ws connection for one
// subscription operation.
func (r *Resolver) DialSubscriptionWS(ctx context.Context, subgraphName, wsURL string, rule HeaderRule, incoming http.Header, connectionInitPayload interface{}, initTimeout time.Duration) (*WSClient, error) {
	headers := r.buildHeaders(ctx, subgraphName, rule, incoming)
	return DialWS(ctx, wsURL, headers, connectionInitPayload, initTimeout)
}

// StreamSSE issues one SSE-transported subscription/defer request.
func (r *Resolver) StreamSSE(ctx context.Context, subgraphName, host string, rule HeaderRule, incoming http.Header, query string, variables map[string]interface{}) (<-chan Event, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	headers := r.buildHeaders(ctx, subgraphName, rule, incoming)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	sse := NewSSEClient(r.httpClient)
	start := time.Now()
	events, err := sse.Stream(ctx, req)
	if r.hooks.SubgraphResponse != nil {
		r.hooks.SubgraphResponse.OnSubgraphResponse(ctx, subgraphName, extension.SubgraphResponseStatus{
			Success:     err == nil,
			DurationMS:  time.Since(start).Milliseconds(),
			CacheStatus: "bypass",
		})
	}
	return events, err
}
