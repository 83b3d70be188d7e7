package subgraph_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
	"github.com/n9te9/go-graphql-federation-gateway/internal/subgraph"
)

type recordingRequestHook struct {
	mu      sync.Mutex
	headers http.Header
}

func (h *recordingRequestHook) OnSubgraphRequest(_ context.Context, _ string, headers http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers = headers.Clone()
}

type recordingResponseHook struct {
	mu     sync.Mutex
	status extension.SubgraphResponseStatus
	calls  int
}

func (h *recordingResponseHook) OnSubgraphResponse(_ context.Context, _ string, status extension.SubgraphResponseStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
	h.calls++
}

func TestResolver_ExecuteQuery_AppliesHeaderRuleAndHooks(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":{"product":{"id":"1"}}}`))
	}))
	defer server.Close()

	reqHook := &recordingRequestHook{}
	respHook := &recordingResponseHook{}
	resolver := subgraph.NewResolver(server.Client(), extension.Registry{
		SubgraphRequest:  reqHook,
		SubgraphResponse: respHook,
	})

	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer client-token")

	rule := subgraph.HeaderRule{Forward: []string{"Authorization"}}

	result, err := resolver.ExecuteQuery(context.Background(), "products", server.URL, rule, incoming, "query { product { id } }", nil)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	if receivedAuth != "Bearer client-token" {
		t.Errorf("subgraph saw Authorization = %q, want forwarded client token", receivedAuth)
	}

	data, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("result missing data: %+v", result)
	}
	if data["product"] == nil {
		t.Errorf("expected product in response data")
	}

	if reqHook.headers.Get("Authorization") != "Bearer client-token" {
		t.Errorf("on_subgraph_request saw Authorization = %q", reqHook.headers.Get("Authorization"))
	}

	if respHook.calls != 1 {
		t.Fatalf("on_subgraph_response calls = %d, want 1", respHook.calls)
	}
	if !respHook.status.Success {
		t.Errorf("expected successful response status")
	}
	if respHook.status.CacheStatus != "bypass" {
		t.Errorf("CacheStatus = %q, want bypass", respHook.status.CacheStatus)
	}
}

func TestResolver_ExecuteQuery_ReportsFailureOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	respHook := &recordingResponseHook{}
	resolver := subgraph.NewResolver(server.Client(), extension.Registry{SubgraphResponse: respHook})

	_, err := resolver.ExecuteQuery(context.Background(), "products", server.URL, subgraph.HeaderRule{}, nil, "query { product { id } }", nil)
	if err == nil {
		t.Fatal("expected an error for a 5xx subgraph response")
	}

	if respHook.calls != 1 {
		t.Fatalf("on_subgraph_response calls = %d, want 1", respHook.calls)
	}
	if respHook.status.Success {
		t.Errorf("expected Success=false for a 5xx response")
	}
}
