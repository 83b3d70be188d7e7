package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/internal/entitycache"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

func TestEntityFetchCacheKey_DiffersPerRepresentationAndSubgraph(t *testing.T) {
	rep1 := map[string]interface{}{"__typename": "Product", "id": "1"}
	rep2 := map[string]interface{}{"__typename": "Product", "id": "2"}

	k1, err := entityFetchCacheKey("products", rep1)
	if err != nil {
		t.Fatalf("entityFetchCacheKey: %v", err)
	}
	k2, err := entityFetchCacheKey("products", rep2)
	if err != nil {
		t.Fatalf("entityFetchCacheKey: %v", err)
	}
	k1Other, err := entityFetchCacheKey("reviews", rep1)
	if err != nil {
		t.Fatalf("entityFetchCacheKey: %v", err)
	}

	if k1 == k2 {
		t.Errorf("different representations produced the same cache key")
	}
	if k1 == k1Other {
		t.Errorf("the same representation in different subgraphs produced the same cache key")
	}
}

func TestSingleEntityResult_ExtractsEntityAndErrors(t *testing.T) {
	result := map[string]interface{}{
		"data":   map[string]interface{}{"_entities": []interface{}{map[string]interface{}{"id": "1"}}},
		"errors": []interface{}{map[string]interface{}{"message": "boom"}},
	}

	entity, errs := singleEntityResult(result)
	if entity == nil {
		t.Fatal("expected a non-nil entity")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestExecutor_Fetch_CachesPerRepresentationIndependently(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		var body struct {
			Variables struct {
				Representations []map[string]interface{} `json:"representations"`
			} `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, _ := body.Variables.Representations[0]["id"].(string)

		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"_entities": []interface{}{map[string]interface{}{"id": id, "name": "Product " + id}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	products, err := schema.NewSubGraph("products", []byte(`
		type Query { product: Product }
		type Product @key(fields: "id") { id: ID! name: String! }
	`), server.URL)
	if err != nil {
		t.Fatalf("NewSubGraph: %v", err)
	}

	step := &planner.Step{
		ID:            0,
		StepType:      planner.StepTypeEntity,
		SubGraph:      &schema.SubGraph{Name: "products", Host: server.URL, Doc: products.Doc},
		InsertionPath: []string{"Query", "products"},
	}

	exec := New(server.Client(), nil, RetryPolicy{MaxAttempts: 1}).
		WithEntityCache(entitycache.New(entitycache.NewMemoryStore()), time.Minute)

	query := "query ($representations: [_Any!]!) { _entities(representations: $representations) { ... on Product { id name } } }"

	rep1Vars := map[string]interface{}{"representations": []map[string]interface{}{{"__typename": "Product", "id": "1"}}}
	if _, err := exec.fetch(context.Background(), step, query, rep1Vars); err != nil {
		t.Fatalf("fetch rep1 (first): %v", err)
	}
	if _, err := exec.fetch(context.Background(), step, query, rep1Vars); err != nil {
		t.Fatalf("fetch rep1 (second): %v", err)
	}
	if got := requestCount.Load(); got != 1 {
		t.Errorf("requestCount after two fetches of the same representation = %d, want 1 (second should be a cache hit)", got)
	}

	rep2Vars := map[string]interface{}{"representations": []map[string]interface{}{{"__typename": "Product", "id": "2"}}}
	if _, err := exec.fetch(context.Background(), step, query, rep2Vars); err != nil {
		t.Fatalf("fetch rep2: %v", err)
	}
	if got := requestCount.Load(); got != 2 {
		t.Errorf("requestCount after fetching a distinct representation = %d, want 2", got)
	}
}
