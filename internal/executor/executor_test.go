package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/internal/executor"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

func mockSubGraph(t *testing.T, name, host, sdl string) *schema.SubGraph {
	t.Helper()
	sg, err := schema.NewSubGraph(name, []byte(sdl), host)
	if err != nil {
		t.Fatalf("mockSubGraph(%s): %v", name, err)
	}
	return sg
}

func mockSuperGraph(t *testing.T, subGraphs ...*schema.SubGraph) *schema.SuperGraph {
	t.Helper()
	sg, err := schema.Compose(subGraphs)
	if err != nil {
		t.Fatalf("schema.Compose: %v", err)
	}
	return sg
}

func field(name string, sub ...ast.Selection) *ast.Field {
	return &ast.Field{Name: &ast.Name{Value: name}, SelectionSet: sub}
}

func TestExecutor_Execute_SingleRootQuery(t *testing.T) {
	products := mockSubGraph(t, "products", "http://products", `
		type Query { product: Product }
		type Product @key(fields: "id") { id: ID! name: String! }
	`)
	sg := mockSuperGraph(t, products)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"product": map[string]interface{}{"id": "1", "name": "Product 1"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	plan := &planner.Plan{
		Steps: []*planner.Step{
			{
				ID:            0,
				StepType:      planner.StepTypeQuery,
				ParentType:    "Query",
				SubGraph:      &schema.SubGraph{Name: "products", Host: server.URL, Doc: products.Doc},
				SelectionSet:  []ast.Selection{field("product", field("id"), field("name"))},
				InsertionPath: []string{"Query"},
			},
		},
		RootStepIndexes: []int{0},
	}

	exec := executor.New(http.DefaultClient, sg, executor.RetryPolicy{})
	result, err := exec.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("result missing data: %+v", result)
	}
	product, ok := data["product"].(map[string]interface{})
	if !ok {
		t.Fatalf("result missing product: %+v", data)
	}
	if product["name"] != "Product 1" {
		t.Errorf("product.name = %v, want Product 1", product["name"])
	}
}

func TestExecutor_Execute_SubgraphErrorProducesNullAndGraphQLError(t *testing.T) {
	products := mockSubGraph(t, "products", "http://products", `
		type Query { product: Product }
		type Product @key(fields: "id") { id: ID! name: String! }
	`)
	sg := mockSuperGraph(t, products)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	plan := &planner.Plan{
		Steps: []*planner.Step{
			{
				ID:            0,
				StepType:      planner.StepTypeQuery,
				ParentType:    "Query",
				SubGraph:      &schema.SubGraph{Name: "products", Host: server.URL, Doc: products.Doc},
				SelectionSet:  []ast.Selection{field("product", field("id"))},
				InsertionPath: []string{"Query"},
			},
		},
		RootStepIndexes: []int{0},
	}

	exec := executor.New(http.DefaultClient, sg, executor.RetryPolicy{MaxAttempts: 1})
	result, err := exec.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, hasErrors := result["errors"]; !hasErrors {
		t.Fatalf("expected errors in response, got %+v", result)
	}

	data, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("result missing data: %+v", result)
	}
	if v, exists := data["product"]; !exists || v != nil {
		t.Errorf("expected product to be explicitly null, got %v (present=%v)", v, exists)
	}
}

func TestExecutor_ValidateDAG_RejectsCycle(t *testing.T) {
	products := mockSubGraph(t, "products", "http://products", `type Query { product: String }`)
	sg := mockSuperGraph(t, products)

	plan := &planner.Plan{
		Steps: []*planner.Step{
			{ID: 0, StepType: planner.StepTypeQuery, SubGraph: &schema.SubGraph{Name: "products", Host: "http://products"}, DependsOn: []int{1}},
			{ID: 1, StepType: planner.StepTypeQuery, SubGraph: &schema.SubGraph{Name: "products", Host: "http://products"}, DependsOn: []int{0}},
		},
		RootStepIndexes: []int{0},
	}

	exec := executor.New(http.DefaultClient, sg, executor.RetryPolicy{})
	_, err := exec.Execute(context.Background(), plan, nil)
	if err == nil {
		t.Fatal("expected an error for a cyclic plan, got nil")
	}
}
