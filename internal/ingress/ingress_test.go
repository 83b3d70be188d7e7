package ingress_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/executor"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ingress"
	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

func newPreparer(sg *schema.SuperGraph) *operation.Preparer {
	return operation.NewPreparer(sg, "test", planner.New(sg), &operation.DocumentSource{}, operation.Limits{}, operation.NewCache(10))
}

func buildSuperGraph(t *testing.T) *schema.SuperGraph {
	t.Helper()

	sdl := `
type Query {
	product: Product
}

type Product @key(fields: "id") {
	id: ID!
	name: String!
	internalCost: Float @inaccessible
}
`
	sub, err := schema.NewSubGraph("products", []byte(sdl), "http://products.invalid")
	if err != nil {
		t.Fatalf("NewSubGraph: %v", err)
	}
	sg, err := schema.Compose([]*schema.SubGraph{sub})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return sg
}

func TestHandler_RejectsInaccessibleFieldSelection(t *testing.T) {
	sg := buildSuperGraph(t)
	handler := &ingress.Handler{
		Preparer:   newPreparer(sg),
		Executor:   executor.New(http.DefaultClient, sg, executor.RetryPolicy{}),
		SuperGraph: sg,
	}

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ product { id internalCost } }"}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected a well-formed GraphQL error response (HTTP 200), got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "BadRequest") || !strings.Contains(rec.Body.String(), "internalCost") {
		t.Fatalf("expected a BadRequest error naming internalCost, got %s", rec.Body.String())
	}
}

func TestHandler_RejectsNonPostNonGet(t *testing.T) {
	sg := buildSuperGraph(t)
	handler := &ingress.Handler{
		Preparer:   newPreparer(sg),
		Executor:   executor.New(http.DefaultClient, sg, executor.RetryPolicy{}),
		SuperGraph: sg,
	}

	req := httptest.NewRequest(http.MethodDelete, "/graphql", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
