package operation_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

func buildSuperGraph(t *testing.T) *schema.SuperGraph {
	t.Helper()

	sdl := `
type Query {
	me: User @authenticated
	product: Product
}

type User @key(fields: "id") {
	id: ID!
	name: String!
}

type Product @key(fields: "id") {
	id: ID!
	name: String!
	cost: Float! @requiresScopes(scopes: ["pricing:read"])
}
`
	sub, err := schema.NewSubGraph("accounts", []byte(sdl), "http://accounts.invalid")
	if err != nil {
		t.Fatalf("NewSubGraph: %v", err)
	}
	sg, err := schema.Compose([]*schema.SubGraph{sub})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return sg
}

func TestPreparer_Prepare_CachesSecondLookup(t *testing.T) {
	sg := buildSuperGraph(t)
	docSource := &operation.DocumentSource{APQEnabled: false}
	preparer := operation.NewPreparer(sg, "v1", planner.New(sg), docSource, operation.Limits{}, operation.NewCache(10))

	req := operation.Request{Query: "{ product { id name } }"}

	first, err := preparer.Prepare(req)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	second, err := preparer.Prepare(req)
	if err != nil {
		t.Fatalf("Prepare (cached): %v", err)
	}
	if first != second {
		t.Fatalf("expected the second Prepare call to return the cached *CachedOperation")
	}
}

func TestPreparer_Prepare_RecordsAuthenticatedModifier(t *testing.T) {
	sg := buildSuperGraph(t)
	docSource := &operation.DocumentSource{}
	preparer := operation.NewPreparer(sg, "v1", planner.New(sg), docSource, operation.Limits{}, operation.NewCache(10))

	cached, err := preparer.Prepare(operation.Request{Query: "{ me { id name } }"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if len(cached.Modifiers) != 1 {
		t.Fatalf("expected exactly one modifier recorded, got %d: %+v", len(cached.Modifiers), cached.Modifiers)
	}
	if !cached.Modifiers[0].Directive.Authenticated {
		t.Fatalf("expected the recorded modifier to be @authenticated, got %+v", cached.Modifiers[0])
	}
}

func TestPreparer_Prepare_RecordsModifierForEntityFieldViaSchemaFastPath(t *testing.T) {
	sg := buildSuperGraph(t)
	docSource := &operation.DocumentSource{}
	preparer := operation.NewPreparer(sg, "v1", planner.New(sg), docSource, operation.Limits{}, operation.NewCache(10))

	cached, err := preparer.Prepare(operation.Request{Query: "{ product { id name cost } }"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if len(cached.Modifiers) != 1 {
		t.Fatalf("expected exactly one modifier recorded, got %d: %+v", len(cached.Modifiers), cached.Modifiers)
	}
	got := cached.Modifiers[0]
	if len(got.Directive.RequiredScopes) != 1 || got.Directive.RequiredScopes[0] != "pricing:read" {
		t.Fatalf("expected the @requiresScopes(pricing:read) modifier on Product.cost, got %+v", got)
	}
	wantPath := []string{"product", "cost"}
	if len(got.Path) != len(wantPath) || got.Path[0] != wantPath[0] || got.Path[1] != wantPath[1] {
		t.Fatalf("unexpected path %v", got.Path)
	}
}

func TestDocumentSource_Resolve_APQMissWithoutQueryIsNotFound(t *testing.T) {
	docSource := &operation.DocumentSource{APQEnabled: true, APQCache: operation.NewAPQCache(10)}

	_, _, err := docSource.Resolve(operation.Request{
		Extensions: map[string]interface{}{
			"persistedQuery": map[string]interface{}{"sha256Hash": "deadbeef"},
		},
	})
	if err == nil || err.Code != operation.CodePersistedQueryNotFound {
		t.Fatalf("expected CodePersistedQueryNotFound, got %+v", err)
	}
}

func TestDocumentSource_Resolve_APQWarmHitAfterFirstSubmission(t *testing.T) {
	cache := operation.NewAPQCache(10)
	docSource := &operation.DocumentSource{APQEnabled: true, APQCache: cache}

	query := "{ product { id } }"
	hash := sha256Hex(query)

	_, _, err := docSource.Resolve(operation.Request{
		Query:      query,
		Extensions: map[string]interface{}{"persistedQuery": map[string]interface{}{"sha256Hash": hash}},
	})
	if err != nil {
		t.Fatalf("Resolve (first submission): %v", err)
	}

	resolved, _, err := docSource.Resolve(operation.Request{
		Extensions: map[string]interface{}{"persistedQuery": map[string]interface{}{"sha256Hash": hash}},
	})
	if err != nil {
		t.Fatalf("Resolve (warm hit): %v", err)
	}
	if resolved != query {
		t.Fatalf("expected the cached query text back, got %q", resolved)
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
