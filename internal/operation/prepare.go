package operation

import (
	"fmt"

	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"

	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

// Preparer implements the §4.C public contract:
// `prepare(request) -> CachedOperation | RequestError`.
type Preparer struct {
	SuperGraph *schema.SuperGraph
	SchemaID   string
	Planner    *planner.Planner
	DocSource  *DocumentSource
	Limits     Limits
	Cache      *Cache
}

func NewPreparer(superGraph *schema.SuperGraph, schemaID string, p *planner.Planner, docSource *DocumentSource, limits Limits, cache *Cache) *Preparer {
	return &Preparer{
		SuperGraph: superGraph,
		SchemaID:   schemaID,
		Planner:    p,
		DocSource:  docSource,
		Limits:     limits,
		Cache:      cache,
	}
}

// Prepare runs the full §4.C pipeline: acquire the document text,
// compute the cache key, return a cached entry on a hit, or parse,
// check limits, bind (delegated to the planner's own binding during
// Plan), extract modifiers, plan, and cache on a miss.
func (p *Preparer) Prepare(req Request) (*CachedOperation, *RequestError) {
	query, documentKey, err := p.DocSource.Resolve(req)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s|%s|%s", p.SchemaID, req.OperationName, documentKey)
	if p.Cache != nil {
		if cached, ok := p.Cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	l := lexer.New(query)
	parsed := parser.New(l)
	doc := parsed.ParseDocument()
	if len(parsed.Errors()) > 0 {
		return nil, &RequestError{Code: CodeRequestError, Message: fmt.Sprintf("document has %d syntax error(s)", len(parsed.Errors()))}
	}

	if limitErr := Check(doc, p.Limits); limitErr != nil {
		return nil, limitErr
	}

	plan, planErr := p.Planner.Plan(doc, req.Variables)
	if planErr != nil {
		return nil, &RequestError{Code: CodeRequestError, Message: planErr.Error()}
	}

	cached := &CachedOperation{
		Document:  doc,
		Plan:      plan,
		Modifiers: collectModifiers(doc, p.SuperGraph),
	}

	if p.Cache != nil {
		p.Cache.Put(cacheKey, cached)
	}

	return cached, nil
}
