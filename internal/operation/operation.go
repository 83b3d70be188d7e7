// Package operation implements §4.C operation preparation: document
// acquisition (trusted documents / APQ / plain query), operation
// limits, binding to the schema, modifier extraction, planning, and the
// prepared-operation cache.
package operation

import (
	"github.com/n9te9/graphql-parser/ast"

	"github.com/n9te9/go-graphql-federation-gateway/internal/apperror"
	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
)

// Request is the raw HTTP-layer GraphQL request, before document
// acquisition has resolved which source (trusted document, APQ, plain
// body) supplies the query text.
type Request struct {
	Query         string
	Variables     map[string]interface{}
	OperationName string
	Extensions    map[string]interface{}
	DocumentID    string
	ClientName    string
}

// FieldModifier is one `@authenticated`/`@requiresScopes`/`@authorized`
// occurrence bound to the response path it governs, recorded once
// during preparation so execution applies it in a single pass.
type FieldModifier struct {
	Path      []string
	Directive auth.Directive
	// Response indicates a post-execution (`@authorized(fields|node)`)
	// modifier; false means it's a pre-execution query modifier.
	Response bool
}

// CachedOperation is the unit operation.Prepare produces and the
// operation cache stores, keyed by (schema version, operation name,
// document key).
type CachedOperation struct {
	Document  *ast.Document
	Plan      *planner.Plan
	Modifiers []FieldModifier
}

// Code enumerates the request-rejection codes named by §6, aliasing
// the shared apperror taxonomy so every layer reports the same
// extensions.code values.
type Code = apperror.Code

const (
	CodePersistedQueryNotFound = apperror.PersistedQueryNotFound
	CodePersistedQueryError    = apperror.PersistedQueryError
	CodeTrustedDocumentError   = apperror.TrustedDocumentError
	CodeRequestError           = apperror.BadRequest
)

// RequestError is a refused-before-execution error — document
// acquisition failures, limit violations, binding errors. The ingress
// layer maps Code to the HTTP status §6 names (4xx for malformed
// requests and limit violations).
type RequestError struct {
	Code    Code
	Message string
}

func (e *RequestError) Error() string { return e.Message }
