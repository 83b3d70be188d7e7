package auth

import (
	"context"
	"fmt"

	"github.com/n9te9/go-graphql-federation-gateway/internal/apperror"
	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
)

// Error codes §4.I names for modifier failures, mirroring the shared
// apperror taxonomy's values.
const (
	CodeUnauthorized    = string(apperror.Unauthorized)
	CodeUnauthenticated = string(apperror.Unauthenticated)
)

// FieldError is attached at the denied field's path; a non-null field
// carrying one of these propagates null per the usual null-bubbling rule.
type FieldError struct {
	Code    string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Directive captures the subset of a field or type's authorization
// directives (`@authenticated`, `@requiresScopes`, `@authorized`) that
// pre-execution checking needs.
type Directive struct {
	Authenticated  bool
	RequiredScopes []string
	Authorized     bool
}

func (d Directive) empty() bool {
	return !d.Authenticated && len(d.RequiredScopes) == 0 && !d.Authorized
}

// authorizePreExecution implements both `authorize_edge_pre_execution`
// and `authorize_node_pre_execution`: static checks against the
// resolved identity, run synchronously during operation preparation.
// `@authorized` additionally consults the extension's AuthorizationHook
// since its rule is opaque to the gateway.
func authorizePreExecution(ctx context.Context, hooks extension.Registry, operationName string, token *AccessToken, d Directive) *FieldError {
	if d.empty() {
		return nil
	}

	if d.Authenticated && token == nil {
		return &FieldError{Code: CodeUnauthenticated, Message: "field requires an authenticated request"}
	}

	for _, scope := range d.RequiredScopes {
		if token == nil {
			return &FieldError{Code: CodeUnauthenticated, Message: "field requires an authenticated request"}
		}
		if !token.HasScope(scope) {
			return &FieldError{Code: CodeUnauthorized, Message: fmt.Sprintf("missing required scope %q", scope)}
		}
	}

	if d.Authorized && hooks.Authorization != nil {
		var claims map[string]interface{}
		if token != nil {
			claims = token.Claims
		}
		if err := hooks.Authorization.Authorize(ctx, claims, operationName); err != nil {
			return &FieldError{Code: CodeUnauthorized, Message: err.Error()}
		}
	}

	return nil
}

// AuthorizeEdgePreExecution checks a field's directives.
func AuthorizeEdgePreExecution(ctx context.Context, hooks extension.Registry, operationName string, token *AccessToken, d Directive) *FieldError {
	return authorizePreExecution(ctx, hooks, operationName, token, d)
}

// AuthorizeNodePreExecution checks a type's directives, evaluated once
// per entity reference rather than per selected field.
func AuthorizeNodePreExecution(ctx context.Context, hooks extension.Registry, operationName string, token *AccessToken, d Directive) *FieldError {
	return authorizePreExecution(ctx, hooks, operationName, token, d)
}

// ModifierEvaluator dispatches response (post-execution) modifiers,
// batched per object set, into the configured extension.
type ModifierEvaluator struct {
	hooks extension.Registry
}

func NewModifierEvaluator(hooks extension.Registry) *ModifierEvaluator {
	return &ModifierEvaluator{hooks: hooks}
}

// EvaluateBatch runs `@authorized`'s post-execution variant over every
// resolved value of typeName in one call, letting the extension batch
// its own rule evaluation (e.g. one policy-engine round trip) instead
// of being invoked once per object.
func (m *ModifierEvaluator) EvaluateBatch(ctx context.Context, typeName string, values []map[string]interface{}) ([]extension.Decision, error) {
	if m.hooks.Modifier == nil {
		return nil, nil
	}
	return m.hooks.Modifier.EvaluateBatch(ctx, typeName, values)
}
