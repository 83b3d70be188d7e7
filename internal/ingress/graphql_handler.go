package ingress

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/internal/apperror"
	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/executor"
	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ratelimit"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
)

type graphQLRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
	Extensions    map[string]interface{} `json:"extensions"`
}

// Handler serves `POST /graphql` (and `GET /graphql?query=...` for
// introspection), wiring authentication, the global rate limit,
// operation preparation (`internal/operation`: APQ/trusted-document
// resolution, limits and modifier extraction), this package's own
// `@inaccessible` check against the supergraph (validateAccessibility,
// run on the prepared document) and execution together
// — the non-streaming counterpart of the teacher's gateway.ServeHTTP.
type Handler struct {
	Authenticator   *auth.Authenticator
	Preparer        *operation.Preparer
	Executor        *executor.Executor
	SuperGraph      *schema.SuperGraph
	RateLimiter     ratelimit.Limiter
	GlobalRateLimit int
	RateLimitWindow time.Duration
	Hooks           extension.Registry
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest

	switch r.Method {
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRefused(w, http.StatusBadRequest, "malformed request body")
			return
		}
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Authenticator != nil {
		result := h.Authenticator.Authenticate(ctx, r.Header)
		if result.Status == auth.StatusRefused {
			writeGraphQLErrors(w, http.StatusOK, []map[string]interface{}{{
				"message":    result.Err.Error(),
				"extensions": map[string]string{"code": auth.CodeUnauthenticated},
			}})
			return
		}
		ctx = auth.WithAccessToken(ctx, result.Token)
	}

	if h.RateLimiter != nil && h.GlobalRateLimit > 0 {
		key := clientKey(r)
		allowed, err := h.RateLimiter.Allow(ctx, key, h.GlobalRateLimit, h.RateLimitWindow)
		if err != nil {
			writeRefused(w, http.StatusInternalServerError, "rate limiter unavailable")
			return
		}
		if !allowed {
			writeGraphQLErrors(w, http.StatusTooManyRequests, []map[string]interface{}{{
				"message":    "rate limit exceeded",
				"extensions": map[string]string{"code": string(apperror.RateLimited)},
			}})
			return
		}
	}

	ctx = executor.SetRequestHeaderToContext(ctx, r.Header)

	cached, prepErr := h.Preparer.Prepare(operation.Request{
		Query:         req.Query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
		Extensions:    req.Extensions,
		ClientName:    r.Header.Get("GraphQL-Client-Name"),
	})
	if prepErr != nil {
		writeGraphQLErrors(w, http.StatusOK, []map[string]interface{}{{
			"message":    prepErr.Message,
			"extensions": map[string]string{"code": string(prepErr.Code)},
		}})
		return
	}

	if err := validateAccessibility(cached.Document, h.SuperGraph); err != nil {
		writeGraphQLErrors(w, http.StatusOK, []map[string]interface{}{{
			"message":    err.Error(),
			"extensions": map[string]string{"code": string(apperror.BadRequest)},
		}})
		return
	}

	token := auth.AccessTokenFromContext(ctx)
	for _, modifier := range cached.Modifiers {
		if fieldErr := auth.AuthorizeEdgePreExecution(ctx, h.Hooks, req.OperationName, token, modifier.Directive); fieldErr != nil {
			writeGraphQLErrors(w, http.StatusOK, []map[string]interface{}{{
				"message":    fieldErr.Message,
				"path":       pathToInterfaces(modifier.Path),
				"extensions": map[string]string{"code": fieldErr.Code},
			}})
			return
		}
	}

	resp, err := h.Executor.Execute(ctx, cached.Plan, req.Variables)
	if err != nil {
		writeGraphQLErrors(w, http.StatusOK, []map[string]interface{}{{
			"message":    err.Error(),
			"extensions": map[string]string{"code": string(apperror.Internal)},
		}})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func pathToInterfaces(path []string) []interface{} {
	out := make([]interface{}, len(path))
	for i, p := range path {
		out[i] = p
	}
	return out
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeGraphQLErrors(w http.ResponseWriter, status int, errs []map[string]interface{}) {
	writeJSON(w, status, map[string]interface{}{"errors": errs})
}

func writeRefused(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"errors": []map[string]interface{}{{"message": message}}})
}
