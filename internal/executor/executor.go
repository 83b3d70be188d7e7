// Package executor drives a planner.Plan to completion: it fires each
// wave of independent steps against its subgraph concurrently, merges
// entity results back into the root response tree, and prunes the
// response down to exactly what the original operation asked for.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/n9te9/graphql-parser/ast"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/n9te9/go-graphql-federation-gateway/internal/apperror"
	"github.com/n9te9/go-graphql-federation-gateway/internal/entitycache"
	"github.com/n9te9/go-graphql-federation-gateway/internal/extension"
	"github.com/n9te9/go-graphql-federation-gateway/internal/planner"
	"github.com/n9te9/go-graphql-federation-gateway/internal/schema"
	"github.com/n9te9/go-graphql-federation-gateway/internal/subgraph"
)

// requestHeaderContextKey carries the inbound client request's headers
// down to the subgraph fetch layer, mirroring the teacher's
// SetRequestHeaderToContext/GetRequestHeaderFromContext pair.
type requestHeaderContextKey struct{}

// SetRequestHeaderToContext attaches the inbound client request's
// headers to ctx so header rules further down the executor can
// forward/insert/remove from them per subgraph.
func SetRequestHeaderToContext(ctx context.Context, header http.Header) context.Context {
	return context.WithValue(ctx, requestHeaderContextKey{}, header)
}

// GetRequestHeaderFromContext returns the headers attached by
// SetRequestHeaderToContext, or nil if none were attached.
func GetRequestHeaderFromContext(ctx context.Context) http.Header {
	h, ok := ctx.Value(requestHeaderContextKey{}).(http.Header)
	if !ok {
		return nil
	}
	return h
}

// GraphQLError is the executor's alias onto the shared apperror type,
// kept so existing call sites in this package don't need renaming.
type GraphQLError = apperror.GraphQLError

// RetryPolicy bounds how many times a failed subgraph fetch is retried
// and at what sustained rate, per subgraph: there is one bucket per
// subgraph name, shared by query and entity steps and by queries and
// mutations alike. Retries beyond the budget are treated as a hard
// failure for that step so one unhealthy subgraph cannot monopolize the
// executor's retry capacity.
type RetryPolicy struct {
	MaxAttempts int
	// Rate and Burst parameterize a token bucket shared across every
	// step hitting the same subgraph; see golang.org/x/time/rate.
	Rate  rate.Limit
	Burst int
}

func (r RetryPolicy) orDefaults() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 2
	}
	if r.Rate <= 0 {
		r.Rate = 5
	}
	if r.Burst <= 0 {
		r.Burst = 5
	}
	return r
}

// retryBudget hands out a *rate.Limiter per subgraph name, lazily.
type retryBudget struct {
	policy   RetryPolicy
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRetryBudget(policy RetryPolicy) *retryBudget {
	return &retryBudget{
		policy:   policy.orDefaults(),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (b *retryBudget) limiterFor(subGraphName string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[subGraphName]
	if !ok {
		l = rate.NewLimiter(b.policy.Rate, b.policy.Burst)
		b.limiters[subGraphName] = l
	}
	return l
}

// Executor executes a query plan by orchestrating requests to subgraphs.
type Executor struct {
	httpClient     *http.Client
	queryBuilder   *QueryBuilder
	superGraph     *schema.SuperGraph
	retryBudget    *retryBudget
	entityCache    *entitycache.Cache
	entityCacheTTL time.Duration
	resolver       *subgraph.Resolver
	headerRules    map[string]subgraph.HeaderRule
	hooks          extension.Registry
}

// New creates an Executor bound to a composed supergraph. Query
// fetches are routed through a default, hookless Resolver until
// WithHooks installs the gateway's real extension.Registry.
func New(httpClient *http.Client, superGraph *schema.SuperGraph, retry RetryPolicy) *Executor {
	return &Executor{
		httpClient:   httpClient,
		queryBuilder: NewQueryBuilder(superGraph),
		superGraph:   superGraph,
		retryBudget:  newRetryBudget(retry),
		resolver:     subgraph.NewResolver(httpClient, extension.Registry{}),
	}
}

// WithEntityCache installs the §4.J entity cache: subsequent _entities
// fetches (StepTypeEntity) are looked up and backfilled through cache
// before falling through to the subgraph, one cache entry per
// representation, keyed by subgraph name plus that representation
// (entityFetchCacheKey). Root-field queries are never cached,
// since the plan doesn't carry field-level maxAge/staleness metadata
// for them.
func (e *Executor) WithEntityCache(cache *entitycache.Cache, ttl time.Duration) *Executor {
	e.entityCache = cache
	e.entityCacheTTL = ttl
	return e
}

// WithHooks installs the §4.F on_subgraph_request/on_subgraph_response
// hooks for query/mutation fetches — the same extension.Registry the
// streaming verbs already run through. Entity cache hits never reach
// the resolver (no subgraph round trip happens), so fetch reports
// those directly from the hooks retained here.
func (e *Executor) WithHooks(hooks extension.Registry) *Executor {
	e.hooks = hooks
	e.resolver = subgraph.NewResolver(e.httpClient, hooks)
	return e
}

// WithHeaderRules installs the per-subgraph header rule (§8) query
// fetches apply before dispatch, keyed by subgraph name.
func (e *Executor) WithHeaderRules(rules map[string]subgraph.HeaderRule) *Executor {
	e.headerRules = rules
	return e
}

// executionContext holds mutable per-request execution state.
type executionContext struct {
	ctx     context.Context
	plan    *planner.Plan
	results map[int]interface{}
	errors  []GraphQLError
	mu      sync.RWMutex
}

// Execute runs a query plan to completion and returns the merged,
// pruned GraphQL response ({"data": ..., "errors": ...}).
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, variables map[string]interface{}) (map[string]interface{}, error) {
	if err := e.validateDAG(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	execCtx := &executionContext{
		ctx:     ctx,
		plan:    plan,
		results: make(map[int]interface{}),
		errors:  make([]GraphQLError, 0),
	}

	_ = e.executeSteps(execCtx, plan.RootStepIndexes, variables)

	response := make(map[string]interface{})
	data := make(map[string]interface{})

	for _, stepID := range plan.RootStepIndexes {
		execCtx.mu.RLock()
		stepResult := execCtx.results[stepID]
		execCtx.mu.RUnlock()

		if stepData, ok := stepResult.(map[string]interface{}); ok {
			if stepDataMap, ok := stepData["data"].(map[string]interface{}); ok {
				for k, v := range stepDataMap {
					data[k] = v
				}
			}
		}
	}

	response["data"] = data

	execCtx.mu.RLock()
	if len(execCtx.errors) > 0 {
		response["errors"] = execCtx.errors
	}
	execCtx.mu.RUnlock()

	return e.pruneResponse(response, plan), nil
}

// validateDAG rejects plans containing dependency cycles via Kahn's
// algorithm; a cyclic plan would deadlock executeSteps's wave loop.
func (e *Executor) validateDAG(plan *planner.Plan) error {
	inDegree := make(map[int]int)
	for _, step := range plan.Steps {
		if _, exists := inDegree[step.ID]; !exists {
			inDegree[step.ID] = 0
		}
		for range step.DependsOn {
			inDegree[step.ID]++
		}
	}

	queue := make([]int, 0)
	for stepID, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, stepID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, step := range plan.Steps {
			for _, dep := range step.DependsOn {
				if dep == current {
					inDegree[step.ID]--
					if inDegree[step.ID] == 0 {
						queue = append(queue, step.ID)
					}
				}
			}
		}
	}

	if visited != len(plan.Steps) {
		return fmt.Errorf("plan contains circular dependencies")
	}

	return nil
}

// executeSteps fires one wave of steps in parallel, then recurses into
// whichever steps just became ready.
func (e *Executor) executeSteps(execCtx *executionContext, stepIDs []int, variables map[string]interface{}) error {
	if len(stepIDs) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(execCtx.ctx)

	for _, stepID := range stepIDs {
		stepID := stepID
		step := execCtx.plan.Steps[stepID]

		eg.Go(func() error {
			return e.processStep(ctx, execCtx, step, variables)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	nextSteps := e.findReadySteps(execCtx)
	if len(nextSteps) > 0 {
		return e.executeSteps(execCtx, nextSteps, variables)
	}

	return nil
}

func (e *Executor) findReadySteps(execCtx *executionContext) []int {
	ready := make([]int, 0)

	execCtx.mu.RLock()
	defer execCtx.mu.RUnlock()

	for _, step := range execCtx.plan.Steps {
		if _, exists := execCtx.results[step.ID]; exists {
			continue
		}

		allDepsReady := true
		for _, depID := range step.DependsOn {
			if _, exists := execCtx.results[depID]; !exists {
				allDepsReady = false
				break
			}
		}

		if allDepsReady && len(step.DependsOn) > 0 {
			ready = append(ready, step.ID)
		}
	}

	return ready
}

func (e *Executor) processStep(ctx context.Context, execCtx *executionContext, step *planner.Step, variables map[string]interface{}) error {
	if step.SubGraph == nil {
		err := fmt.Errorf("step %d has nil subgraph", step.ID)
		e.recordError(execCtx, step, err)
		return err
	}

	var query string
	var queryVars map[string]interface{}
	var err error

	if step.StepType == planner.StepTypeQuery {
		query, queryVars, err = e.queryBuilder.Build(step, nil, variables, strings.ToLower(step.ParentType))
		if err != nil {
			e.recordError(execCtx, step, fmt.Errorf("failed to build root query: %w", err))
			return err
		}
	} else {
		representations := e.extractRepresentations(execCtx, step)
		if len(representations) == 0 {
			execCtx.mu.Lock()
			execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
			execCtx.mu.Unlock()
			return nil
		}

		query, queryVars, err = e.queryBuilder.Build(step, representations, variables, "query")
		if err != nil {
			e.recordError(execCtx, step, fmt.Errorf("failed to build entity query: %w", err))
			return err
		}
	}

	result, err := e.fetch(ctx, step, query, queryVars)
	if err != nil {
		e.recordError(execCtx, step, err)
		e.setNullForFailedStep(execCtx, step)
		return nil
	}

	if errs, hasErrors := result["errors"]; hasErrors && errs != nil {
		e.recordSubgraphErrors(execCtx, step, errs)
	}

	if step.StepType == planner.StepTypeQuery {
		execCtx.mu.Lock()
		execCtx.results[step.ID] = result
		execCtx.mu.Unlock()
	} else {
		if err := e.mergeEntityResults(execCtx, step, result); err != nil {
			e.recordError(execCtx, step, fmt.Errorf("failed to merge entity results: %w", err))
			e.setNullForFailedStep(execCtx, step)
			return nil
		}
		execCtx.mu.Lock()
		execCtx.results[step.ID] = result
		execCtx.mu.Unlock()
	}

	return nil
}

// errorCode classifies a fetch failure for extensions.code: a
// cancelled/expired context means the gateway itself timed out
// waiting on the subgraph, anything else is the subgraph's fault.
func errorCode(err error) apperror.Code {
	if isDeadlineExceeded(err) {
		return apperror.GatewayTimeout
	}
	return apperror.SubgraphRequestError
}

func isDeadlineExceeded(err error) bool {
	for err != nil {
		if err == context.DeadlineExceeded {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func (e *Executor) recordError(execCtx *executionContext, step *planner.Step, err error) {
	if step.StepType == planner.StepTypeEntity && len(step.SelectionSet) > 0 {
		basePath := e.buildErrorPath(step)
		for _, sel := range step.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				fieldName := field.Name.String()
				if field.Alias != nil && field.Alias.String() != "" {
					fieldName = field.Alias.String()
				}
				if fieldName == "__typename" || fieldName == "id" || fieldName == "_id" {
					continue
				}
				fieldPath := make([]interface{}, len(basePath))
				copy(fieldPath, basePath)
				fieldPath = append(fieldPath, fieldName)

				graphqlErr := GraphQLError{
					Message: err.Error(),
					Path:    fieldPath,
					Extensions: map[string]interface{}{
						"code":        string(errorCode(err)),
						"serviceName": step.SubGraph.Name,
					},
				}

				execCtx.mu.Lock()
				execCtx.errors = append(execCtx.errors, graphqlErr)
				execCtx.mu.Unlock()
			}
		}
	} else {
		path := e.buildErrorPath(step)

		graphqlErr := GraphQLError{
			Message: err.Error(),
			Path:    path,
			Extensions: map[string]interface{}{
				"code":        string(errorCode(err)),
				"serviceName": step.SubGraph.Name,
			},
		}

		execCtx.mu.Lock()
		execCtx.errors = append(execCtx.errors, graphqlErr)
		execCtx.mu.Unlock()
	}
}

func (e *Executor) recordSubgraphErrors(execCtx *executionContext, step *planner.Step, errs interface{}) {
	errorList, ok := errs.([]interface{})
	if !ok {
		return
	}

	for _, errItem := range errorList {
		errMap, ok := errItem.(map[string]interface{})
		if !ok {
			continue
		}

		message, _ := errMap["message"].(string)
		if message == "" {
			message = "unknown error from subgraph"
		}

		path := e.buildErrorPath(step)
		if errPath, hasPath := errMap["path"].([]interface{}); hasPath {
			path = append(path, errPath...)
		}

		graphqlErr := GraphQLError{
			Message: message,
			Path:    path,
			Extensions: map[string]interface{}{
				"code":        string(apperror.InvalidSubgraphResponse),
				"serviceName": step.SubGraph.Name,
			},
		}

		if extensions, hasExt := errMap["extensions"].(map[string]interface{}); hasExt {
			for k, v := range extensions {
				graphqlErr.Extensions[k] = v
			}
		}

		execCtx.mu.Lock()
		execCtx.errors = append(execCtx.errors, graphqlErr)
		execCtx.mu.Unlock()
	}
}

func (e *Executor) buildErrorPath(step *planner.Step) []interface{} {
	path := make([]interface{}, 0)

	var pathSegments []string
	if step.StepType == planner.StepTypeEntity && len(step.InsertionPath) > 0 {
		pathSegments = step.InsertionPath
	} else if len(step.Path) > 0 {
		pathSegments = step.Path
	}

	for _, segment := range pathSegments {
		if segment == "Query" || segment == "Mutation" || segment == "Subscription" {
			continue
		}
		path = append(path, segment)
	}

	return path
}

func (e *Executor) setNullForFailedStep(execCtx *executionContext, step *planner.Step) {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	if step.StepType == planner.StepTypeQuery {
		nullData := make(map[string]interface{})
		for _, sel := range step.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				fieldName := field.Name.String()
				if field.Alias != nil && field.Alias.String() != "" {
					fieldName = field.Alias.String()
				}
				nullData[fieldName] = nil
			}
		}
		execCtx.results[step.ID] = map[string]interface{}{"data": nullData}
		return
	}

	if len(step.DependsOn) == 0 {
		execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
		return
	}

	var rootStepID int
	var rootResult interface{}
	for _, s := range execCtx.plan.Steps {
		if len(s.DependsOn) == 0 {
			rootStepID = s.ID
			rootResult = execCtx.results[s.ID]
			break
		}
	}

	if rootResult == nil {
		execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
		return
	}

	rootResultMap, ok := rootResult.(map[string]interface{})
	if !ok {
		execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
		return
	}

	rootData, ok := rootResultMap["data"].(map[string]interface{})
	if !ok {
		execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
		return
	}

	mergePath := make([]string, 0)
	for i, segment := range step.InsertionPath {
		if i == 0 && (segment == "Query" || segment == "Mutation" || segment == "Subscription") {
			continue
		}
		mergePath = append(mergePath, segment)
	}

	var current interface{} = rootData
	for _, segment := range mergePath {
		if currentMap, ok := current.(map[string]interface{}); ok {
			if next, exists := currentMap[segment]; exists {
				current = next
			} else {
				execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
				return
			}
		} else if currentArray, ok := current.([]interface{}); ok {
			for _, item := range currentArray {
				if itemMap, ok := item.(map[string]interface{}); ok {
					e.setNullFieldsInEntity(itemMap, step.SelectionSet)
				}
			}
			execCtx.results[rootStepID] = rootResultMap
			execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
			return
		} else {
			execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
			return
		}
	}

	if entityMap, ok := current.(map[string]interface{}); ok {
		e.setNullFieldsInEntity(entityMap, step.SelectionSet)
	}

	execCtx.results[rootStepID] = rootResultMap
	execCtx.results[step.ID] = map[string]interface{}{"data": map[string]interface{}{}}
}

func (e *Executor) setNullFieldsInEntity(entityMap map[string]interface{}, selectionSet []ast.Selection) {
	for _, sel := range selectionSet {
		if field, ok := sel.(*ast.Field); ok {
			fieldName := field.Name.String()
			if field.Alias != nil && field.Alias.String() != "" {
				fieldName = field.Alias.String()
			}
			if fieldName == "__typename" || fieldName == "id" || fieldName == "_id" {
				continue
			}
			entityMap[fieldName] = nil
		}
	}
}

func (e *Executor) extractRepresentations(execCtx *executionContext, step *planner.Step) []map[string]interface{} {
	representations := make([]map[string]interface{}, 0)

	execCtx.mu.RLock()
	defer execCtx.mu.RUnlock()

	if len(step.DependsOn) == 0 {
		return representations
	}

	var rootResult interface{}
	for _, s := range execCtx.plan.Steps {
		if len(s.DependsOn) == 0 {
			if result, exists := execCtx.results[s.ID]; exists {
				rootResult = result
				break
			}
		}
	}

	if rootResult == nil {
		return representations
	}

	var current interface{} = rootResult

	if resultMap, ok := current.(map[string]interface{}); ok {
		if data, ok := resultMap["data"].(map[string]interface{}); ok {
			current = data
		} else {
			return representations
		}
	}

	for i, pathSegment := range step.InsertionPath {
		if i == 0 && (pathSegment == "Query" || pathSegment == "Mutation" || pathSegment == "Subscription") {
			continue
		}

		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return representations
		}

		next, exists := currentMap[pathSegment]
		if !exists {
			return representations
		}

		if arr, isArray := next.([]interface{}); isArray {
			remainingPath := step.InsertionPath[i+1:]

			for _, elem := range arr {
				elemMap, ok := elem.(map[string]interface{})
				if !ok {
					continue
				}

				elemResults := e.navigatePathWithArrays(elemMap, remainingPath, step)
				representations = append(representations, elemResults...)
			}

			return representations
		}

		current = next
	}

	ownerSubGraph := e.superGraph.GetEntityOwnerSubGraph(step.ParentType)
	if ownerSubGraph == nil {
		return representations
	}

	entity, exists := ownerSubGraph.GetEntity(step.ParentType)
	if !exists || len(entity.Keys) == 0 {
		return representations
	}

	keyField := entity.Keys[0].FieldSet

	switch v := current.(type) {
	case map[string]interface{}:
		if rep := e.buildRepresentation(v, step.ParentType, keyField); rep != nil {
			representations = append(representations, rep)
		}
	case []interface{}:
		for _, item := range v {
			if itemMap, ok := item.(map[string]interface{}); ok {
				if rep := e.buildRepresentation(itemMap, step.ParentType, keyField); rep != nil {
					representations = append(representations, rep)
				}
			}
		}
	}

	return representations
}

func (e *Executor) navigatePathWithArrays(current map[string]interface{}, path []string, step *planner.Step) []map[string]interface{} {
	representations := make([]map[string]interface{}, 0)

	if len(path) == 0 {
		if ownerSubGraph := e.superGraph.GetEntityOwnerSubGraph(step.ParentType); ownerSubGraph != nil {
			if entity, exists := ownerSubGraph.GetEntity(step.ParentType); exists && len(entity.Keys) > 0 {
				keyField := entity.Keys[0].FieldSet
				if rep := e.buildRepresentation(current, step.ParentType, keyField); rep != nil {
					representations = append(representations, rep)
				}
			}
		}
		return representations
	}

	segment := path[0]
	remainingPath := path[1:]

	next, exists := current[segment]
	if !exists {
		return representations
	}

	if arr, isArray := next.([]interface{}); isArray {
		for _, elem := range arr {
			if elemMap, ok := elem.(map[string]interface{}); ok {
				elemResults := e.navigatePathWithArrays(elemMap, remainingPath, step)
				representations = append(representations, elemResults...)
			}
		}
	} else if nextMap, ok := next.(map[string]interface{}); ok {
		representations = e.navigatePathWithArrays(nextMap, remainingPath, step)
	}

	return representations
}

// buildRepresentation builds an _Any representation for an entity.
// keyField may be a composite key, space-separated (e.g. "sku variant").
func (e *Executor) buildRepresentation(entity map[string]interface{}, typeName string, keyField string) map[string]interface{} {
	representation := map[string]interface{}{
		"__typename": typeName,
	}

	keyFieldNames := strings.Fields(keyField)

	for _, fieldName := range keyFieldNames {
		if keyValue, exists := entity[fieldName]; exists {
			representation[fieldName] = keyValue
		} else {
			return nil
		}
	}

	return representation
}

func (e *Executor) mergeEntityResults(execCtx *executionContext, step *planner.Step, result map[string]interface{}) error {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	if len(step.DependsOn) == 0 {
		return nil
	}

	var rootStepID int
	var rootResult interface{}
	for _, s := range execCtx.plan.Steps {
		if len(s.DependsOn) == 0 {
			rootStepID = s.ID
			rootResult = execCtx.results[s.ID]
			break
		}
	}

	if rootResult == nil {
		return fmt.Errorf("root step result not found")
	}

	rootResultMap, ok := rootResult.(map[string]interface{})
	if !ok {
		return fmt.Errorf("root result is not a map")
	}

	rootData, ok := rootResultMap["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("root result does not have data field")
	}

	resultData, ok := result["data"].(map[string]interface{})
	if !ok {
		return nil
	}

	entitiesData, ok := resultData["_entities"]
	if !ok {
		return nil
	}

	mergePath := make([]string, 0)
	for i, segment := range step.InsertionPath {
		if i == 0 && (segment == "Query" || segment == "Mutation" || segment == "Subscription") {
			continue
		}
		mergePath = append(mergePath, segment)
	}

	var current interface{} = rootData
	var firstArrayIndex = -1

	for i, segment := range mergePath {
		if currentMap, ok := current.(map[string]interface{}); ok {
			if next, exists := currentMap[segment]; exists {
				current = next

				if _, isArray := current.([]interface{}); isArray {
					if firstArrayIndex < 0 {
						firstArrayIndex = i
					}
					break
				}
			} else {
				current = nil
				break
			}
		} else {
			current = nil
			break
		}
	}

	if firstArrayIndex >= 0 {
		entities, ok := entitiesData.([]interface{})
		if !ok {
			return fmt.Errorf("entities data is not an array")
		}

		var arrayContainer interface{} = rootData
		arrayPath := mergePath[:firstArrayIndex+1]
		for _, segment := range arrayPath {
			if containerMap, ok := arrayContainer.(map[string]interface{}); ok {
				arrayContainer = containerMap[segment]
			}
		}

		arrayData, ok := arrayContainer.([]interface{})
		if !ok {
			return fmt.Errorf("expected array at merge path %v", arrayPath)
		}

		remainingPath := mergePath[firstArrayIndex+1:]

		entityIndex := 0
		for _, elem := range arrayData {
			elemMap, ok := elem.(map[string]interface{})
			if !ok {
				continue
			}

			entityIndex = e.mergeIntoNestedArrays(elemMap, entities, remainingPath, entityIndex)
		}

	} else if current == nil {
		entities, ok := entitiesData.([]interface{})
		if !ok || len(entities) == 0 {
			return nil
		}

		firstEntity, ok := entities[0].(map[string]interface{})
		if !ok {
			return fmt.Errorf("first entity is not a map")
		}

		if err := Merge(rootData, firstEntity, mergePath); err != nil {
			return fmt.Errorf("failed to merge entity object: %w", err)
		}
	} else if _, isArray := current.([]interface{}); isArray {
		if err := Merge(rootData, entitiesData, mergePath); err != nil {
			return fmt.Errorf("failed to merge entities array: %w", err)
		}
	} else {
		entities, ok := entitiesData.([]interface{})
		if !ok || len(entities) == 0 {
			return nil
		}

		firstEntity, ok := entities[0].(map[string]interface{})
		if !ok {
			return fmt.Errorf("first entity is not a map")
		}

		if err := Merge(rootData, firstEntity, mergePath); err != nil {
			return fmt.Errorf("failed to merge entity object: %w", err)
		}
	}

	execCtx.results[rootStepID] = rootResultMap

	return nil
}

func (e *Executor) mergeIntoNestedArrays(current map[string]interface{}, entities []interface{}, path []string, entityIndex int) int {
	if len(path) == 0 {
		if entityIndex < len(entities) {
			if entityMap, ok := entities[entityIndex].(map[string]interface{}); ok {
				Merge(current, entityMap, []string{})
			}
			return entityIndex + 1
		}
		return entityIndex
	}

	segment := path[0]
	remainingPath := path[1:]

	next, exists := current[segment]
	if !exists {
		return entityIndex
	}

	if arr, isArray := next.([]interface{}); isArray {
		for _, elem := range arr {
			if elemMap, ok := elem.(map[string]interface{}); ok {
				entityIndex = e.mergeIntoNestedArrays(elemMap, entities, remainingPath, entityIndex)
			}
		}
	} else if nextMap, ok := next.(map[string]interface{}); ok {
		entityIndex = e.mergeIntoNestedArrays(nextMap, entities, remainingPath, entityIndex)
	}

	return entityIndex
}

// cachedEntityResult is what the entity cache stores per representation:
// the resolved entity object plus any GraphQL errors the subgraph
// returned alongside it for that one representation.
type cachedEntityResult struct {
	Entity interface{}   `json:"entity"`
	Errors []interface{} `json:"errors,omitempty"`
}

// singleEntityResult pulls the one `_entities` element and any errors
// out of a subgraph response fetched for a single representation.
func singleEntityResult(result map[string]interface{}) (interface{}, []interface{}) {
	var entity interface{}
	if data, ok := result["data"].(map[string]interface{}); ok {
		if arr, ok := data["_entities"].([]interface{}); ok && len(arr) > 0 {
			entity = arr[0]
		}
	}
	var errs []interface{}
	if e, ok := result["errors"].([]interface{}); ok {
		errs = e
	}
	return entity, errs
}

// fetch runs an entity fetch through the entity cache when one is
// installed, splitting the batch's representations into independent
// per-`@key` cache lookups (§3, §4.F step 2) so that at most one
// backfill is ever in flight per (subgraph, key) (§8), and every other
// fetch directly against the subgraph.
func (e *Executor) fetch(ctx context.Context, step *planner.Step, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	if e.entityCache == nil || step.StepType != planner.StepTypeEntity {
		return e.sendRequestWithRetry(ctx, step.SubGraph, query, variables)
	}

	representations, ok := variables["representations"].([]map[string]interface{})
	if !ok || len(representations) == 0 {
		return e.sendRequestWithRetry(ctx, step.SubGraph, query, variables)
	}

	entities := make([]interface{}, len(representations))
	var allErrors []interface{}

	for i, rep := range representations {
		key, err := entityFetchCacheKey(step.SubGraph.Name, rep)
		if err != nil {
			return e.sendRequestWithRetry(ctx, step.SubGraph, query, variables)
		}

		hit := true
		raw, err := e.entityCache.GetOrBackfill(ctx, key, e.entityCacheTTL, func(ctx context.Context) ([]byte, error) {
			hit = false
			repVariables := map[string]interface{}{"representations": []map[string]interface{}{rep}}
			result, err := e.sendRequestWithRetry(ctx, step.SubGraph, query, repVariables)
			if err != nil {
				return nil, err
			}
			entity, errs := singleEntityResult(result)
			return json.Marshal(cachedEntityResult{Entity: entity, Errors: errs})
		})
		if err != nil {
			return nil, err
		}

		var cached cachedEntityResult
		if err := json.Unmarshal(raw, &cached); err != nil {
			return nil, fmt.Errorf("executor: decoding cached entity result: %w", err)
		}

		if hit && e.hooks.SubgraphResponse != nil {
			e.hooks.SubgraphResponse.OnSubgraphResponse(ctx, step.SubGraph.Name, extension.SubgraphResponseStatus{
				Success:     true,
				Bytes:       len(raw),
				CacheStatus: "hit",
			})
		}

		entities[i] = cached.Entity
		allErrors = append(allErrors, cached.Errors...)
	}

	result := map[string]interface{}{"data": map[string]interface{}{"_entities": entities}}
	if len(allErrors) > 0 {
		result["errors"] = allErrors
	}
	return result, nil
}

// entityFetchCacheKey hashes one `@key` representation, scoped to its
// owning subgraph, per §3's "subgraph-scoped, per-@key representation
// hash".
func entityFetchCacheKey(subGraphName string, representation map[string]interface{}) (string, error) {
	repBytes, err := json.Marshal(representation)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(append([]byte(subGraphName+"|"), repBytes...))
	return hex.EncodeToString(h[:]), nil
}

// sendRequestWithRetry sends the request, retrying any failed fetch
// (network errors, 5xx responses, and unreadable or non-JSON bodies
// alike) up to the subgraph's retry budget.
// The budget is a shared token bucket per subgraph name so one flaky
// service cannot starve retries meant for the others.
func (e *Executor) sendRequestWithRetry(ctx context.Context, sg *schema.SubGraph, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	limiter := e.retryBudget.limiterFor(sg.Name)
	attempts := e.retryBudget.policy.MaxAttempts

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if !limiter.Allow() {
				break
			}
		}

		result, err := e.sendRequest(ctx, sg, query, variables)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("subgraph %q: %w", sg.Name, lastErr)
}

// sendRequest issues the execute_query verb of the §4.F subgraph
// contract through the shared Resolver, so query/mutation fetches get
// the same header-rule application and on_subgraph_request/
// on_subgraph_response hooks the streaming verbs already carry.
func (e *Executor) sendRequest(ctx context.Context, sg *schema.SubGraph, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	incoming := GetRequestHeaderFromContext(ctx)
	rule := e.headerRules[sg.Name]
	return e.resolver.ExecuteQuery(ctx, sg.Name, sg.Host, rule, incoming, query, variables)
}

// pruneResponse strips fields that were added by the planner to
// resolve entities (__typename, key fields) but were never part of the
// original operation's selection set.
func (e *Executor) pruneResponse(resp map[string]interface{}, plan *planner.Plan) map[string]interface{} {
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		return resp
	}

	if plan.OriginalDocument == nil {
		return resp
	}

	op := getOperationFromDocument(plan.OriginalDocument)
	if op == nil || len(op.SelectionSet) == 0 {
		return resp
	}

	prunedData := e.pruneObject(data, op.SelectionSet)

	result := make(map[string]interface{})
	result["data"] = prunedData
	if errs, ok := resp["errors"]; ok {
		result["errors"] = errs
	}

	return result
}

func (e *Executor) pruneObject(obj interface{}, selections []ast.Selection) interface{} {
	if obj == nil {
		return nil
	}

	switch v := obj.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		for _, sel := range selections {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}

			fieldName := field.Name.String()
			lookupKey := fieldName
			if field.Alias != nil {
				lookupKey = field.Alias.String()
			}

			value, exists := v[fieldName]
			if !exists && lookupKey != fieldName {
				value, exists = v[lookupKey]
			}
			if !exists {
				continue
			}

			if len(field.SelectionSet) > 0 {
				result[lookupKey] = e.pruneObject(value, field.SelectionSet)
			} else {
				result[lookupKey] = value
			}
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = e.pruneObject(item, selections)
		}
		return result

	default:
		return v
	}
}

func getOperationFromDocument(doc *ast.Document) *ast.OperationDefinition {
	if doc == nil {
		return nil
	}

	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}

	return nil
}
