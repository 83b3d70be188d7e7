package ingress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/n9te9/go-graphql-federation-gateway/internal/operation"
	"github.com/n9te9/go-graphql-federation-gateway/internal/streaming"
	"github.com/n9te9/go-graphql-federation-gateway/internal/subgraph"
)

// SubscriptionExecutor satisfies streaming.ExecuteFunc: it prepares a
// `subscription { ... }` operation the same way the plain HTTP Handler
// prepares a query/mutation, then dials the owning subgraph's
// graphql-transport-ws endpoint and republishes its events as
// streaming.Frame values. Federation subscriptions root at exactly one
// field, so (unlike query/mutation planning) the resulting plan always
// names a single owning subgraph — no fan-out or response-tree merge
// is needed on this path.
type SubscriptionExecutor struct {
	Preparer    *operation.Preparer
	Resolver    *subgraph.Resolver
	HeaderRules map[string]subgraph.HeaderRule
	InitTimeout time.Duration
}

func (s *SubscriptionExecutor) Execute(ctx context.Context, query string, variables map[string]interface{}, incoming http.Header) (<-chan streaming.Frame, error) {
	cached, prepErr := s.Preparer.Prepare(operation.Request{Query: query, Variables: variables})
	if prepErr != nil {
		return nil, errors.New(prepErr.Message)
	}
	if cached.Plan.OperationType != "subscription" {
		return nil, errors.New("subscription: operation is not a subscription")
	}
	if len(cached.Plan.Steps) == 0 {
		return nil, errors.New("subscription: plan has no root field")
	}

	step := cached.Plan.Steps[0]
	wsURL, err := toWebSocketURL(step.SubGraph.Host)
	if err != nil {
		return nil, err
	}

	initTimeout := s.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 3 * time.Second
	}

	client, err := s.Resolver.DialSubscriptionWS(ctx, step.SubGraph.Name, wsURL, s.HeaderRules[step.SubGraph.Name], incoming, nil, initTimeout)
	if err != nil {
		return nil, fmt.Errorf("subscription: dialing %s: %w", step.SubGraph.Name, err)
	}

	events := client.Subscribe(ctx, uuid.NewString(), query, variables)
	frames := make(chan streaming.Frame, streaming.FrameChannelCapacity)

	go func() {
		defer close(frames)
		for ev := range events {
			if ev.Err != nil {
				frames <- streaming.Frame{
					Errors:  []map[string]interface{}{{"message": ev.Err.Error()}},
					HasNext: false,
				}
				return
			}
			frames <- streaming.Frame{Data: ev.Data, Errors: ev.Errors, HasNext: !ev.Done}
			if ev.Done {
				return
			}
		}
	}()

	return frames, nil
}

// toWebSocketURL rewrites a subgraph's HTTP(S) endpoint to its ws(s)
// equivalent; subgraphs serve both transports on the same path.
func toWebSocketURL(host string) (string, error) {
	switch {
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://"), nil
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://"), nil
	default:
		return "", fmt.Errorf("subscription: cannot derive a websocket URL from host %q", host)
	}
}
