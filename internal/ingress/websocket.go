package ingress

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
	"github.com/n9te9/go-graphql-federation-gateway/internal/streaming"
)

// WSHandler upgrades `GET /graphql` requests negotiating the
// `graphql-transport-ws` subprotocol and drives the server-side state
// machine. ExecuteSubscription plans and runs one subscription
// operation; it's supplied by the caller (cmd/gateway) rather than
// wired here, since it closes over the planner/executor/superGraph the
// plain HTTP Handler also holds.
type WSHandler struct {
	Authenticator       *auth.Authenticator
	ExecuteSubscription streaming.ExecuteFunc
	InitTimeout         time.Duration
	Logger              *slog.Logger
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"graphql-transport-ws"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	initTimeout := h.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 3 * time.Second
	}

	server := streaming.NewWSServerConn(conn, h.authorizeInit, initTimeout, h.Logger)
	_ = server.Serve(r.Context(), h.ExecuteSubscription, r.Header)
}

// authorizeInit authenticates a connection_init payload carrying
// `Authorization` the same way an HTTP request header would, mapping
// the Authenticator's verdict onto streaming's close-code sentinels.
func (h *WSHandler) authorizeInit(ctx context.Context, payload map[string]interface{}) error {
	if h.Authenticator == nil {
		return nil
	}

	headers := http.Header{}
	if v, ok := payload["Authorization"].(string); ok {
		headers.Set("Authorization", v)
	} else if v, ok := payload["authorization"].(string); ok {
		headers.Set("Authorization", v)
	}

	result := h.Authenticator.Authenticate(ctx, headers)
	switch result.Status {
	case auth.StatusRefused:
		return streaming.ErrUnauthorized
	case auth.StatusAnonymous, auth.StatusAuthenticated:
		return nil
	default:
		return nil
	}
}
