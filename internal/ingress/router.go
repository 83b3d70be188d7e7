package ingress

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config assembles the fixed route surface named by §4.K and §6:
// `/graphql` (query/mutation + WS subscriptions), `/health`.
type Config struct {
	GraphQL       *Handler
	WebSocket     *WSHandler
	CORS          CORSConfig
	EnableTracing bool
	ServiceName   string
}

// NewRouter builds the gateway's top-level http.Handler: CORS, then
// OTel instrumentation (mirroring server/gateway.go's
// `otelhttp.NewHandler(gw, settings.ServiceName)` wrap), then routing.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			if cfg.WebSocket != nil {
				cfg.WebSocket.ServeHTTP(w, r)
				return
			}
			w.WriteHeader(http.StatusUpgradeRequired)
			return
		}
		cfg.GraphQL.ServeHTTP(w, r)
	})

	mux.HandleFunc("/health", handleHealth)

	var handler http.Handler = mux
	if cfg.EnableTracing {
		handler = otelhttp.NewHandler(handler, cfg.ServiceName)
	}
	handler = corsMiddleware(cfg.CORS)(handler)

	return handler
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
