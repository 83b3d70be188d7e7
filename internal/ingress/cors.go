package ingress

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSConfig mirrors the subset of `rs/cors` options the gateway's
// TOML config exposes.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

func corsMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedHeaders:   cfg.AllowedHeaders,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowCredentials: cfg.AllowCredentials,
	})
	return c.Handler
}
