package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n9te9/go-graphql-federation-gateway/internal/config"
	"github.com/n9te9/go-graphql-federation-gateway/internal/gatewaytel"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "A federated GraphQL gateway",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(gatewayVersion)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load every configured subgraph's SDL, compose the supergraph, and print diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		superGraph, err := buildSuperGraph(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("composed %d subgraph(s)\n", len(superGraph.SubGraphs))
		for _, d := range superGraph.Diagnostics {
			fmt.Printf("[%s] %s: %s\n", d.Severity, d.Code, d.Message)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gateway.toml", "path to the gateway's TOML configuration file")
	rootCmd.AddCommand(versionCmd, validateCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// runServe loads the configuration, wires up the gateway, and serves
// until an interrupt/TERM signal asks it to shut down gracefully —
// mirroring server/gateway.go's Run() (slog JSON logging, tracer
// init/shutdown, signal.NotifyContext, srv.Shutdown).
func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := gatewaytel.InitTracer(ctx, cfg.Telemetry.ServiceName, gatewayVersion, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler: a.router,
	}

	if cfg.TLS.Certificate != "" && cfg.TLS.Key != "" {
		go func() {
			slog.Info("starting gateway server", "port", cfg.Gateway.Port, "tls", true)
			if err := srv.ListenAndServeTLS(cfg.TLS.Certificate, cfg.TLS.Key); err != nil && err != http.ErrServerClosed {
				slog.Error("gateway server failed", "error", err)
				os.Exit(1)
			}
		}()
	} else {
		go func() {
			slog.Info("starting gateway server", "port", cfg.Gateway.Port, "tls", false)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("gateway server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Duration(cfg.Gateway.Timeout, 30*time.Second))
	defer shutdownCancel()

	slog.Info("shutting down gateway server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down gateway server: %w", err)
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down tracer: %w", err)
	}

	slog.Info("gateway server stopped")
	return nil
}
