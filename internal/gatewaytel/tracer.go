// Package gatewaytel wires up OpenTelemetry tracing for the gateway
// process. The teacher's `server/gateway.go` calls a `gateway.InitTracer`
// that is never defined anywhere in the teacher repo; this package
// supplies the missing implementation using the OTel SDK packages the
// teacher already imports for `otelhttp.NewHandler`/`NewTransport`.
package gatewaytel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Shutdown flushes and stops the tracer provider installed by InitTracer.
type Shutdown func(ctx context.Context) error

// InitTracer builds and installs a global tracer provider exporting
// spans via OTLP/HTTP, matching `telemetry.tracing.*` in the gateway's
// TOML config. When endpoint is empty, tracing is a no-op: the default
// (unconfigured) provider is left in place and Shutdown does nothing.
func InitTracer(ctx context.Context, serviceName, serviceVersion, endpoint string, sampleRatio float64) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("gatewaytel: building OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("gatewaytel: building resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatioOrDefault(sampleRatio)))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func sampleRatioOrDefault(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		return 1
	}
	return ratio
}
