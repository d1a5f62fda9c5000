// Package observability provides the logging, metrics, and tracing setup
// shared by the daemon's components.
package observability

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName identifies this daemon to the tracing backend and is carried
// as a resource attribute on every span.
const ServiceName = "rteval-parserd"

// SetupTracing configures OTEL tracing when OTEL_EXPORTER_OTLP_ENDPOINT is
// set in the environment; tracing is an ambient concern independent of the
// daemon's own [xmlrpc_parser] configuration file. Returns a shutdown func,
// or a no-op if tracing is disabled.
func SetupTracing(ctx context.Context) (func(context.Context) error, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(ServiceName),
	))
	if err != nil {
		return nil, err
	}

	// Sample every span: this daemon's trace volume is bounded by its own
	// thread count, not by request fan-in, so there's no cost pressure to
	// sample down the way an HTTP-facing service would.
	sampler := trace.ParentBased(trace.TraceIDRatioBased(1.0))
	slog.Info("tracing configured", slog.String("endpoint", endpoint))

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
