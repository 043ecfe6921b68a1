package telemetry

import (
	"context"
	"fmt"

	"docsync/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ShutdownFunc flushes pending spans and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// noopShutdown is returned when tracing is disabled.
func noopShutdown(context.Context) error { return nil }

/*
LEARNING: WHAT SHOWS UP IN JAEGER

Two kinds of trace come out of the server:

  HTTP request root span (middleware.TracingMiddleware)
    └── WebSocket.Connect

  Collaboration.Dispatch (one trace per inbound websocket message)
    └── Access.Resolve → Repository.GetDocument / Repository.GetShares

Dispatch spans start a new trace with a link to WebSocket.Connect rather
than nesting under it. Search by connection.id to see every message of one
connection; follow the link to get from a message back to its upgrade.

The sampler is ParentBased: a child follows its parent, and every new root
(each HTTP request and each message) is sampled on its own.
*/

// InitJaeger installs a global tracer provider exporting to the Jaeger collector.
// When enabled is false nothing is installed and the returned shutdown is a no-op,
// so the otel global no-op tracer is used everywhere.
func InitJaeger(serviceName, jaegerEndpoint string, enabled bool) (ShutdownFunc, error) {
	logger := logging.DefaultLogger()
	if !enabled {
		logger.Info("Tracing disabled")
		return noopShutdown, nil
	}

	// Learning: the exporter only knows where to send; batching happens in
	// the tracer provider below
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Cursor traffic is high volume; keep the parent's decision and sample
	// a quarter of new roots.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25))),
	)

	otel.SetTracerProvider(tp)

	logger.Infof("✓ Jaeger tracing initialized: %s", jaegerEndpoint)

	return tp.Shutdown, nil
}
