package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
TRACING LAYOUT

Two kinds of root spans reach the exporter:
  HTTP requests  → middleware.TracingMiddleware  ("GET /api/stats", "GET /ws", ...)
  inbound frames → Directory.Dispatch            (one span per websocket message)

A websocket connection lives for minutes, so every frame starts its own
trace instead of hanging off the upgrade request.
*/

// InitJaeger installs a global tracer provider exporting to a Jaeger
// collector. The returned function flushes and stops it.
func InitJaeger(serviceName, serviceVersion, jaegerEndpoint string) (func(context.Context) error, error) {
	// Create Jaeger exporter
	// Spans are pushed straight to the collector's HTTP endpoint
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	// Create resource with service information
	// This is what the Jaeger UI lists under "Service"
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider with Jaeger exporter
	// Dispatch spans are per frame; keep a tenth of root traces and follow
	// the parent decision for everything below them.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp), // Batch spans, frames arrive in bursts
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)

	// Set global tracer provider
	// middleware.StartSpan picks it up through otel.Tracer
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized: %s", jaegerEndpoint)

	// Return cleanup function
	// main calls it after the directory drains so the last spans are flushed
	return tp.Shutdown, nil
}
