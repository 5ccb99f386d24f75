// Package trace wraps OpenTelemetry span creation for evaluation cycles.
// When tracing is disabled every call is a cheap no-op.
package trace

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
)

// Init installs a tracer provider exporting to stdout. A disabled tracer
// leaves StartSpan returning non-recording spans.
func Init(service string, enabled bool) error {
	return InitWriter(os.Stdout, service, enabled)
}

// InitWriter is Init with an explicit exporter destination.
func InitWriter(w io.Writer, service string, enabled bool) error {
	if !enabled {
		tracer, provider = nil, nil
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(service)),
	)
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(service)
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider != nil {
		return provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a span tagged with the instrument key.
func StartSpan(ctx context.Context, name, instrument string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, oteltrace.WithAttributes(attribute.String("instrument", instrument)))
}

// Enabled reports whether spans are being recorded.
func Enabled() bool {
	return tracer != nil
}
