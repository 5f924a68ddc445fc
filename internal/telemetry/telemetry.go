// Package telemetry sets up the process's OpenTelemetry tracer provider
// and wraps command dispatch in spans.
package telemetry

import (
	"context"
	"log"
	"os"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/leengari/kvdb/internal/command"

// Setup installs a process-wide TracerProvider and returns a shutdown
// function to flush it on exit. Exporter wiring (OTLP endpoint, sampler
// ratio) is a deployment concern left to the caller's environment; this
// repo only provides the provider itself so every command dispatch
// produces a span tree an exporter can later pick up.
func Setup(serviceName string) func(context.Context) error {
	otel.SetLogger(stdr.New(log.New(os.Stderr, "otel: ", log.LstdFlags)))

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// StartCommandSpan starts a span named after the dispatched command,
// tagging it with the command name and the session it runs for.
func StartCommandSpan(ctx context.Context, commandName, sessionID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "command."+commandName)
	span.SetAttributes(
		attribute.String("kvdb.command", commandName),
		attribute.String("kvdb.session_id", sessionID),
	)
	return ctx, span
}

// RecordError marks the span as failed with the given error.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("kvdb.error", true))
}
