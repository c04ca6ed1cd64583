// Package tracing instruments one scheduler tick's dispatch and reconcile
// passes with OpenTelemetry spans, adapted from
// itsddvn-goclaw/internal/tracing/otelexport.Exporter's
// TracerProvider/Tracer construction. The teacher ships that span data to
// an OTLP collector; a scheduler process has no sidecar collector to dial,
// so this package swaps the OTLP exporter for one that writes completed
// spans to the structured logger — same SDK, same TracerProvider/Tracer
// shape, a different sink.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// slogExporter is an sdktrace.SpanExporter that logs each completed span
// instead of shipping it over OTLP.
type slogExporter struct{}

func (slogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := make([]any, 0, len(s.Attributes())*2+2)
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.AsInterface())
		}
		attrs = append(attrs, "duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds())
		if s.Status().Code == codes.Error {
			attrs = append(attrs, "status", "error", "status_description", s.Status().Description)
		}
		slog.Info("tick_span "+s.Name(), attrs...)
	}
	return nil
}

func (slogExporter) Shutdown(context.Context) error { return nil }

// Provider wraps the otel SDK tracer provider behind a scheduler-scoped
// Tracer, and owns the provider's graceful shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New builds a Provider whose spans are tagged with serviceName. Callers
// register it process-wide with otel.SetTracerProvider(p.TracerProvider())
// so every Tracer already handed out by otel's global accessor — including
// the one runtimectx.New obtains at startup, before this Provider exists —
// starts producing real spans instead of no-ops.
func New(serviceName string) *Provider {
	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(slogExporter{}),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp}
}

// Tracer returns the named tracer spans are created from.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// TracerProvider exposes the underlying SDK provider so a caller can
// register it as the process-wide default via otel.SetTracerProvider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes and stops the provider's span exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
