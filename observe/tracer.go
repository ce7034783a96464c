package observe

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RequestMeta describes an inbound HTTP request for telemetry purposes.
type RequestMeta struct {
	Method string // HTTP method (required)
	Route  string // Route pattern, e.g. /queues/{name} (may be empty)
	Path   string // Raw URL path
}

// SpanName returns the span name for this request.
// Format: "<METHOD> <route>" or "HTTP <METHOD>" when the route is unknown.
func (m RequestMeta) SpanName() string {
	if m.Route != "" {
		return m.Method + " " + m.Route
	}
	return "HTTP " + m.Method
}

func (m RequestMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", m.Method),
	}
	if m.Route != "" {
		attrs = append(attrs, attribute.String("http.route", m.Route))
	}
	if m.Path != "" {
		attrs = append(attrs, attribute.String("url.path", m.Path))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with request span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a server span for the request.
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)

	// EndSpan records the final route and status code and ends the span.
	// Status codes of 500 and above mark the span as failed.
	EndSpan(span trace.Span, meta RequestMeta, status int)
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

type tracerImpl struct {
	tracer trace.Tracer
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, meta RequestMeta, status int) {
	// The route is only known once the router has matched.
	if meta.Route != "" {
		span.SetName(meta.SpanName())
		span.SetAttributes(attribute.String("http.route", meta.Route))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, meta RequestMeta, status int) {
	span.End()
}
