package transaction

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set by OpenTelemetryManager.
const (
	AttrTransactionType  = "transaction.type"
	AttrTransactionGroup = "transaction.group"
	AttrEndUserID        = "enduser.id"
	AttrCodeNamespace    = "code.namespace"
	AttrCodeFunction     = "code.function"
)

// OpenTelemetryConfig configures an OpenTelemetryManager.
type OpenTelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// TracerName is the instrumentation scope name, not the service name.
	// Default: "unknown-tracer"
	TracerName string `yaml:"tracerName"`

	// TracerVersion is the instrumentation scope version.
	// Default: "1.0.0"
	TracerVersion string `yaml:"tracerVersion"`

	// MaxConcurrentSpans bounds the number of in-flight transactions.
	// Default: 2000
	MaxConcurrentSpans int `yaml:"maxConcurrentSpans"`
}

// OpenTelemetryManager records each background transaction as a root span.
//
// Every method is a no-op on a disabled manager.
type OpenTelemetryManager struct {
	enabled bool
	tracer  trace.Tracer
	table   *SpanTable
}

// NewOpenTelemetryManager creates a manager using provider, or the global
// tracer provider when provider is nil.
func NewOpenTelemetryManager(cfg OpenTelemetryConfig, provider trace.TracerProvider) *OpenTelemetryManager {
	if cfg.TracerName == "" {
		cfg.TracerName = "unknown-tracer"
	}
	if cfg.TracerVersion == "" {
		cfg.TracerVersion = "1.0.0"
	}
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	tracer := provider.Tracer(cfg.TracerName, trace.WithInstrumentationVersion(cfg.TracerVersion))
	return &OpenTelemetryManager{
		enabled: cfg.Enabled,
		tracer:  tracer,
		table:   NewSpanTable(cfg.MaxConcurrentSpans, OTelSpanFactory{Tracer: tracer}),
	}
}

// NewDisabledOpenTelemetryManager returns a manager that records nothing.
func NewDisabledOpenTelemetryManager() *OpenTelemetryManager {
	return NewOpenTelemetryManager(OpenTelemetryConfig{}, nil)
}

// Enabled reports whether the manager records spans.
func (m *OpenTelemetryManager) Enabled() bool {
	return m.enabled
}

// Start begins a background transaction span.
func (m *OpenTelemetryManager) Start(name, key string) error {
	if !m.enabled {
		return nil
	}
	return m.table.Start(name, key, attribute.String(AttrTransactionType, "background"))
}

// StartWithGroup begins a background transaction span tagged with group.
func (m *OpenTelemetryManager) StartWithGroup(name, key, group string) error {
	if !m.enabled {
		return nil
	}
	return m.table.Start(name, key,
		attribute.String(AttrTransactionType, "background"),
		attribute.String(AttrTransactionGroup, group),
	)
}

// Stop ends the transaction span under key.
func (m *OpenTelemetryManager) Stop(key string, wasSuccessful bool) {
	if !m.enabled {
		return
	}
	m.table.Stop(key, wasSuccessful)
}

// AddCustomAttributes sets attributes on the transaction span under key.
func (m *OpenTelemetryManager) AddCustomAttributes(key string, attrs map[string]any) {
	if !m.enabled {
		return
	}
	m.table.AddAttributes(key, toAttributes(attrs)...)
}

// AddCustomAttribute sets one attribute on the span active in ctx.
func (m *OpenTelemetryManager) AddCustomAttribute(ctx context.Context, name string, value any) {
	if !m.enabled {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(toAttribute(name, value))
}

// SetUserID records the end user on the span active in ctx.
func (m *OpenTelemetryManager) SetUserID(ctx context.Context, userID string) {
	if !m.enabled {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrEndUserID, userID))
}

// SetControllerName records the handling controller and action on the span
// active in ctx.
func (m *OpenTelemetryManager) SetControllerName(ctx context.Context, name, action string) {
	if !m.enabled {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(AttrCodeNamespace, name),
		attribute.String(AttrCodeFunction, action),
	)
}

// Span returns the in-flight span under key, or nil.
func (m *OpenTelemetryManager) Span(key string) trace.Span {
	if !m.enabled {
		return nil
	}
	return m.table.Get(key)
}

// Tracer returns the tracer spans are started from.
func (m *OpenTelemetryManager) Tracer() trace.Tracer {
	return m.tracer
}

// ContextWithSpan returns ctx carrying the span under key so that spans
// started from it become children. ctx is returned unchanged when no span is
// tracked under key.
func (m *OpenTelemetryManager) ContextWithSpan(ctx context.Context, key string) context.Context {
	span := m.Span(key)
	if span == nil {
		return ctx
	}
	return trace.ContextWithSpan(ctx, span)
}

// RunInSpanContext calls fn with a context carrying the span under key.
func (m *OpenTelemetryManager) RunInSpanContext(ctx context.Context, key string, fn func(context.Context) error) error {
	return fn(m.ContextWithSpan(ctx, key))
}

// Len returns the number of in-flight transactions.
func (m *OpenTelemetryManager) Len() int {
	return m.table.Len()
}

var _ Manager = (*OpenTelemetryManager)(nil)
