package observe

import (
	"context"
	"testing"
	"time"
)

func TestObserverContract_Noops(t *testing.T) {
	cfg := Config{
		ServiceName: "observe-test",
		Tracing:     TracingConfig{Enabled: false, Exporter: "none"},
		Metrics:     MetricsConfig{Enabled: false, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: false, Level: "info"},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	if obs.Tracer() == nil {
		t.Fatalf("expected non-nil tracer")
	}
	if obs.TracerProvider() == nil {
		t.Fatalf("expected non-nil tracer provider")
	}
	if obs.Meter() == nil {
		t.Fatalf("expected non-nil meter")
	}
	if obs.Logger() == nil {
		t.Fatalf("expected non-nil logger")
	}
	if obs.Registry() == nil {
		t.Fatalf("expected non-nil registry")
	}
}

func TestLoggerContract_With(t *testing.T) {
	logger := NewNopLogger()
	if logger.With(Field{Key: "queue", Value: "emails"}) == nil {
		t.Fatalf("With should return non-nil logger")
	}
	logger.Info(context.Background(), "ignored")
}

func TestMetricsContract_NoPanic(t *testing.T) {
	metrics := &noopMetrics{}
	metrics.RecordRequest(context.Background(), RequestMeta{Method: "GET"}, 200, 10*time.Millisecond)
}

func TestTracerContract_NoPanic(t *testing.T) {
	tracer := newNoopTracer()
	meta := RequestMeta{Method: "GET", Route: "/"}
	_, span := tracer.StartSpan(context.Background(), meta)
	tracer.EndSpan(span, meta, 200)
}
