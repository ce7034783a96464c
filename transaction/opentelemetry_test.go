package transaction

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingManager(cfg OpenTelemetryConfig) (*OpenTelemetryManager, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	cfg.Enabled = true
	return NewOpenTelemetryManager(cfg, tp), recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestOpenTelemetryManager_StartStop(t *testing.T) {
	m, recorder := newRecordingManager(OpenTelemetryConfig{})

	if err := m.Start("send-email", "job-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.Span("job-1") == nil {
		t.Fatal("Span() should return the in-flight span")
	}
	m.Stop("job-1", false)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	s := ended[0]
	if s.Name() != "send-email" {
		t.Errorf("span name = %q, want send-email", s.Name())
	}
	if v, _ := attrValue(s.Attributes(), AttrTransactionType); v != "background" {
		t.Errorf("%s = %q, want background", AttrTransactionType, v)
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}
	if s.InstrumentationScope().Name != "unknown-tracer" || s.InstrumentationScope().Version != "1.0.0" {
		t.Errorf("scope = %+v, want unknown-tracer@1.0.0", s.InstrumentationScope())
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestOpenTelemetryManager_StartWithGroup(t *testing.T) {
	m, recorder := newRecordingManager(OpenTelemetryConfig{TracerName: "jobs", TracerVersion: "2.0.0"})

	_ = m.StartWithGroup("sync-user", "job-1", "sync")
	m.AddCustomAttributes("job-1", map[string]any{"attempt": 3, "queue": "users"})
	m.Stop("job-1", true)

	s := recorder.Ended()[0]
	if v, _ := attrValue(s.Attributes(), AttrTransactionGroup); v != "sync" {
		t.Errorf("%s = %q, want sync", AttrTransactionGroup, v)
	}
	if v, _ := attrValue(s.Attributes(), "attempt"); v != "3" {
		t.Errorf("attempt = %q, want 3", v)
	}
	if v, _ := attrValue(s.Attributes(), "queue"); v != "users" {
		t.Errorf("queue = %q, want users", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
	if s.InstrumentationScope().Name != "jobs" {
		t.Errorf("scope name = %q, want jobs", s.InstrumentationScope().Name)
	}
}

func TestOpenTelemetryManager_EvictsBeyondMaxConcurrentSpans(t *testing.T) {
	m, recorder := newRecordingManager(OpenTelemetryConfig{MaxConcurrentSpans: 2})

	_ = m.Start("job", "a")
	_ = m.Start("job", "b")
	_ = m.Start("job", "c")

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 evicted span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error || ended[0].Status().Description != EvictedDescription {
		t.Errorf("evicted status = %+v", ended[0].Status())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestOpenTelemetryManager_ActiveSpanHelpers(t *testing.T) {
	m, recorder := newRecordingManager(OpenTelemetryConfig{})

	ctx, span := m.Tracer().Start(context.Background(), "request")
	m.AddCustomAttribute(ctx, "tenant", "acme")
	m.SetUserID(ctx, "user-7")
	m.SetControllerName(ctx, "QueueController", "list")
	span.End()

	s := recorder.Ended()[0]
	want := map[string]string{
		"tenant":          "acme",
		AttrEndUserID:     "user-7",
		AttrCodeNamespace: "QueueController",
		AttrCodeFunction:  "list",
	}
	for k, v := range want {
		if got, _ := attrValue(s.Attributes(), k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestOpenTelemetryManager_RunInSpanContext(t *testing.T) {
	m, recorder := newRecordingManager(OpenTelemetryConfig{})
	_ = m.Start("import", "job-1")

	err := m.RunInSpanContext(context.Background(), "job-1", func(ctx context.Context) error {
		_, child := m.Tracer().Start(ctx, "parse")
		child.End()
		return nil
	})
	if err != nil {
		t.Fatalf("RunInSpanContext() error = %v", err)
	}
	m.Stop("job-1", true)

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	child, parent := ended[0], ended[1]
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("child span should be parented to the transaction span")
	}

	// Unknown keys run fn with the original context.
	called := false
	_ = m.RunInSpanContext(context.Background(), "missing", func(context.Context) error {
		called = true
		return nil
	})
	if !called {
		t.Error("fn should run even when the key is unknown")
	}
}

func TestOpenTelemetryManager_Disabled(t *testing.T) {
	m := NewDisabledOpenTelemetryManager()

	if m.Enabled() {
		t.Fatal("Enabled() = true, want false")
	}
	if err := m.Start("job", "a"); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if m.Span("a") != nil {
		t.Error("disabled manager must not track spans")
	}
	m.Stop("a", true)
	m.AddCustomAttributes("a", map[string]any{"x": 1})
	m.SetUserID(context.Background(), "u")
	if m.Tracer() == nil {
		t.Error("Tracer() should never be nil")
	}
}
