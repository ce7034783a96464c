package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestRequestMeta_SpanName(t *testing.T) {
	tests := []struct {
		name string
		meta RequestMeta
		want string
	}{
		{name: "with route", meta: RequestMeta{Method: "GET", Route: "/health"}, want: "GET /health"},
		{name: "without route", meta: RequestMeta{Method: "POST"}, want: "HTTP POST"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.meta.SpanName(); got != tc.want {
				t.Errorf("SpanName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracer_StartEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := NewTracer(tp.Tracer("test"))

	meta := RequestMeta{Method: "GET", Path: "/queues/emails"}
	_, span := tr.StartSpan(context.Background(), meta)

	meta.Route = "/queues/{name}"
	tr.EndSpan(span, meta, 200)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "GET /queues/{name}" {
		t.Errorf("span name = %q, want %q", s.Name(), "GET /queues/{name}")
	}
	if s.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", s.SpanKind())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
	if v, ok := spanAttr(s.Attributes(), "http.response.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.response.status_code = %v, want 200", v.Emit())
	}
	if v, ok := spanAttr(s.Attributes(), "url.path"); !ok || v.AsString() != "/queues/emails" {
		t.Errorf("url.path = %v, want /queues/emails", v.Emit())
	}
}

func TestTracer_ServerErrorMarksSpan(t *testing.T) {
	tests := []struct {
		status int
		want   codes.Code
	}{
		{status: 200, want: codes.Ok},
		{status: 404, want: codes.Ok},
		{status: 500, want: codes.Error},
		{status: 503, want: codes.Error},
	}
	for _, tc := range tests {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		tr := NewTracer(tp.Tracer("test"))

		meta := RequestMeta{Method: "GET"}
		_, span := tr.StartSpan(context.Background(), meta)
		tr.EndSpan(span, meta, tc.status)

		if got := recorder.Ended()[0].Status().Code; got != tc.want {
			t.Errorf("status %d: span code = %v, want %v", tc.status, got, tc.want)
		}
	}
}
