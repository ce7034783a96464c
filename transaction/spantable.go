package transaction

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/opsplug/cache"
)

// DefaultMaxConcurrentSpans is the SpanTable capacity used when none is given.
const DefaultMaxConcurrentSpans = 2000

// Status descriptions set on spans the table ends on its own.
const (
	ReplacedDescription = "Span replaced with new span for same key"
	EvictedDescription  = "Span evicted due to capacity limits"
)

// SpanFactory creates spans for the table.
type SpanFactory interface {
	StartSpan(name string, attrs ...attribute.KeyValue) (trace.Span, error)
}

// SpanFactoryFunc adapts a function to SpanFactory.
type SpanFactoryFunc func(name string, attrs ...attribute.KeyValue) (trace.Span, error)

// StartSpan calls f.
func (f SpanFactoryFunc) StartSpan(name string, attrs ...attribute.KeyValue) (trace.Span, error) {
	return f(name, attrs...)
}

// OTelSpanFactory starts root spans from an OpenTelemetry tracer.
type OTelSpanFactory struct {
	Tracer trace.Tracer
}

// StartSpan starts a new internal root span.
func (f OTelSpanFactory) StartSpan(name string, attrs ...attribute.KeyValue) (trace.Span, error) {
	_, span := f.Tracer.Start(context.Background(), name,
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return span, nil
}

// SpanTable is a bounded, insertion-ordered map from transaction key to its
// in-flight span.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Capacity: Len() never exceeds the configured capacity.
// - Ownership: once Start succeeds the table ends the span exactly once,
// on Stop, on replacement by the same key, or on eviction.
type SpanTable struct {
	mu      sync.Mutex
	spans   *cache.FIFO[string, trace.Span]
	factory SpanFactory
}

// NewSpanTable creates a table holding at most capacity spans.
// A capacity of 0 or less selects DefaultMaxConcurrentSpans.
func NewSpanTable(capacity int, factory SpanFactory) *SpanTable {
	if capacity <= 0 {
		capacity = DefaultMaxConcurrentSpans
	}
	return &SpanTable{
		spans:   cache.NewFIFO[string, trace.Span](capacity),
		factory: factory,
	}
}

// Start creates a span named name and tracks it under key.
//
// If key is already tracked the previous span is ended with an OK status
// and replaced in place. If the table is full the oldest span is ended with
// an error status and dropped first. A factory failure leaves the table
// untouched.
func (t *SpanTable) Start(name, key string, attrs ...attribute.KeyValue) error {
	span, err := t.factory.StartSpan(name, attrs...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpanStart, err)
	}
	if span == nil {
		return fmt.Errorf("%w: factory returned nil span", ErrSpanStart)
	}

	t.mu.Lock()
	replaced, hadKey := t.spans.Get(key)
	evicted, didEvict := t.spans.Set(key, span)
	t.mu.Unlock()

	if hadKey {
		replaced.SetStatus(codes.Ok, ReplacedDescription)
		replaced.End()
	}
	if didEvict {
		evicted.Value.SetStatus(codes.Error, EvictedDescription)
		evicted.Value.End()
	}
	return nil
}

// Stop ends the span tracked under key and forgets it.
// Unknown keys are ignored.
func (t *SpanTable) Stop(key string, wasSuccessful bool) {
	t.mu.Lock()
	span, ok := t.spans.Delete(key)
	t.mu.Unlock()
	if !ok {
		return
	}

	if wasSuccessful {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "")
	}
	span.End()
}

// Get returns the span tracked under key, or nil.
// It does not affect eviction order.
func (t *SpanTable) Get(key string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	span, _ := t.spans.Get(key)
	return span
}

// AddAttributes sets attrs on the span tracked under key.
// Unknown keys are ignored.
func (t *SpanTable) AddAttributes(key string, attrs ...attribute.KeyValue) {
	if span := t.Get(key); span != nil {
		span.SetAttributes(attrs...)
	}
}

// Len returns the number of tracked spans.
func (t *SpanTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spans.Len()
}

// Cap returns the table capacity.
func (t *SpanTable) Cap() int {
	return t.spans.Cap()
}
