package observe

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultLogSkipPaths lists utility endpoints that are served without a
// completion log line.
var DefaultLogSkipPaths = []string{"/", "/health", "/ready", "/live", "/metrics"}

// Middleware instruments HTTP handlers with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Handler() returns a handler safe for concurrent use.
//   - Context: the request context carries the server span downstream.
//   - Ownership: responses are passed through unmodified.
type Middleware struct {
	tracer    Tracer
	metrics   Metrics
	logger    Logger
	skipPaths []string
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Middleware{
		tracer:    tracer,
		metrics:   metrics,
		logger:    logger,
		skipPaths: DefaultLogSkipPaths,
	}
}

// WithSkipPaths replaces the set of paths served without a completion log.
// Spans and metrics are still recorded for them.
func (m *Middleware) WithSkipPaths(paths ...string) *Middleware {
	m.skipPaths = paths
	return m
}

// Handler wraps next with a server span, request metrics and a log line.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{Method: r.Method, Path: r.URL.Path}
		ctx, span := m.tracer.StartSpan(r.Context(), meta)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			meta.Route = rctx.RoutePattern()
		}

		m.tracer.EndSpan(span, meta, status)
		m.metrics.RecordRequest(ctx, meta, status, duration)

		if slices.Contains(m.skipPaths, r.URL.Path) {
			return
		}
		fields := []Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: status},
			{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
		}
		if status >= http.StatusInternalServerError {
			m.logger.Error(ctx, "request failed", fields...)
		} else {
			m.logger.Info(ctx, "request completed", fields...)
		}
	})
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
