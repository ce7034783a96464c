package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/opsplug/observe"
)

// HandlerConfig configures the health HTTP handlers.
type HandlerConfig struct {
	// ResponsePayload is merged into every response body. Keys written by
	// the handler (heartbeat, checks, extraInfo) take precedence.
	ResponsePayload map[string]any

	// InfoProviders contribute the extraInfo block of detailed responses.
	InfoProviders []InfoProvider

	// DisableRootRoute skips mounting the detailed handler on "/".
	DisableRootRoute bool

	// AggregatedOnly replaces per-check detail in detailed responses with
	// {"aggregation": <heartbeat>}.
	AggregatedOnly bool

	// Logger receives one error entry per failed check.
	// Default: no-op logger
	Logger observe.Logger
}

// Handler serves health state over HTTP.
type Handler struct {
	agg    *Aggregator
	config HandlerConfig
}

// NewHandler creates a Handler for agg.
func NewHandler(agg *Aggregator, config HandlerConfig) *Handler {
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}
	return &Handler{agg: agg, config: config}
}

type infoEntry struct {
	Name  string         `json:"name"`
	Value map[string]any `json:"value"`
}

// Detailed returns a handler reporting the heartbeat, per-check states and
// extra info. It answers 200 for HEALTHY and PARTIALLY_HEALTHY, 500 for FAIL.
func (h *Handler) Detailed() http.HandlerFunc {
	return h.serve(true)
}

// Heartbeat returns a handler reporting only the heartbeat, with the same
// status codes as Detailed.
func (h *Handler) Heartbeat() http.HandlerFunc {
	return h.serve(false)
}

func (h *Handler) serve(detailed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result := h.agg.Evaluate(ctx)

		for _, o := range result.Failed() {
			h.config.Logger.Error(ctx, o.Name+" healthcheck has failed", observe.Err(o.Err))
		}

		body := make(map[string]any, len(h.config.ResponsePayload)+3)
		for k, v := range h.config.ResponsePayload {
			body[k] = v
		}
		body["heartbeat"] = result.Heartbeat()

		if detailed {
			if h.config.AggregatedOnly {
				body["checks"] = result.AggregatedView()
			} else {
				body["checks"] = result.Checks
			}
			if len(h.config.InfoProviders) > 0 {
				info := make([]infoEntry, 0, len(h.config.InfoProviders))
				for _, p := range h.config.InfoProviders {
					info = append(info, infoEntry{Name: p.Name, Value: p.Resolve()})
				}
				body["extraInfo"] = info
			}
		}

		status := http.StatusOK
		if !result.Healthy() {
			status = http.StatusInternalServerError
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// LivenessHandler returns an HTTP handler for liveness probes.
// This is a simple check that the service is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes.
// The body is the heartbeat as plain text.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := agg.Evaluate(r.Context())

		w.Header().Set("Content-Type", "text/plain")
		if result.Healthy() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(result.Heartbeat()))
	}
}

// Mount registers the health routes on r:
//
//	GET /        detailed response (unless DisableRootRoute)
//	GET /health  heartbeat only
//	GET /live    liveness probe
//	GET /ready   readiness probe
func (h *Handler) Mount(r chi.Router) {
	if !h.config.DisableRootRoute {
		r.Get("/", h.Detailed())
	}
	r.Get("/health", h.Heartbeat())
	r.Get("/live", LivenessHandler())
	r.Get("/ready", ReadinessHandler(h.agg))
}
