package errorhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/opsplug/observe"
)

// Payload is the JSON body of an error response.
type Payload struct {
	Message   string         `json:"message"`
	ErrorCode string         `json:"errorCode"`
	Details   map[string]any `json:"details,omitempty"`
}

// Response is a resolved error response.
type Response struct {
	StatusCode int
	Payload    Payload
}

// Config configures a Handler.
type Config struct {
	// Reporter receives every error answered with a 5xx status.
	// Default: NopReporter
	Reporter Reporter

	// Logger receives one error entry per 5xx response.
	// Default: no-op logger
	Logger observe.Logger

	// ResolveResponse overrides the response for err. Returning false falls
	// back to the built-in resolution.
	ResolveResponse func(err error) (Response, bool)

	// ResolveLog overrides the fields logged for err. Returning nil falls
	// back to the built-in fields.
	ResolveLog func(err error) []observe.Field
}

// Handler renders errors as JSON responses.
type Handler struct {
	config Config
}

// New creates a Handler.
func New(config Config) *Handler {
	if config.Reporter == nil {
		config.Reporter = NopReporter{}
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}
	return &Handler{config: config}
}

// HandlerFunc is an HTTP handler that may fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap adapts fn to http.HandlerFunc, passing its error to Handle.
func (h *Handler) Wrap(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Handle(w, r, err)
		}
	}
}

// Handle writes the response for err. Errors answered with a 5xx status
// are logged and reported.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	resp, ok := Response{}, false
	if h.config.ResolveResponse != nil {
		resp, ok = h.config.ResolveResponse(err)
	}
	if !ok {
		resp = Resolve(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		h.report(r, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp.Payload)
}

func (h *Handler) report(r *http.Request, err error) {
	ctx := r.Context()

	request := map[string]any{
		"url":    r.URL.String(),
		"method": r.Method,
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			request["routerPath"] = pattern
		}
		if len(rc.URLParams.Keys) > 0 {
			params := make(map[string]string, len(rc.URLParams.Keys))
			for i, k := range rc.URLParams.Keys {
				params[k] = rc.URLParams.Values[i]
			}
			request["params"] = params
		}
	}
	reportCtx := map[string]any{"request": request}
	if id := observe.RequestIDFromContext(ctx); id != "" {
		reportCtx["x-request-id"] = id
	}
	h.config.Reporter.Report(ctx, Report{Err: err, Context: reportCtx})

	var fields []observe.Field
	if h.config.ResolveLog != nil {
		fields = h.config.ResolveLog(err)
	}
	if fields == nil {
		fields = LogFields(err)
	}
	h.config.Logger.Error(ctx, "request failed", fields...)
}

// Recover is middleware that turns handler panics into 500 responses.
// http.ErrAbortHandler is re-raised. Nothing is written when the handler
// already started the response.
func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if ok {
				err = fmt.Errorf("%w: %w", ErrPanic, err)
			} else {
				err = fmt.Errorf("%w: %v", ErrPanic, rec)
			}
			h.config.Logger.Error(r.Context(), "panic recovered",
				observe.Err(err),
				observe.Field{Key: "stack", Value: string(debug.Stack())},
			)

			if ww.Status() != 0 || ww.BytesWritten() > 0 {
				h.report(r, err)
				return
			}
			h.Handle(ww, r, err)
		}()
		next.ServeHTTP(ww, r)
	})
}

// Resolve maps err to its default response.
func Resolve(err error) Response {
	var pub *PublicError
	if errors.As(err, &pub) {
		status := pub.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return Response{
			StatusCode: status,
			Payload:    Payload{Message: pub.Message, ErrorCode: pub.Code, Details: pub.Details},
		}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		issues := verr.Issues
		if issues == nil {
			issues = []Issue{}
		}
		return Response{
			StatusCode: http.StatusBadRequest,
			Payload: Payload{
				Message:   "Invalid params",
				ErrorCode: CodeValidation,
				Details:   map[string]any{"error": issues},
			},
		}
	}

	return Response{
		StatusCode: http.StatusInternalServerError,
		Payload:    Payload{Message: "Internal server error", ErrorCode: CodeInternal},
	}
}

// LogFields returns the default log fields for err. InternalError code and
// details are included.
func LogFields(err error) []observe.Field {
	var ierr *InternalError
	if errors.As(err, &ierr) {
		fields := []observe.Field{
			{Key: "code", Value: ierr.Code},
			observe.Err(err),
		}
		if len(ierr.Details) > 0 {
			if b, jerr := json.Marshal(ierr.Details); jerr == nil {
				fields = append(fields, observe.Field{Key: "details", Value: string(b)})
			}
		}
		return fields
	}
	return []observe.Field{observe.Err(err)}
}
