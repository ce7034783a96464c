package observe

import "errors"

// Errors returned by Config.Validate.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")
)

var (
	// ErrNilObserver is returned by MiddlewareFromObserver(nil).
	ErrNilObserver = errors.New("observe: observer is nil")

	// ErrNilRegisterer is returned by Register when no registerer is given.
	ErrNilRegisterer = errors.New("observe: registerer is nil")

	// ErrCollectorMismatch means a collector with the same descriptor is
	// already registered under a different Go type.
	ErrCollectorMismatch = errors.New("observe: registered collector has a different type")
)
