package errorhandler

import "context"

// Report is one error sent to a Reporter.
type Report struct {
	Err     error
	Context map[string]any
}

// Reporter forwards errors to an external error tracker.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: reporting is best-effort; Report must not panic.
type Reporter interface {
	Report(ctx context.Context, report Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, report Report)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, report Report) {
	f(ctx, report)
}

// NopReporter discards every report.
type NopReporter struct{}

// Report does nothing.
func (NopReporter) Report(context.Context, Report) {}
