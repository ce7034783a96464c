package health

import (
	"context"
	"time"
)

// Heartbeat is the overall health state reported to callers.
type Heartbeat string

const (
	// HeartbeatHealthy means every check passed.
	HeartbeatHealthy Heartbeat = "HEALTHY"
	// HeartbeatPartiallyHealthy means only optional checks failed.
	HeartbeatPartiallyHealthy Heartbeat = "PARTIALLY_HEALTHY"
	// HeartbeatFail means at least one mandatory check failed.
	HeartbeatFail Heartbeat = "FAIL"
)

// CheckFunc probes a dependency. A nil error means the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Check is a named health check.
type Check struct {
	// Name identifies the check in responses and metrics.
	Name string

	// Mandatory checks turn the overall state to FAIL when they fail.
	// Optional checks can only degrade it to PARTIALLY_HEALTHY.
	Mandatory bool

	// Checker performs the probe.
	Checker CheckFunc
}

// Checker is implemented by components that carry their own check.
type Checker interface {
	// Name returns the name of this checker.
	Name() string

	// Check returns nil when the component is healthy.
	Check(ctx context.Context) error
}

// FromChecker adapts a Checker to a Check.
func FromChecker(c Checker, mandatory bool) Check {
	return Check{Name: c.Name(), Mandatory: mandatory, Checker: c.Check}
}

// Outcome is the result of running a single Check.
type Outcome struct {
	Name      string
	Mandatory bool
	Err       error
	Duration  time.Duration
}

// Failed reports whether the check failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// InfoProvider contributes a named block of data to detailed health responses.
type InfoProvider struct {
	Name    string
	Resolve func() map[string]any
}
