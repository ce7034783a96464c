package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout is the maximum time to wait for all checks.
	// Default: 10 seconds
	Timeout time.Duration

	// Parallel runs health checks in parallel when true.
	// Default: true
	Parallel bool
}

// Result is the aggregated outcome of a set of checks.
//
// FullyHealthy and PartiallyHealthy are never both true; when both are
// false the state is FAIL.
type Result struct {
	FullyHealthy     bool
	PartiallyHealthy bool

	// Checks maps each check name to HEALTHY or FAIL.
	Checks map[string]Heartbeat

	// Outcomes holds the individual outcomes in check order.
	Outcomes []Outcome
}

// Heartbeat returns the single state encoded by the result flags.
func (r Result) Heartbeat() Heartbeat {
	switch {
	case r.FullyHealthy:
		return HeartbeatHealthy
	case r.PartiallyHealthy:
		return HeartbeatPartiallyHealthy
	default:
		return HeartbeatFail
	}
}

// Healthy reports whether the result should be served as a success,
// which includes the partially healthy state.
func (r Result) Healthy() bool {
	return r.FullyHealthy || r.PartiallyHealthy
}

// AggregatedView collapses per-check detail into a single entry.
func (r Result) AggregatedView() map[string]Heartbeat {
	return map[string]Heartbeat{"aggregation": r.Heartbeat()}
}

// Failed returns the outcomes of failed checks in check order.
func (r Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Aggregate folds outcomes into a Result.
//
// The result is fully healthy when no check failed, partially healthy when
// only optional checks failed and failing otherwise. It does not depend on
// the order of outcomes. No outcomes means fully healthy.
func Aggregate(outcomes []Outcome) Result {
	res := Result{
		FullyHealthy: true,
		Checks:       make(map[string]Heartbeat, len(outcomes)),
		Outcomes:     outcomes,
	}

	var mandatoryFailed, optionalFailed bool
	for _, o := range outcomes {
		if !o.Failed() {
			res.Checks[o.Name] = HeartbeatHealthy
			continue
		}
		res.Checks[o.Name] = HeartbeatFail
		if o.Mandatory {
			mandatoryFailed = true
		} else {
			optionalFailed = true
		}
	}

	if mandatoryFailed || optionalFailed {
		res.FullyHealthy = false
		res.PartiallyHealthy = !mandatoryFailed
	}
	return res
}

// Run executes checks and returns one outcome per check in input order.
//
// A failing, panicking or timed out check never prevents the others from
// running. ctx bounds every check.
func Run(ctx context.Context, checks []Check, cfg AggregatorConfig) []Outcome {
	outcomes := make([]Outcome, len(checks))
	if len(checks) == 0 {
		return outcomes
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if cfg.Parallel {
		var wg sync.WaitGroup
		for i, c := range checks {
			wg.Add(1)
			go func(i int, c Check) {
				defer wg.Done()
				outcomes[i] = runCheck(ctx, c)
			}(i, c)
		}
		wg.Wait()
	} else {
		for i, c := range checks {
			outcomes[i] = runCheck(ctx, c)
		}
	}

	return outcomes
}

func runCheck(ctx context.Context, c Check) Outcome {
	start := time.Now()
	outcome := Outcome{Name: c.Name, Mandatory: c.Mandatory}

	if c.Checker == nil {
		outcome.Err = ErrNilChecker
		return outcome
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("%w: %v", ErrCheckPanicked, r)
			}
		}()
		errCh <- c.Checker(ctx)
	}()

	select {
	case err := <-errCh:
		outcome.Err = err
	case <-ctx.Done():
		outcome.Err = fmt.Errorf("%w: %w", ErrCheckTimeout, ctx.Err())
	}
	outcome.Duration = time.Since(start)
	return outcome
}

// Aggregator holds a set of checks and evaluates them together.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: Evaluate honors cancellation and the configured timeout.
// - Errors: check failures are reported in the Result, never returned.
type Aggregator struct {
	config AggregatorConfig
	mu     sync.RWMutex
	checks []Check
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	cfg := AggregatorConfig{
		Timeout:  10 * time.Second,
		Parallel: true,
	}
	if len(config) > 0 {
		cfg = config[0]
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Second
		}
	}

	return &Aggregator{config: cfg}
}

// Register adds checks. A check whose name is already registered replaces
// the previous one and keeps its position.
func (a *Aggregator) Register(checks ...Check) {
	a.mu.Lock()
	defer a.mu.Unlock()

next:
	for _, c := range checks {
		for i := range a.checks {
			if a.checks[i].Name == c.Name {
				a.checks[i] = c
				continue next
			}
		}
		a.checks = append(a.checks, c)
	}
}

// Unregister removes the check with the given name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, c := range a.checks {
		if c.Name == name {
			a.checks = append(a.checks[:i], a.checks[i+1:]...)
			return
		}
	}
}

// Checks returns the registered checks in registration order.
func (a *Aggregator) Checks() []Check {
	a.mu.RLock()
	defer a.mu.RUnlock()

	checks := make([]Check, len(a.checks))
	copy(checks, a.checks)
	return checks
}

// Config returns the aggregator configuration.
func (a *Aggregator) Config() AggregatorConfig {
	return a.config
}

// Evaluate runs every registered check and aggregates the outcomes.
func (a *Aggregator) Evaluate(ctx context.Context) Result {
	return Aggregate(Run(ctx, a.Checks(), a.config))
}
