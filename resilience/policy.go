package resilience

import (
	"context"
	"time"
)

// PolicyConfig describes how calls to one backing store are guarded.
// The zero value guards nothing: calls run directly, with no deadline.
type PolicyConfig struct {
	// Timeout bounds every attempt. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	// Retry enables retries when set.
	Retry *RetryConfig `yaml:"retry"`

	// Breaker enables a circuit breaker when set.
	Breaker *BreakerConfig `yaml:"breaker"`

	// MaxConcurrent caps in-flight calls when positive.
	MaxConcurrent int `yaml:"maxConcurrent"`

	// RatePerSecond throttles calls when positive.
	RatePerSecond float64 `yaml:"ratePerSecond"`

	// Burst is the token bucket size used with RatePerSecond.
	// Default: 1
	Burst int `yaml:"burst"`

	// MaxWait bounds how long a call waits for a concurrency slot or a
	// rate token. Zero rejects immediately.
	MaxWait time.Duration `yaml:"maxWait"`
}

// Enabled reports whether the config guards anything.
func (c PolicyConfig) Enabled() bool {
	return c.Timeout > 0 || c.Retry != nil || c.Breaker != nil || c.MaxConcurrent > 0 || c.RatePerSecond > 0
}

// Policy composes the configured guards around a call.
//
// The wrapping order, outermost first, is: rate limiter, bulkhead, circuit
// breaker, retry, timeout. A rejected call therefore consumes neither a
// breaker count nor a retry attempt, and the deadline applies per attempt.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: cancellation stops waiting and retrying.
// - Errors: rejections wrap the package sentinels; op errors pass through.
type Policy struct {
	name     string
	limiter  *RateLimiter
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    *Retry
	timeout  *Timeout
}

// NewPolicy builds a Policy for the store identified by name.
func NewPolicy(name string, config PolicyConfig) *Policy {
	p := &Policy{name: name, timeout: NewTimeout(config.Timeout)}
	if config.RatePerSecond > 0 {
		p.limiter = NewRateLimiter(config.RatePerSecond, config.Burst, config.MaxWait)
	}
	if config.MaxConcurrent > 0 {
		p.bulkhead = NewBulkhead(config.MaxConcurrent, config.MaxWait)
	}
	if config.Breaker != nil {
		p.breaker = NewCircuitBreaker(name, *config.Breaker)
	}
	if config.Retry != nil {
		p.retry = NewRetry(*config.Retry)
	}
	return p
}

// Name returns the name the policy was built for.
func (p *Policy) Name() string {
	return p.name
}

// Breaker returns the circuit breaker, or nil when none is configured.
func (p *Policy) Breaker() *CircuitBreaker {
	return p.breaker
}

// Execute runs op through every configured guard.
func (p *Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	call := func(ctx context.Context) error {
		return p.timeout.Execute(ctx, op)
	}

	if p.retry != nil {
		inner := call
		call = func(ctx context.Context) error { return p.retry.Execute(ctx, inner) }
	}
	if p.breaker != nil {
		inner := call
		call = func(ctx context.Context) error { return p.breaker.Execute(ctx, inner) }
	}
	if p.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) error { return p.bulkhead.Execute(ctx, inner) }
	}
	if p.limiter != nil {
		inner := call
		call = func(ctx context.Context) error { return p.limiter.Execute(ctx, inner) }
	}

	return call(ctx)
}
