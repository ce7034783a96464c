package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff names how the delay grows between attempts.
type Backoff string

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential Backoff = "exponential"
	// BackoffLinear grows the delay by InitialDelay each attempt.
	BackoffLinear Backoff = "linear"
	// BackoffConstant waits InitialDelay between every attempt.
	BackoffConstant Backoff = "constant"
)

// RetryConfig configures retries of a failed store call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int `yaml:"maxAttempts"`

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration `yaml:"initialDelay"`

	// MaxDelay caps the delay between attempts.
	// Default: 5s
	MaxDelay time.Duration `yaml:"maxDelay"`

	// Multiplier scales the delay for exponential backoff.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// Backoff selects the delay curve.
	// Default: exponential
	Backoff Backoff `yaml:"backoff"`

	// Jitter adds up to 25% random delay.
	Jitter bool `yaml:"jitter"`

	// RetryIf reports whether err is worth another attempt.
	// Default: every error except context cancellation and an open circuit.
	RetryIf func(err error) bool `yaml:"-"`

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// Retry re-runs failed calls with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry, applying defaults to unset fields.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Backoff == "" {
		config.Backoff = BackoffExponential
	}
	if config.RetryIf == nil {
		config.RetryIf = retryable
	}
	return &Retry{config: config}
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrCircuitOpen)
}

// Execute calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. Exhaustion returns ErrMaxRetriesExceeded wrapping the
// last error.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !r.config.RetryIf(err) {
			return err
		}
		lastErr = err
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if r.config.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, r.config.MaxAttempts, lastErr)
}

func (r *Retry) delay(attempt int) time.Duration {
	var d time.Duration
	switch r.config.Backoff {
	case BackoffConstant:
		d = r.config.InitialDelay
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	default:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
