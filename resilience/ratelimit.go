package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls to a store with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewRateLimiter allows perSecond calls per second with the given burst.
// Callers wait up to maxWait for a token; zero means fail immediately.
func NewRateLimiter(perSecond float64, burst int, maxWait time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		maxWait: maxWait,
	}
}

// Execute runs op once a token is available or returns ErrRateLimitExceeded.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if !rl.limiter.Allow() {
		if rl.maxWait <= 0 {
			return ErrRateLimitExceeded
		}
		waitCtx, cancel := context.WithTimeout(ctx, rl.maxWait)
		err := rl.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrRateLimitExceeded
		}
	}
	return op(ctx)
}

// Limit returns the configured rate in calls per second.
func (rl *RateLimiter) Limit() float64 {
	return float64(rl.limiter.Limit())
}
