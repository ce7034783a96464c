package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds a call. The call runs on its own goroutine so a client that
// ignores ctx cannot stall the caller past the deadline.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a Timeout of d. A non-positive d disables it.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{d: d}
}

// Execute runs op with the deadline applied.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if t.d <= 0 {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrTimeout, t.d, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, t.d)
		}
		return ctx.Err()
	}
}

// Duration returns the configured deadline.
func (t *Timeout) Duration() time.Duration {
	return t.d
}
