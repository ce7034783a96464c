package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of concurrent calls to a store.
type Bulkhead struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
}

// NewBulkhead allows maxConcurrent calls at once. Callers beyond the limit
// wait up to maxWait for a slot; zero means fail immediately.
func NewBulkhead(maxConcurrent int, maxWait time.Duration) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Execute runs op in a free slot or returns ErrBulkheadFull.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.sem.TryAcquire(1) {
		if b.maxWait <= 0 {
			return ErrBulkheadFull
		}
		waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
		err := b.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Join(ErrBulkheadFull, err)
		}
	}
	defer b.sem.Release(1)

	return op(ctx)
}

// Capacity returns the concurrency limit.
func (b *Bulkhead) Capacity() int {
	return int(b.max)
}
