package queuemetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/resilience"
)

// observedQueue owns the queue handle and event subscription of one ref.
type observedQueue struct {
	ref     QueueRef
	queue   Queue
	events  Events
	metrics *metricSet
	policy  *resilience.Policy
	logger  observe.Logger
}

func newObservedQueue(ctx context.Context, ref QueueRef, conn Connector, m *metricSet, p *resilience.Policy, logger observe.Logger) (*observedQueue, error) {
	q, err := conn.OpenQueue(ctx, ref)
	if err != nil {
		return nil, err
	}
	ev, err := conn.OpenEvents(ctx, ref)
	if err != nil {
		_ = q.Close()
		return nil, err
	}

	o := &observedQueue{
		ref:     ref,
		queue:   q,
		events:  ev,
		metrics: m,
		policy:  p,
		logger:  logger.With(observe.Field{Key: "queue", Value: ref.String()}),
	}
	ev.On(EventCompleted, o.onFinished)
	ev.On(EventFailed, o.onFinished)
	return o, nil
}

func (o *observedQueue) labels(status string) []string {
	var store string
	if o.ref.Store != nil {
		store = o.ref.Store.Name
	}
	return []string{status, o.ref.Queue, store}
}

// collect sets the job gauges for states.
func (o *observedQueue) collect(ctx context.Context, states []string) error {
	var counts map[string]int64
	err := o.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		counts, err = o.queue.JobCounts(ctx, states...)
		return err
	})
	if err != nil {
		return err
	}

	for _, s := range states {
		o.metrics.jobs.WithLabelValues(o.labels(s)...).Set(float64(counts[s]))
	}
	return nil
}

// onFinished records durations for a completed or failed job. It never
// panics or returns an error to the event stream.
func (o *observedQueue) onFinished(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "recording job duration panicked",
				observe.Field{Key: "job_id", Value: ev.JobID},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()

	var job *Job
	err := o.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		job, err = o.queue.Job(ctx, ev.JobID)
		return err
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Warn(ctx, "failed to load finished job",
				observe.Field{Key: "job_id", Value: ev.JobID},
				observe.Err(err),
			)
		}
		return
	}
	if job == nil || job.FinishedAt.IsZero() {
		return
	}

	o.metrics.finished.WithLabelValues(o.labels(ev.Name)...).Observe(millis(job.FinishedAt.Sub(job.CreatedAt)))
	if !job.ProcessedAt.IsZero() {
		o.metrics.processed.WithLabelValues(o.labels(ev.Name)...).Observe(millis(job.FinishedAt.Sub(job.ProcessedAt)))
	}
}

func (o *observedQueue) close() error {
	return errors.Join(o.events.Close(), o.queue.Close())
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
