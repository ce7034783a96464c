package queuemetrics

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is one Redis instance hosting BullMQ queues.
type Store struct {
	// Name identifies the store in logs and resilience policies.
	Name string

	// Client talks to the instance. A *redis.ClusterClient is scanned on
	// every master.
	Client redis.UniversalClient

	// Prefix is the BullMQ key prefix.
	// Default: "bull"
	Prefix string
}

// DefaultBullMQPrefix is the key prefix BullMQ uses when none is configured.
const DefaultBullMQPrefix = "bull"

func (s *Store) prefix() string {
	if s.Prefix == "" {
		return DefaultBullMQPrefix
	}
	return s.Prefix
}

// QueueRef identifies one queue on one store.
type QueueRef struct {
	Store *Store
	Queue string
}

// String returns "<store>/<queue>".
func (r QueueRef) String() string {
	if r.Store == nil {
		return "/" + r.Queue
	}
	return r.Store.Name + "/" + r.Queue
}

// Job states understood by Queue.JobCounts.
const (
	StateActive          = "active"
	StateWaiting         = "waiting"
	StateDelayed         = "delayed"
	StatePrioritized     = "prioritized"
	StateCompleted       = "completed"
	StateFailed          = "failed"
	StateWaitingChildren = "waiting-children"
)

// Queue events observed for duration histograms.
const (
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Job holds the lifecycle timestamps of a job. Zero values mean unset.
type Job struct {
	ID          string
	CreatedAt   time.Time
	ProcessedAt time.Time
	FinishedAt  time.Time
}

// Event is one entry of a queue's event stream.
type Event struct {
	Name  string
	JobID string
}

// EventHandler receives queue events.
type EventHandler func(ctx context.Context, ev Event)

// Queue reads job state from a queue.
type Queue interface {
	// JobCounts returns the number of jobs in each requested state.
	JobCounts(ctx context.Context, states ...string) (map[string]int64, error)

	// Job returns the job with the given id, or nil when it no longer exists.
	Job(ctx context.Context, id string) (*Job, error)

	Close() error
}

// Events is a subscription to a queue's event stream.
//
// Contract:
// - Concurrency: On may be called concurrently with delivery.
// - Errors: a panicking handler is recovered and does not stop delivery.
// - Close is idempotent and waits for the delivery loop to exit.
type Events interface {
	On(event string, handler EventHandler)
	Close() error
}

// Connector opens queue handles and event subscriptions.
type Connector interface {
	OpenQueue(ctx context.Context, ref QueueRef) (Queue, error)
	OpenEvents(ctx context.Context, ref QueueRef) (Events, error)
}
