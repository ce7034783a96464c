package queuemetrics

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/opsplug/observe"
)

// Scheduler drives collection.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
}

// SchedulerState is the lifecycle state of an IntervalScheduler.
type SchedulerState int

const (
	// SchedulerStopped is the initial state and the state after Stop returns.
	SchedulerStopped SchedulerState = iota
	// SchedulerRunning means the loop is collecting or sleeping.
	SchedulerRunning
	// SchedulerStopping means Stop was called and an in-flight collect is
	// finishing.
	SchedulerStopping
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerStopped:
		return "stopped"
	case SchedulerRunning:
		return "running"
	case SchedulerStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// IntervalScheduler calls collect, sleeps for the interval, and repeats
// until stopped.
//
// Stop interrupts the sleep but lets an in-flight collect finish, and
// returns once the loop has exited. The scheduler can be started again
// after it stopped.
type IntervalScheduler struct {
	interval time.Duration
	collect  func(context.Context) error
	logger   observe.Logger

	mu    sync.Mutex
	state SchedulerState
	stop  chan struct{}
	done  chan struct{}
}

// NewIntervalScheduler creates a stopped scheduler. Errors from collect are
// logged and do not stop the loop.
func NewIntervalScheduler(interval time.Duration, collect func(context.Context) error, logger observe.Logger) *IntervalScheduler {
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	return &IntervalScheduler{interval: interval, collect: collect, logger: logger}
}

// Start launches the loop. It is a no-op unless the scheduler is stopped.
// Cancelling ctx ends the loop like Stop and is also seen by collect.
func (s *IntervalScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SchedulerStopped {
		return
	}
	s.state = SchedulerRunning
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
}

func (s *IntervalScheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = SchedulerStopped
		s.mu.Unlock()
		close(done)
	}()

	for {
		if err := s.collect(ctx); err != nil {
			s.logger.Warn(ctx, "queue metrics collection failed", observe.Err(err))
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// A stop that raced with the timer still wins over the next collect.
		select {
		case <-stop:
			return
		default:
		}
	}
}

// Stop ends the loop and waits for it. It is idempotent.
func (s *IntervalScheduler) Stop() {
	s.mu.Lock()
	if s.state == SchedulerStopped {
		s.mu.Unlock()
		return
	}
	if s.state == SchedulerRunning {
		s.state = SchedulerStopping
		close(s.stop)
	}
	done := s.done
	s.mu.Unlock()

	<-done
}

// State returns the current lifecycle state.
func (s *IntervalScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ManualScheduler never collects on its own; callers invoke Collect.
type ManualScheduler struct{}

// Start does nothing.
func (ManualScheduler) Start(context.Context) {}

// Stop does nothing.
func (ManualScheduler) Stop() {}

var (
	_ Scheduler = (*IntervalScheduler)(nil)
	_ Scheduler = ManualScheduler{}
)
