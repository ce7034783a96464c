package queuemetrics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var errRedis = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

type fakeQueue struct {
	mu       sync.Mutex
	counts   map[string]int64
	countErr error
	jobs     map[string]*Job
	jobErr   error
	calls    int
	closed   int
}

func (q *fakeQueue) JobCounts(_ context.Context, states ...string) (map[string]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.countErr != nil {
		return nil, q.countErr
	}
	out := make(map[string]int64, len(states))
	for _, s := range states {
		out[s] = q.counts[s]
	}
	return out, nil
}

func (q *fakeQueue) Job(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobErr != nil {
		return nil, q.jobErr
	}
	return q.jobs[id], nil
}

func (q *fakeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed++
	return nil
}

type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string][]EventHandler
	closed   int
}

func (e *fakeEvents) On(event string, h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]EventHandler)
	}
	e.handlers[event] = append(e.handlers[event], h)
}

func (e *fakeEvents) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

func (e *fakeEvents) emit(ev Event) {
	e.mu.Lock()
	hs := e.handlers[ev.Name]
	e.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), ev)
	}
}

func (e *fakeEvents) subscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, hs := range e.handlers {
		n += len(hs)
	}
	return n
}

// fakeConnector hands out one fakeQueue and fakeEvents per ref, creating
// them on demand.
type fakeConnector struct {
	mu      sync.Mutex
	queues  map[string]*fakeQueue
	events  map[string]*fakeEvents
	openErr map[string]error
	opens   map[string]int
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		queues:  make(map[string]*fakeQueue),
		events:  make(map[string]*fakeEvents),
		openErr: make(map[string]error),
		opens:   make(map[string]int),
	}
}

func (c *fakeConnector) queue(key string) *fakeQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[key]
	if !ok {
		q = &fakeQueue{counts: map[string]int64{}, jobs: map[string]*Job{}}
		c.queues[key] = q
	}
	return q
}

func (c *fakeConnector) eventsFor(key string) *fakeEvents {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[key]
	if !ok {
		e = &fakeEvents{}
		c.events[key] = e
	}
	return e
}

func (c *fakeConnector) OpenQueue(_ context.Context, ref QueueRef) (Queue, error) {
	c.mu.Lock()
	err := c.openErr[ref.String()]
	c.opens[ref.String()]++
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.queue(ref.String()), nil
}

func (c *fakeConnector) OpenEvents(_ context.Context, ref QueueRef) (Events, error) {
	return c.eventsFor(ref.String()), nil
}

func (c *fakeConnector) openCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[key]
}

type fakeDiscoverer struct {
	mu    sync.Mutex
	refs  []QueueRef
	err   error
	calls int
}

func (d *fakeDiscoverer) DiscoverQueues(context.Context) ([]QueueRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]QueueRef(nil), d.refs...), nil
}

func (d *fakeDiscoverer) set(refs ...QueueRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = refs
}

// findMetric returns the series of family name whose labels include want.
func findMetric(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return m
		}
	}
	return nil
}
