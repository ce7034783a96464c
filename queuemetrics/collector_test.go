package queuemetrics

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/resilience"
)

var (
	storeA = &Store{Name: "main"}
	storeB = &Store{Name: "jobs"}
)

func newTestCollector(t *testing.T, cfg CollectorConfig, d Discoverer, conn Connector, reg prometheus.Registerer) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, d, conn, reg, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestNewCollector_Errors(t *testing.T) {
	if _, err := NewCollector(CollectorConfig{}, &fakeDiscoverer{}, nil, nil, nil); !errors.Is(err, ErrNoRegisterer) {
		t.Errorf("nil registerer error = %v, want ErrNoRegisterer", err)
	}
	if _, err := NewCollector(CollectorConfig{}, nil, nil, prometheus.NewRegistry(), nil); !errors.Is(err, ErrNoDiscoverer) {
		t.Errorf("nil discoverer error = %v, want ErrNoDiscoverer", err)
	}
}

func TestCollector_FinishedEventRecordsDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	conn := newFakeConnector()
	ref := QueueRef{Store: storeA, Queue: "test_job"}
	c := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{ref}}, conn, reg)

	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	created := time.UnixMilli(1_700_000_000_000)
	conn.queue(ref.String()).jobs["1"] = &Job{
		ID:          "1",
		CreatedAt:   created,
		ProcessedAt: created.Add(100 * time.Millisecond),
		FinishedAt:  created.Add(350 * time.Millisecond),
	}
	conn.eventsFor(ref.String()).emit(Event{Name: EventCompleted, JobID: "1"})

	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	finished := findMetric(t, reg, "bullmq_jobs_finished_duration", map[string]string{"status": "completed", "queue": "test_job"})
	if finished == nil || finished.GetHistogram().GetSampleCount() < 1 {
		t.Fatalf("finished histogram = %v, want at least one observation", finished)
	}
	if got := finished.GetHistogram().GetSampleSum(); got != 350 {
		t.Errorf("finished sum = %v, want 350", got)
	}

	processed := findMetric(t, reg, "bullmq_jobs_processed_duration", map[string]string{"status": "completed", "queue": "test_job"})
	if processed == nil || processed.GetHistogram().GetSampleSum() != 250 {
		t.Errorf("processed histogram = %v, want one 250ms observation", processed)
	}
}

func TestCollector_FinishedEventEdgeCases(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	tests := []struct {
		name          string
		job           *Job
		jobErr        error
		event         string
		wantFinished  uint64
		wantProcessed uint64
	}{
		{name: "missing job", event: EventCompleted},
		{name: "not finished", job: &Job{ID: "1", CreatedAt: created}, event: EventCompleted},
		{
			name:         "never processed",
			job:          &Job{ID: "1", CreatedAt: created, FinishedAt: created.Add(time.Second)},
			event:        EventFailed,
			wantFinished: 1,
		},
		{name: "lookup error", jobErr: errRedis, event: EventFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			conn := newFakeConnector()
			ref := QueueRef{Store: storeA, Queue: "emails"}
			c := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{ref}}, conn, reg)
			if err := c.Collect(context.Background()); err != nil {
				t.Fatalf("Collect() error = %v", err)
			}

			q := conn.queue(ref.String())
			q.jobErr = tt.jobErr
			if tt.job != nil {
				q.jobs["1"] = tt.job
			}
			conn.eventsFor(ref.String()).emit(Event{Name: tt.event, JobID: "1"})

			labels := map[string]string{"status": tt.event, "queue": "emails"}
			var gotFinished, gotProcessed uint64
			if m := findMetric(t, reg, "bullmq_jobs_finished_duration", labels); m != nil {
				gotFinished = m.GetHistogram().GetSampleCount()
			}
			if m := findMetric(t, reg, "bullmq_jobs_processed_duration", labels); m != nil {
				gotProcessed = m.GetHistogram().GetSampleCount()
			}
			if gotFinished != tt.wantFinished || gotProcessed != tt.wantProcessed {
				t.Errorf("observations finished=%d processed=%d, want %d and %d",
					gotFinished, gotProcessed, tt.wantFinished, tt.wantProcessed)
			}
		})
	}
}

func TestCollector_SetsGaugesAndIsolatesQueueFailures(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	conn := newFakeConnector()
	good := QueueRef{Store: storeA, Queue: "emails"}
	bad := QueueRef{Store: storeA, Queue: "exports"}
	conn.queue(good.String()).counts = map[string]int64{StateActive: 2, StateDelayed: 5, StateWaiting: 7}
	conn.queue(bad.String()).countErr = errRedis

	c, err := NewCollector(CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{bad, good}}, conn, reg,
		observe.NewLoggerWithWriter("info", &buf))
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	defer c.Close(context.Background())

	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v, per-queue failures must not be returned", err)
	}

	for state, want := range map[string]float64{StateActive: 2, StateDelayed: 5, StateWaiting: 7} {
		if got := testutil.ToFloat64(c.metrics.jobs.WithLabelValues(state, "emails", "main")); got != want {
			t.Errorf("bullmq_jobs{status=%q,queue=emails,store=main} = %v, want %v", state, got, want)
		}
	}
	if m := findMetric(t, reg, "bullmq_jobs", map[string]string{"queue": "exports"}); m != nil {
		t.Errorf("failed queue should have no gauge, got %v", m)
	}
	if !strings.Contains(buf.String(), "failed to collect queue job counts") || !strings.Contains(buf.String(), "main/exports") {
		t.Errorf("expected a warning naming the failed queue, got: %s", buf.String())
	}
}


func TestCollector_SameQueueNameOnTwoStores(t *testing.T) {
	reg := prometheus.NewRegistry()
	conn := newFakeConnector()
	onA := QueueRef{Store: storeA, Queue: "emails"}
	onB := QueueRef{Store: storeB, Queue: "emails"}
	conn.queue(onA.String()).counts = map[string]int64{StateWaiting: 3}
	conn.queue(onB.String()).counts = map[string]int64{StateWaiting: 8}

	c := newTestCollector(t, CollectorConfig{States: []string{StateWaiting}}, &fakeDiscoverer{refs: []QueueRef{onA, onB}}, conn, reg)
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	for store, want := range map[string]float64{"main": 3, "jobs": 8} {
		if got := testutil.ToFloat64(c.metrics.jobs.WithLabelValues(StateWaiting, "emails", store)); got != want {
			t.Errorf("bullmq_jobs{queue=emails,store=%s} = %v, want %v", store, got, want)
		}
	}
}
func TestCollector_DiscoveryOnceByDefault(t *testing.T) {
	d := &fakeDiscoverer{refs: []QueueRef{{Store: storeA, Queue: "emails"}}}
	conn := newFakeConnector()
	c := newTestCollector(t, CollectorConfig{}, d, conn, prometheus.NewRegistry())

	for range 3 {
		if err := c.Collect(context.Background()); err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
	}

	if d.calls != 1 {
		t.Errorf("discovery calls = %d, want 1", d.calls)
	}
	if n := conn.openCount("main/emails"); n != 1 {
		t.Errorf("queue opened %d times, want once", n)
	}
	if n := conn.eventsFor("main/emails").subscriptions(); n != 2 {
		t.Errorf("event subscriptions = %d, want completed and failed", n)
	}
	if q := conn.queue("main/emails"); q.calls != 3 {
		t.Errorf("count fetches = %d, want 3", q.calls)
	}
}

func TestCollector_Rediscover(t *testing.T) {
	reg := prometheus.NewRegistry()
	emails := QueueRef{Store: storeA, Queue: "emails"}
	exports := QueueRef{Store: storeA, Queue: "exports"}
	d := &fakeDiscoverer{refs: []QueueRef{emails}}
	conn := newFakeConnector()
	c := newTestCollector(t, CollectorConfig{Rediscover: true}, d, conn, reg)

	_ = c.Collect(context.Background())
	d.set(exports)
	_ = c.Collect(context.Background())

	if d.calls != 2 {
		t.Errorf("discovery calls = %d, want 2", d.calls)
	}
	queues := c.Queues()
	if len(queues) != 1 || queues[0].Queue != "exports" {
		t.Errorf("Queues() = %v, want [main/exports]", queues)
	}
	if conn.queue(emails.String()).closed != 1 || conn.eventsFor(emails.String()).closed != 1 {
		t.Error("vanished queue should be closed")
	}
	if m := findMetric(t, reg, "bullmq_jobs", map[string]string{"queue": "emails"}); m != nil {
		t.Errorf("vanished queue gauges should be removed, got %v", m)
	}
}

func TestCollector_ExcludedQueues(t *testing.T) {
	d := &fakeDiscoverer{refs: []QueueRef{
		{Store: storeA, Queue: "emails"},
		{Store: storeA, Queue: "internal"},
		{Store: storeB, Queue: "internal"},
	}}
	conn := newFakeConnector()
	c := newTestCollector(t, CollectorConfig{ExcludedQueues: []string{"internal"}}, d, conn, prometheus.NewRegistry())

	_ = c.Collect(context.Background())

	if queues := c.Queues(); len(queues) != 1 || queues[0].Queue != "emails" {
		t.Errorf("Queues() = %v, want only emails", queues)
	}
	if conn.openCount("main/internal")+conn.openCount("jobs/internal") != 0 {
		t.Error("excluded queues must not be opened")
	}
}

func TestCollector_DiscoveryFailureIsReturned(t *testing.T) {
	d := &fakeDiscoverer{err: errRedis}
	c := newTestCollector(t, CollectorConfig{}, d, newFakeConnector(), prometheus.NewRegistry())

	if err := c.Collect(context.Background()); !errors.Is(err, errRedis) {
		t.Fatalf("Collect() error = %v, want discovery error", err)
	}

	d.err = nil
	d.set(QueueRef{Store: storeA, Queue: "emails"})
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if d.calls != 2 {
		t.Errorf("discovery should be retried after a failure, calls = %d", d.calls)
	}
}

func TestCollector_OpenFailureRetried(t *testing.T) {
	conn := newFakeConnector()
	conn.openErr["main/emails"] = errRedis
	c := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{{Store: storeA, Queue: "emails"}}}, conn, prometheus.NewRegistry())

	_ = c.Collect(context.Background())
	if len(c.Queues()) != 0 {
		t.Fatal("queue that failed to open should not be observed")
	}

	conn.mu.Lock()
	delete(conn.openErr, "main/emails")
	conn.mu.Unlock()
	_ = c.Collect(context.Background())

	if len(c.Queues()) != 1 {
		t.Errorf("queue should be observed once it opens, Queues() = %v", c.Queues())
	}
}

func TestCollector_Close(t *testing.T) {
	t.Run("without collect", func(t *testing.T) {
		c, _ := NewCollector(CollectorConfig{}, &fakeDiscoverer{}, newFakeConnector(), prometheus.NewRegistry(), nil)
		if err := c.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("closes handles once", func(t *testing.T) {
		conn := newFakeConnector()
		refs := []QueueRef{{Store: storeA, Queue: "emails"}, {Store: storeB, Queue: "emails"}}
		c, _ := NewCollector(CollectorConfig{}, &fakeDiscoverer{refs: refs}, conn, prometheus.NewRegistry(), nil)
		_ = c.Collect(context.Background())

		for range 2 {
			if err := c.Close(context.Background()); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
		}
		for _, r := range refs {
			if conn.queue(r.String()).closed != 1 || conn.eventsFor(r.String()).closed != 1 {
				t.Errorf("%s handles closed %d/%d times, want 1/1", r,
					conn.queue(r.String()).closed, conn.eventsFor(r.String()).closed)
			}
		}
		if err := c.Collect(context.Background()); !errors.Is(err, ErrCollectorClosed) {
			t.Errorf("Collect() after Close error = %v, want ErrCollectorClosed", err)
		}
	})
}

func TestCollector_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ref := QueueRef{Store: storeA, Queue: "emails"}

	first := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{ref}}, newFakeConnector(), reg)
	second := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{ref}}, newFakeConnector(), reg)

	if first.metrics.jobs != second.metrics.jobs {
		t.Error("second collector should reuse the registered jobs gauge")
	}
	if first.metrics.finished != second.metrics.finished || first.metrics.processed != second.metrics.processed {
		t.Error("second collector should reuse the registered histograms")
	}
}

func TestCollector_CustomPrefixAndStates(t *testing.T) {
	reg := prometheus.NewRegistry()
	conn := newFakeConnector()
	ref := QueueRef{Store: storeA, Queue: "emails"}
	conn.queue(ref.String()).counts[StateFailed] = 3
	c := newTestCollector(t, CollectorConfig{MetricsPrefix: "jobs", States: []string{StateFailed}},
		&fakeDiscoverer{refs: []QueueRef{ref}}, conn, reg)

	_ = c.Collect(context.Background())

	m := findMetric(t, reg, "jobs_jobs", map[string]string{"status": "failed", "queue": "emails"})
	if m == nil || m.GetGauge().GetValue() != 3 {
		t.Errorf("jobs_jobs{status=failed} = %v, want 3", m)
	}
	if findMetric(t, reg, "jobs_jobs", map[string]string{"status": "active"}) != nil {
		t.Error("unrequested states must not be exported")
	}
}

func TestCollector_StorePolicyTimeout(t *testing.T) {
	var buf bytes.Buffer
	conn := &blockingConnector{fakeConnector: newFakeConnector(), release: make(chan struct{})}
	defer close(conn.release)
	ref := QueueRef{Store: storeA, Queue: "emails"}

	c, err := NewCollector(CollectorConfig{Store: resilience.PolicyConfig{Timeout: 20 * time.Millisecond}},
		&fakeDiscoverer{refs: []QueueRef{ref}}, conn, prometheus.NewRegistry(), observe.NewLoggerWithWriter("info", &buf))
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Collect(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Collect() hung on a stuck store despite the policy timeout")
	}
	if !strings.Contains(buf.String(), "operation timed out") {
		t.Errorf("expected timeout warning, got: %s", buf.String())
	}
}

type blockingQueue struct {
	*fakeQueue
	release chan struct{}
}

func (q *blockingQueue) JobCounts(context.Context, ...string) (map[string]int64, error) {
	<-q.release
	return nil, nil
}

type blockingConnector struct {
	*fakeConnector
	release chan struct{}
}

func (c *blockingConnector) OpenQueue(ctx context.Context, ref QueueRef) (Queue, error) {
	q, _ := c.fakeConnector.OpenQueue(ctx, ref)
	return &blockingQueue{fakeQueue: q.(*fakeQueue), release: c.release}, nil
}

func TestCollector_ConcurrentCollectAndEvents(t *testing.T) {
	conn := newFakeConnector()
	ref := QueueRef{Store: storeA, Queue: "emails"}
	created := time.UnixMilli(1_700_000_000_000)
	conn.queue(ref.String()).jobs["1"] = &Job{ID: "1", CreatedAt: created, FinishedAt: created.Add(time.Second)}
	c := newTestCollector(t, CollectorConfig{}, &fakeDiscoverer{refs: []QueueRef{ref}}, conn, prometheus.NewRegistry())
	_ = c.Collect(context.Background())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = c.Collect(context.Background())
			} else {
				conn.eventsFor(ref.String()).emit(Event{Name: EventCompleted, JobID: "1"})
			}
		}()
	}
	wg.Wait()

	if got := testutil.CollectAndCount(c.metrics.finished); got != 1 {
		t.Errorf("finished series = %d, want 1", got)
	}
}
