package queuemetrics

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/resilience"
)

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// MetricsPrefix prefixes the metric names.
	// Default: "bullmq"
	MetricsPrefix string `yaml:"metricsPrefix"`

	// ExcludedQueues are never observed.
	ExcludedQueues []string `yaml:"excludedQueues"`

	// HistogramBuckets are the duration buckets in milliseconds.
	// Default: DefaultHistogramBuckets
	HistogramBuckets []float64 `yaml:"histogramBuckets"`

	// States are the job states sampled into the jobs gauge.
	// Default: active, delayed, waiting
	States []string `yaml:"states"`

	// Rediscover runs discovery on every Collect instead of only the first.
	// Queues that disappear are then closed and their gauges removed.
	Rediscover bool `yaml:"rediscover"`

	// Store guards every call to a store. The zero value adds no timeout.
	Store resilience.PolicyConfig `yaml:"store"`
}

// Collector samples job counts of discovered queues into Prometheus and
// records job durations from queue events.
//
// Contract:
// - Concurrency: safe for concurrent use; Collect and Close are serialized.
// - Errors: only discovery failures are returned by Collect. Per-queue
//   failures are logged and leave the other queues unaffected.
type Collector struct {
	config     CollectorConfig
	discoverer Discoverer
	connector  Connector
	metrics    *metricSet
	logger     observe.Logger

	mu         sync.Mutex
	discovered bool
	closed     bool
	refs       []QueueRef
	observers  map[string]*observedQueue
	policies   map[*Store]*resilience.Policy
}

// NewCollector registers the queue metrics with reg, reusing collectors
// already registered under the same names, and returns a Collector.
// A nil connector defaults to a RedisConnector.
func NewCollector(config CollectorConfig, discoverer Discoverer, connector Connector, reg prometheus.Registerer, logger observe.Logger) (*Collector, error) {
	if reg == nil {
		return nil, ErrNoRegisterer
	}
	if discoverer == nil {
		return nil, ErrNoDiscoverer
	}
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	if connector == nil {
		connector = &RedisConnector{Logger: logger}
	}
	if config.MetricsPrefix == "" {
		config.MetricsPrefix = DefaultMetricsPrefix
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = DefaultHistogramBuckets
	}
	if len(config.States) == 0 {
		config.States = DefaultStates
	}

	m, err := registerMetrics(reg, config.MetricsPrefix, config.HistogramBuckets)
	if err != nil {
		return nil, err
	}

	return &Collector{
		config:     config,
		discoverer: discoverer,
		connector:  connector,
		metrics:    m,
		logger:     logger,
		observers:  make(map[string]*observedQueue),
		policies:   make(map[*Store]*resilience.Policy),
	}, nil
}

// Collect updates the job gauges of every observed queue.
//
// Discovery runs on the first call, or on every call with Rediscover. Job
// counts are fetched for all queues concurrently.
func (c *Collector) Collect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCollectorClosed
	}

	if !c.discovered || c.config.Rediscover {
		refs, err := c.discoverer.DiscoverQueues(ctx)
		if err != nil {
			return err
		}
		c.refs = slices.DeleteFunc(refs, func(r QueueRef) bool {
			return slices.Contains(c.config.ExcludedQueues, r.Queue)
		})
		c.discovered = true
		c.pruneLocked()
	}

	observers := c.ensureObserversLocked(ctx)

	var wg sync.WaitGroup
	for _, o := range observers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.collect(ctx, c.config.States); err != nil {
				o.logger.Warn(ctx, "failed to collect queue job counts", observe.Err(err))
			}
		}()
	}
	wg.Wait()
	return nil
}

// ensureObserversLocked opens observers for refs that have none. A ref
// whose handles fail to open is logged and retried on the next Collect.
func (c *Collector) ensureObserversLocked(ctx context.Context) []*observedQueue {
	observers := make([]*observedQueue, 0, len(c.refs))
	for _, ref := range c.refs {
		key := ref.String()
		o, ok := c.observers[key]
		if !ok {
			var err error
			o, err = newObservedQueue(ctx, ref, c.connector, c.metrics, c.policyLocked(ref.Store), c.logger)
			if err != nil {
				c.logger.Warn(ctx, "failed to observe queue",
					observe.Field{Key: "queue", Value: key},
					observe.Err(err),
				)
				continue
			}
			c.observers[key] = o
		}
		observers = append(observers, o)
	}
	return observers
}

// pruneLocked closes observers whose queue is no longer discovered.
func (c *Collector) pruneLocked() {
	keep := make(map[string]bool, len(c.refs))
	for _, r := range c.refs {
		keep[r.String()] = true
	}
	for key, o := range c.observers {
		if keep[key] {
			continue
		}
		if err := o.close(); err != nil {
			o.logger.Warn(context.Background(), "failed to close queue observer", observe.Err(err))
		}
		for _, s := range c.config.States {
			c.metrics.jobs.DeleteLabelValues(s, o.ref.Queue)
		}
		delete(c.observers, key)
	}
}

func (c *Collector) policyLocked(s *Store) *resilience.Policy {
	p, ok := c.policies[s]
	if !ok {
		name := "queuemetrics"
		if s != nil {
			name += ":" + s.Name
		}
		p = resilience.NewPolicy(name, c.config.Store)
		c.policies[s] = p
	}
	return p
}

// Queues returns the refs currently observed.
func (c *Collector) Queues() []QueueRef {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs := make([]QueueRef, 0, len(c.observers))
	for _, r := range c.refs {
		if _, ok := c.observers[r.String()]; ok {
			refs = append(refs, r)
		}
	}
	return refs
}

// Close closes every observer's event subscription and queue handle. It is
// safe to call before any Collect and more than once.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for key, o := range c.observers {
		if err := o.close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.observers, key)
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn(ctx, "failed to close queue observers", observe.Err(err))
		return err
	}
	return nil
}
