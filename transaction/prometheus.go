package transaction

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/opsplug/cache"
	"github.com/jonwraymond/opsplug/observe"
)

// Counter label values for the status label.
const (
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// PrometheusCounterConfig configures a PrometheusCounterManager.
type PrometheusCounterConfig struct {
	// MetricName is the counter name (required).
	MetricName string `yaml:"metricName"`

	// MetricDescription is the counter help text.
	// Default: "Number of background transactions by status"
	MetricDescription string `yaml:"metricDescription"`

	// MaxTrackedTransactions bounds the number of in-flight keys remembered
	// between Start and Stop. The oldest key is forgotten first.
	// Default: 2000
	MaxTrackedTransactions int `yaml:"maxTrackedTransactions"`
}

// PrometheusCounterManager counts started, successful and failed
// transactions in a {status, transactionName} counter.
type PrometheusCounterManager struct {
	counter *prometheus.CounterVec

	mu    sync.Mutex
	names *cache.FIFO[string, string]
}

// NewPrometheusCounterManager registers the counter with reg, reusing an
// identical counter that is already registered. A nil reg yields a manager
// that tracks keys but counts nothing.
func NewPrometheusCounterManager(cfg PrometheusCounterConfig, reg prometheus.Registerer) (*PrometheusCounterManager, error) {
	if cfg.MetricName == "" {
		return nil, ErrMissingMetricName
	}
	if cfg.MetricDescription == "" {
		cfg.MetricDescription = "Number of background transactions by status"
	}
	if cfg.MaxTrackedTransactions <= 0 {
		cfg.MaxTrackedTransactions = DefaultMaxConcurrentSpans
	}

	m := &PrometheusCounterManager{
		names: cache.NewFIFO[string, string](cfg.MaxTrackedTransactions),
	}
	if reg == nil {
		return m, nil
	}

	counter, err := observe.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: cfg.MetricName,
		Help: cfg.MetricDescription,
	}, []string{"status", "transactionName"}))
	if err != nil {
		return nil, fmt.Errorf("transaction: register %s: %w", cfg.MetricName, err)
	}
	m.counter = counter
	return m, nil
}

// Start counts a started transaction and remembers its name under key.
func (m *PrometheusCounterManager) Start(name, key string) error {
	m.mu.Lock()
	m.names.Set(key, name)
	m.mu.Unlock()

	m.inc(StatusStarted, name)
	return nil
}

// StartWithGroup is Start; the group is not a counter label.
func (m *PrometheusCounterManager) StartWithGroup(name, key, _ string) error {
	return m.Start(name, key)
}

// Stop counts the outcome of the transaction under key.
func (m *PrometheusCounterManager) Stop(key string, wasSuccessful bool) {
	m.mu.Lock()
	name, ok := m.names.Delete(key)
	m.mu.Unlock()
	if !ok {
		return
	}

	if wasSuccessful {
		m.inc(StatusSuccess, name)
	} else {
		m.inc(StatusFailed, name)
	}
}

// AddCustomAttributes is a no-op; counters carry no per-transaction attributes.
func (m *PrometheusCounterManager) AddCustomAttributes(string, map[string]any) {}

func (m *PrometheusCounterManager) inc(status, name string) {
	if m.counter == nil {
		return
	}
	m.counter.WithLabelValues(status, name).Inc()
}

var _ Manager = (*PrometheusCounterManager)(nil)
