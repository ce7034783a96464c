package queuemetrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/opsplug/observe"
)

// DefaultMetricsPrefix prefixes every queue metric name.
const DefaultMetricsPrefix = "bullmq"

// DefaultHistogramBuckets are the duration buckets in milliseconds.
var DefaultHistogramBuckets = []float64{20, 50, 150, 400, 1000, 3000, 8000, 22000, 60000, 150000}

// DefaultStates are the job states sampled on every collection.
var DefaultStates = []string{StateActive, StateDelayed, StateWaiting}

// The store label keeps queues with the same name on different stores apart.
var metricLabels = []string{"status", "queue", "store"}

// metricSet is registered once per registry and prefix. A second collector
// on the same registry shares the first one's collectors.
type metricSet struct {
	jobs      *prometheus.GaugeVec
	processed *prometheus.HistogramVec
	finished  *prometheus.HistogramVec
}

func registerMetrics(reg prometheus.Registerer, prefix string, buckets []float64) (*metricSet, error) {
	jobs, err := observe.Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: prefix + "_jobs",
		Help: "Number of jobs by status and queue",
	}, metricLabels))
	if err != nil {
		return nil, fmt.Errorf("queuemetrics: register %s_jobs: %w", prefix, err)
	}

	processed, err := observe.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_jobs_processed_duration",
		Help:    "Processing time of finished jobs in milliseconds (processing until finished)",
		Buckets: buckets,
	}, metricLabels))
	if err != nil {
		return nil, fmt.Errorf("queuemetrics: register %s_jobs_processed_duration: %w", prefix, err)
	}

	finished, err := observe.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_jobs_finished_duration",
		Help:    "Lifetime of finished jobs in milliseconds (created until finished)",
		Buckets: buckets,
	}, metricLabels))
	if err != nil {
		return nil, fmt.Errorf("queuemetrics: register %s_jobs_finished_duration: %w", prefix, err)
	}

	return &metricSet{jobs: jobs, processed: processed, finished: finished}, nil
}
