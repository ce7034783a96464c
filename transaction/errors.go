package transaction

import "errors"

var (
	// ErrSpanStart indicates the span factory could not create a span.
	ErrSpanStart = errors.New("transaction: failed to start span")

	// ErrMissingMetricName indicates PrometheusCounterConfig.MetricName is empty.
	ErrMissingMetricName = errors.New("transaction: metric name is required")
)
