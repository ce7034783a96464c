package health

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/opsplug/observe"
)

var metricNamePattern = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// metricsCollector exports <name>_availability and <name>_latency_msecs
// gauges, running every check once per scrape.
type metricsCollector struct {
	checks  []Check
	config  AggregatorConfig
	avail   []*prometheus.Desc
	latency []*prometheus.Desc
}

// NewMetricsCollector returns a prometheus.Collector for checks.
// Check names must be valid Prometheus metric names.
func NewMetricsCollector(checks []Check, config AggregatorConfig) (prometheus.Collector, error) {
	var invalid []string
	for _, c := range checks {
		if !metricNamePattern.MatchString(c.Name) {
			invalid = append(invalid, c.Name)
		}
	}
	if len(invalid) > 0 {
		names, _ := json.Marshal(invalid)
		return nil, fmt.Errorf("%w: %s", ErrInvalidCheckNames, names)
	}

	mc := &metricsCollector{
		checks:  checks,
		config:  config,
		avail:   make([]*prometheus.Desc, len(checks)),
		latency: make([]*prometheus.Desc, len(checks)),
	}
	for i, c := range checks {
		mc.avail[i] = prometheus.NewDesc(c.Name+"_availability",
			fmt.Sprintf("Whether %s was available at the time", c.Name), nil, nil)
		mc.latency[i] = prometheus.NewDesc(c.Name+"_latency_msecs",
			fmt.Sprintf("How long the healthcheck for %s took", c.Name), nil, nil)
	}
	return mc, nil
}

// RegisterMetrics registers the health gauges for checks with reg.
func RegisterMetrics(reg prometheus.Registerer, checks []Check, config AggregatorConfig) error {
	mc, err := NewMetricsCollector(checks, config)
	if err != nil {
		return err
	}
	if _, err := observe.Register(reg, mc); err != nil {
		return fmt.Errorf("health: register metrics: %w", err)
	}
	return nil
}

func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for i := range mc.checks {
		ch <- mc.avail[i]
		ch <- mc.latency[i]
	}
}

func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	outcomes := Run(context.Background(), mc.checks, mc.config)
	for i, o := range outcomes {
		available := 1.0
		if o.Failed() {
			available = 0
		}
		ch <- prometheus.MustNewConstMetric(mc.avail[i], prometheus.GaugeValue, available)
		ch <- prometheus.MustNewConstMetric(mc.latency[i], prometheus.GaugeValue,
			float64(o.Duration)/float64(time.Millisecond))
	}
}
