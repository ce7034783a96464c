package config

import (
	"fmt"
	"time"

	"github.com/jonwraymond/opsplug/auth"
	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/queuemetrics"
	"github.com/jonwraymond/opsplug/transaction"
)

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig              `yaml:"server"`
	Observe      observe.Config            `yaml:"observe"`
	Health       HealthConfig              `yaml:"health"`
	Transactions TransactionsConfig        `yaml:"transactions"`
	QueueMetrics queuemetrics.PluginConfig `yaml:"queueMetrics"`
	Auth         AuthConfig                `yaml:"auth"`
	Secrets      SecretsConfig             `yaml:"secrets"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	// Addr is the application listener.
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// MetricsAddr serves /metrics on a separate listener when
	// observe.metrics is enabled.
	// Default: ":9080"
	MetricsAddr string `yaml:"metricsAddr"`

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 5s
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// StripNullChars removes NUL characters from JSON request bodies.
	StripNullChars bool `yaml:"stripNullChars"`

	// MaxBodyBytes caps the JSON bodies buffered by StripNullChars.
	// Default: 1 MiB
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// HealthConfig configures health routes, startup checks and health metrics.
type HealthConfig struct {
	// Timeout bounds one evaluation of all checks.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sequential runs checks one at a time.
	Sequential bool `yaml:"sequential"`

	ResponsePayload  map[string]any `yaml:"responsePayload"`
	DisableRootRoute bool           `yaml:"disableRootRoute"`

	// Public mounts an aggregated-only detailed route at PublicPath.
	Public     bool   `yaml:"public"`
	PublicPath string `yaml:"publicPath"`

	// StartupChecks evaluates all checks once before serving and fails
	// startup when the result is FAIL.
	StartupChecks bool `yaml:"startupChecks"`

	// Metrics exports <name>_availability and <name>_latency_msecs gauges.
	Metrics bool `yaml:"metrics"`

	Memory MemoryConfig `yaml:"memory"`
}

// MemoryConfig configures the built-in memory check.
type MemoryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Mandatory         bool    `yaml:"mandatory"`
	WarningThreshold  float64 `yaml:"warningThreshold"`
	CriticalThreshold float64 `yaml:"criticalThreshold"`
	MaxAlloc          uint64  `yaml:"maxAlloc"`
}

// TransactionsConfig selects the transaction managers.
type TransactionsConfig struct {
	OpenTelemetry transaction.OpenTelemetryConfig `yaml:"openTelemetry"`

	// Prometheus enables the counter manager when MetricName is set.
	Prometheus transaction.PrometheusCounterConfig `yaml:"prometheus"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWT enables bearer JWT verification when JWT.Secret is set.
	JWT auth.TokenConfig `yaml:"jwt"`

	// StaticToken guards internal routes with a shared bearer token when
	// set.
	StaticToken string `yaml:"staticToken"`
}

// SecretsConfig declares secret providers by name.
type SecretsConfig struct {
	// Strict rejects references that resolve to an empty value.
	// Default: true
	Strict *bool `yaml:"strict"`

	// Providers maps a registered provider name to its configuration,
	// e.g. {"file": {"dir": "/run/secrets"}}.
	Providers map[string]map[string]any `yaml:"providers"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = "opsplug"
	}
	if c.Observe.Logging.Level == "" {
		c.Observe.Logging.Level = "info"
	}
	if c.Observe.Tracing.Exporter == "" {
		c.Observe.Tracing.Exporter = "none"
	}
	if c.Observe.Metrics.Exporter == "" {
		c.Observe.Metrics.Exporter = "prometheus"
	}

	if c.Health.Timeout <= 0 {
		c.Health.Timeout = 10 * time.Second
	}
	if c.Health.PublicPath == "" {
		c.Health.PublicPath = "/public/health"
	}

	if c.Secrets.Strict == nil {
		strict := true
		c.Secrets.Strict = &strict
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: observe: %w", ErrInvalidConfig, err)
	}
	if c.QueueMetrics.Enabled {
		if err := c.QueueMetrics.Validate(); err != nil {
			return fmt.Errorf("%w: queueMetrics: %w", ErrInvalidConfig, err)
		}
		if len(c.QueueMetrics.Redis) == 0 {
			return fmt.Errorf("%w: queueMetrics: at least one redis store is required", ErrInvalidConfig)
		}
	}
	if c.QueueMetrics.Enabled && !c.Observe.Metrics.Enabled {
		return fmt.Errorf("%w: queueMetrics requires observe.metrics.enabled", ErrInvalidConfig)
	}
	m := c.Health.Memory
	if m.Enabled && m.CriticalThreshold > 0 && m.WarningThreshold > 0 && m.CriticalThreshold < m.WarningThreshold {
		return fmt.Errorf("%w: health.memory: criticalThreshold below warningThreshold", ErrInvalidConfig)
	}
	if c.Observe.Metrics.Enabled && c.Server.Addr == c.Server.MetricsAddr {
		return fmt.Errorf("%w: server.metricsAddr must differ from server.addr", ErrInvalidConfig)
	}
	return nil
}
