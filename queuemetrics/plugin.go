package queuemetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/opsplug/health"
	"github.com/jonwraymond/opsplug/observe"
)

// Discovery strategies.
const (
	DiscoveryScan         = "scan"
	DiscoveryActiveQueues = "active-queues"
)

// Collection modes.
const (
	CollectionInterval = "interval"
	CollectionManual   = "manual"
)

// RedisConfig describes one Redis store. Several addresses with MasterName
// select a sentinel client, several without it a cluster client.
type RedisConfig struct {
	Name       string   `yaml:"name"`
	Addrs      []string `yaml:"addrs"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	MasterName string   `yaml:"masterName"`
}

// CollectionConfig selects how collection is driven.
type CollectionConfig struct {
	// Type is "interval" or "manual".
	// Default: "interval"
	Type string `yaml:"type"`

	// Interval is the sleep between collections.
	// Default: 5s
	Interval time.Duration `yaml:"interval"`
}

// PluginConfig configures the queue metrics plugin.
type PluginConfig struct {
	Enabled bool          `yaml:"enabled"`
	Redis   []RedisConfig `yaml:"redis"`

	// BullMQPrefix is the BullMQ key prefix on every store.
	// Default: "bull"
	BullMQPrefix string `yaml:"bullMqPrefix"`

	// Discovery is "scan" or "active-queues".
	// Default: "scan"
	Discovery string `yaml:"discovery"`

	// DiscoveryConcurrency caps the stores enumerated at once.
	// Default: 3
	DiscoveryConcurrency int `yaml:"discoveryConcurrency"`

	Collection CollectionConfig `yaml:"collection"`
	Collector  CollectorConfig  `yaml:"collector"`
}

// Validate checks the configuration.
func (c *PluginConfig) Validate() error {
	switch c.Discovery {
	case "", DiscoveryScan, DiscoveryActiveQueues:
	default:
		return fmt.Errorf("%w: unknown discovery %q", ErrInvalidConfig, c.Discovery)
	}
	switch c.Collection.Type {
	case "", CollectionInterval, CollectionManual:
	default:
		return fmt.Errorf("%w: unknown collection type %q", ErrInvalidConfig, c.Collection.Type)
	}
	if c.Collection.Interval < 0 {
		return fmt.Errorf("%w: negative collection interval", ErrInvalidConfig)
	}
	for i, r := range c.Redis {
		if len(r.Addrs) == 0 {
			return fmt.Errorf("%w: redis[%d] has no address", ErrInvalidConfig, i)
		}
	}
	return nil
}

// PluginOption customizes a Plugin.
type PluginOption func(*pluginOptions)

type pluginOptions struct {
	stores     []*Store
	discoverer Discoverer
	connector  Connector
}

// WithStores observes stores instead of building clients from the config.
// The plugin does not close clients it did not create.
func WithStores(stores ...*Store) PluginOption {
	return func(o *pluginOptions) { o.stores = append(o.stores, stores...) }
}

// WithDiscoverer replaces the configured discovery strategy.
func WithDiscoverer(d Discoverer) PluginOption {
	return func(o *pluginOptions) { o.discoverer = d }
}

// WithConnector replaces the Redis connector.
func WithConnector(c Connector) PluginOption {
	return func(o *pluginOptions) { o.connector = c }
}

// Plugin wires stores, discovery, a Collector and a Scheduler together.
type Plugin struct {
	collector *Collector
	scheduler Scheduler
	stores    []*Store
	owned     []redis.UniversalClient
	logger    observe.Logger
}

// NewPlugin builds the plugin. reg is required; without it ErrNoRegisterer
// is returned.
func NewPlugin(cfg PluginConfig, reg prometheus.Registerer, logger observe.Logger, opts ...PluginOption) (*Plugin, error) {
	if reg == nil {
		return nil, ErrNoRegisterer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observe.NewNopLogger()
	}

	var o pluginOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := &Plugin{logger: logger}
	p.stores = o.stores
	if len(p.stores) == 0 {
		for i, rc := range cfg.Redis {
			client := redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs:      rc.Addrs,
				Username:   rc.Username,
				Password:   rc.Password,
				DB:         rc.DB,
				MasterName: rc.MasterName,
			})
			name := rc.Name
			if name == "" {
				name = fmt.Sprintf("redis-%d", i)
			}
			p.owned = append(p.owned, client)
			p.stores = append(p.stores, &Store{Name: name, Client: client, Prefix: cfg.BullMQPrefix})
		}
	}
	if len(p.stores) == 0 && o.discoverer == nil {
		return nil, ErrNoStores
	}

	discoverer := o.discoverer
	if discoverer == nil {
		if cfg.Discovery == DiscoveryActiveQueues {
			discoverer = &ActiveQueuesDiscoverer{Stores: p.stores, Concurrency: cfg.DiscoveryConcurrency}
		} else {
			discoverer = &RedisDiscoverer{Stores: p.stores, Concurrency: cfg.DiscoveryConcurrency}
		}
	}

	collector, err := NewCollector(cfg.Collector, discoverer, o.connector, reg, logger)
	if err != nil {
		p.closeClients()
		return nil, err
	}
	p.collector = collector

	if cfg.Collection.Type == CollectionManual {
		p.scheduler = ManualScheduler{}
	} else {
		interval := cfg.Collection.Interval
		if interval == 0 {
			interval = 5 * time.Second
		}
		p.scheduler = NewIntervalScheduler(interval, collector.Collect, logger)
	}
	return p, nil
}

// Start starts scheduled collection.
func (p *Plugin) Start(ctx context.Context) {
	p.scheduler.Start(ctx)
}

// Collect runs one collection immediately.
func (p *Plugin) Collect(ctx context.Context) error {
	return p.collector.Collect(ctx)
}

// Collector returns the underlying collector.
func (p *Plugin) Collector() *Collector {
	return p.collector
}

// Checks returns one optional health check per store that pings it.
func (p *Plugin) Checks() []health.Check {
	checks := make([]health.Check, 0, len(p.stores))
	for _, s := range p.stores {
		checks = append(checks, health.Check{
			Name: "redis_" + s.Name,
			Checker: func(ctx context.Context) error {
				return s.Client.Ping(ctx).Err()
			},
		})
	}
	return checks
}

// Close stops the scheduler, closes every observer and then the clients the
// plugin created.
func (p *Plugin) Close(ctx context.Context) error {
	p.scheduler.Stop()
	err := p.collector.Close(ctx)
	return errors.Join(err, p.closeClients())
}

func (p *Plugin) closeClients() error {
	var errs []error
	for _, c := range p.owned {
		if err := c.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.owned = nil
	return errors.Join(errs...)
}
