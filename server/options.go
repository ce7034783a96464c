package server

import (
	"github.com/jonwraymond/opsplug/errorhandler"
	"github.com/jonwraymond/opsplug/health"
	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/queuemetrics"
)

// Option customizes a Server.
type Option func(*options)

type options struct {
	checks        []health.Check
	infoProviders []health.InfoProvider
	reporter      errorhandler.Reporter
	observer      observe.Observer
	queueOpts     []queuemetrics.PluginOption
}

// WithChecks registers additional health checks.
func WithChecks(checks ...health.Check) Option {
	return func(o *options) { o.checks = append(o.checks, checks...) }
}

// WithInfoProviders adds extraInfo blocks to detailed health responses.
func WithInfoProviders(providers ...health.InfoProvider) Option {
	return func(o *options) { o.infoProviders = append(o.infoProviders, providers...) }
}

// WithReporter sends 5xx errors and recovered panics to r.
func WithReporter(r errorhandler.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithObserver uses obs instead of building one from the config. The
// server does not shut down an injected observer.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithQueueMetricsOptions forwards options to the queue metrics plugin.
func WithQueueMetricsOptions(opts ...queuemetrics.PluginOption) Option {
	return func(o *options) { o.queueOpts = append(o.queueOpts, opts...) }
}
