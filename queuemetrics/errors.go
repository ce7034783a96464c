package queuemetrics

import "errors"

var (
	// ErrNoRegisterer is returned when no Prometheus registerer is supplied.
	ErrNoRegisterer = errors.New("queuemetrics: no Prometheus registerer, queue metrics require a metrics registry")

	// ErrNoDiscoverer is returned when a collector is built without a discoverer.
	ErrNoDiscoverer = errors.New("queuemetrics: no queue discoverer")

	// ErrNoStores is returned when a plugin has no Redis store to observe.
	ErrNoStores = errors.New("queuemetrics: no redis stores configured")

	// ErrUnknownJobState is returned for a job state with no BullMQ key.
	ErrUnknownJobState = errors.New("queuemetrics: unknown job state")

	// ErrCollectorClosed is returned by Collect after Close.
	ErrCollectorClosed = errors.New("queuemetrics: collector closed")

	// ErrInvalidConfig indicates an invalid plugin configuration.
	ErrInvalidConfig = errors.New("queuemetrics: invalid configuration")
)
