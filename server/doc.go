// Package server assembles a service from a config.Config.
//
// New builds the Observer, health aggregation, error handling, transaction
// managers and the queue metrics plugin, and mounts them on a chi router.
// Run serves the application and the /metrics listener until the context
// is cancelled, then shuts everything down in reverse order.
package server
