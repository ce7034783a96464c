// Package observe wires OpenTelemetry tracing and metrics, a Prometheus
// registry and a zap-backed structured logger behind one Observer.
//
// The Observer owns the registry that every opsplug metric lands in: queue
// metrics, health gauges and transaction counters register against
// Observer.Registry, and OTel instruments reach the same registry through the
// Prometheus exporter. Register makes repeated registration idempotent.
//
// Middleware instruments inbound HTTP requests (span, request metrics and a
// completion log line) and RequestID propagates the X-Request-ID header
// through the request context so every log line carries request_id.
package observe
