// Package transaction tracks background transactions (jobs, consumers,
// scheduled work) that are started and stopped by key rather than by
// lexical scope.
//
// SpanTable is the bounded store of in-flight spans. It never holds more
// than its capacity: admitting a span at capacity ends the oldest one with
// an error status first, and starting a key that is already in flight ends
// the previous span before replacing it. Every span handed to the table is
// ended exactly once.
//
// Manager is the common surface of the OpenTelemetry, Prometheus counter and
// no-op implementations; Multi fans calls out to several of them.
package transaction
