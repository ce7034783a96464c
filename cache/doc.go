// Package cache provides bounded in-memory containers.
//
// FIFO is a capacity-limited map with an explicit insertion-ordered list. It
// backs the span table in package transaction, where the oldest in-flight
// entry must be found and removed before a new one is admitted.
package cache
