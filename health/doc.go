// Package health aggregates dependency checks into a tri-state heartbeat.
//
// A Check pairs a name with a CheckFunc and a Mandatory flag. The Aggregator
// runs every registered check, in parallel by default and bounded by a
// timeout, and folds the outcomes into a Result:
//
//   - HEALTHY: every check passed.
//   - PARTIALLY_HEALTHY: only optional checks failed.
//   - FAIL: at least one mandatory check failed.
//
// A failing, panicking or slow check never aborts the others.
//
// # HTTP
//
// Handler serves the state on a chi router:
//
//	agg := health.NewAggregator()
//	agg.Register(
//	    health.Check{Name: "postgres", Mandatory: true, Checker: pingDB},
//	    health.Check{Name: "redis", Checker: pingRedis},
//	)
//	health.NewHandler(agg, health.HandlerConfig{}).Mount(r)
//
// "/" returns the detailed view and "/health" the heartbeat only; both answer
// 200 unless the heartbeat is FAIL, in which case they answer 500.
//
// # Startup and metrics
//
// RunStartupChecks evaluates the checks once at boot and refuses to start on
// FAIL. RegisterMetrics exports <name>_availability and <name>_latency_msecs
// gauges that re-run the checks on every scrape.
package health
