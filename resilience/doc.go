// Package resilience guards calls to backing stores.
//
// A Policy is built per store from a PolicyConfig and composes, when
// configured, a token bucket rate limiter, a concurrency bulkhead, a circuit
// breaker, retries with backoff and a per-attempt timeout:
//
//	p := resilience.NewPolicy("redis-main", resilience.PolicyConfig{
//	    Timeout: 2 * time.Second,
//	    Retry:   &resilience.RetryConfig{MaxAttempts: 3},
//	    Breaker: &resilience.BreakerConfig{MaxFailures: 5},
//	})
//	err := p.Execute(ctx, func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	})
//
// The zero PolicyConfig adds nothing, so an unconfigured store is called
// directly and inherits whatever deadline ctx carries.
package resilience
