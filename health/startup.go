package health

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/opsplug/observe"
)

// RunStartupChecks evaluates agg once before the service starts accepting
// traffic.
//
// Every failed check is logged, followed by a summary entry with the
// heartbeat and per-check states. A FAIL heartbeat returns an error wrapping
// ErrStartupChecksFailed that names the failed checks; PARTIALLY_HEALTHY
// does not block startup.
func RunStartupChecks(ctx context.Context, agg *Aggregator, logger observe.Logger) (Result, error) {
	if logger == nil {
		logger = observe.NewNopLogger()
	}

	result := agg.Evaluate(ctx)

	failed := make([]string, 0, len(result.Outcomes))
	for _, o := range result.Failed() {
		logger.Error(ctx, o.Name+" healthcheck has failed", observe.Err(o.Err))
		failed = append(failed, o.Name)
	}

	logger.Info(ctx, "Healthcheck finished",
		observe.Field{Key: "heartbeat", Value: result.Heartbeat()},
		observe.Field{Key: "checks", Value: result.Checks},
	)

	if !result.Healthy() {
		names, _ := json.Marshal(failed)
		return result, fmt.Errorf("%w: %s", ErrStartupChecksFailed, names)
	}
	return result, nil
}
