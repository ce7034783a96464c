// Package queuemetrics exports BullMQ queue metrics from one or more Redis
// stores into Prometheus.
//
// A Discoverer enumerates queues on every store, a Collector samples job
// counts into the <prefix>_jobs gauge and listens for completed and failed
// events to fill the duration histograms, and a Scheduler drives collection:
//
//	p, err := queuemetrics.NewPlugin(cfg, registry, logger)
//	if err != nil {
//	    return err
//	}
//	p.Start(ctx)
//	defer p.Close(context.Background())
//
// Discovery is fail-fast: an error on any store fails the whole discovery
// and no partial result is used. Failures fetching a single queue's counts
// are logged and do not affect the other queues.
package queuemetrics
