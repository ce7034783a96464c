package queuemetrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/opsplug/observe"
)

// RedisConnector opens BullMQ queues and event streams on a Store's client.
//
// Queue handles share the store client and closing them never closes it.
// Each event stream blocks in XREAD, so it gets its own single-connection
// client derived from the store client's options.
type RedisConnector struct {
	// BlockTimeout bounds each XREAD on an event stream, and therefore how
	// long Events.Close may wait.
	// Default: 1s
	BlockTimeout time.Duration

	// Logger receives event stream read failures.
	Logger observe.Logger
}

func (c *RedisConnector) logger() observe.Logger {
	if c.Logger == nil {
		return observe.NewNopLogger()
	}
	return c.Logger
}

// OpenQueue returns a handle on ref's job keys.
func (c *RedisConnector) OpenQueue(_ context.Context, ref QueueRef) (Queue, error) {
	if ref.Store == nil || ref.Store.Client == nil {
		return nil, fmt.Errorf("queuemetrics: open %s: store has no client", ref)
	}
	return &redisQueue{client: ref.Store.Client, keyPrefix: ref.Store.prefix() + ":" + ref.Queue + ":"}, nil
}

// OpenEvents subscribes to ref's "<prefix>:<queue>:events" stream.
func (c *RedisConnector) OpenEvents(_ context.Context, ref QueueRef) (Events, error) {
	if ref.Store == nil || ref.Store.Client == nil {
		return nil, fmt.Errorf("queuemetrics: open %s events: store has no client", ref)
	}
	block := c.BlockTimeout
	if block <= 0 {
		block = time.Second
	}

	client, owned := subscriberClient(ref.Store.Client)
	ctx, cancel := context.WithCancel(context.Background())
	return &redisEvents{
		client:   client,
		owned:    owned,
		stream:   ref.Store.prefix() + ":" + ref.Queue + ":events",
		block:    block,
		logger:   c.logger().With(observe.Field{Key: "queue", Value: ref.String()}),
		handlers: make(map[string][]EventHandler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// subscriberClient returns a client holding at most one connection, built
// from c's options. owned reports whether the caller must close it.
func subscriberClient(c redis.UniversalClient) (client redis.UniversalClient, owned bool) {
	switch c := c.(type) {
	case *redis.Client:
		opts := *c.Options()
		opts.PoolSize = 1
		opts.MinIdleConns = 0
		opts.MaxIdleConns = 1
		opts.MaxActiveConns = 1
		return redis.NewClient(&opts), true
	case *redis.ClusterClient:
		opts := *c.Options()
		opts.PoolSize = 1
		opts.MinIdleConns = 0
		opts.MaxIdleConns = 1
		opts.MaxActiveConns = 1
		return redis.NewClusterClient(&opts), true
	case *redis.Ring:
		opts := *c.Options()
		opts.PoolSize = 1
		opts.MinIdleConns = 0
		opts.MaxIdleConns = 1
		opts.MaxActiveConns = 1
		return redis.NewRing(&opts), true
	default:
		return c, false
	}
}

type keyKind int

const (
	listKey keyKind = iota
	zsetKey
)

type stateKey struct {
	suffix string
	kind   keyKind
}

// BullMQ keeps waiting jobs in the wait and paused lists; every other state
// maps to a single key.
var stateKeys = map[string][]stateKey{
	StateWaiting:         {{"wait", listKey}, {"paused", listKey}},
	StateActive:          {{"active", listKey}},
	StateDelayed:         {{"delayed", zsetKey}},
	StatePrioritized:     {{"prioritized", zsetKey}},
	StateCompleted:       {{"completed", zsetKey}},
	StateFailed:          {{"failed", zsetKey}},
	StateWaitingChildren: {{"waiting-children", zsetKey}},
}

type redisQueue struct {
	client    redis.UniversalClient
	keyPrefix string
}

func (q *redisQueue) JobCounts(ctx context.Context, states ...string) (map[string]int64, error) {
	for _, s := range states {
		if _, ok := stateKeys[s]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownJobState, s)
		}
	}

	cmds := make(map[string][]*redis.IntCmd, len(states))
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, s := range states {
			for _, k := range stateKeys[s] {
				key := q.keyPrefix + k.suffix
				if k.kind == listKey {
					cmds[s] = append(cmds[s], p.LLen(ctx, key))
				} else {
					cmds[s] = append(cmds[s], p.ZCard(ctx, key))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(states))
	for s, cs := range cmds {
		for _, c := range cs {
			counts[s] += c.Val()
		}
	}
	return counts, nil
}

func (q *redisQueue) Job(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HMGet(ctx, q.keyPrefix+id, "timestamp", "processedOn", "finishedOn").Result()
	if err != nil {
		return nil, err
	}
	if fields[0] == nil {
		return nil, nil
	}

	job := &Job{ID: id}
	for i, dst := range []*time.Time{&job.CreatedAt, &job.ProcessedAt, &job.FinishedAt} {
		s, ok := fields[i].(string)
		if !ok || s == "" {
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("queuemetrics: job %s: %w", id, err)
		}
		*dst = time.UnixMilli(ms)
	}
	return job, nil
}

func (q *redisQueue) Close() error { return nil }

type redisEvents struct {
	client redis.UniversalClient
	owned  bool
	stream string
	block  time.Duration
	logger observe.Logger

	mu       sync.RWMutex
	handlers map[string][]EventHandler

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// On registers handler for event. The read loop starts on the first call.
func (e *redisEvents) On(event string, handler EventHandler) {
	e.mu.Lock()
	e.handlers[event] = append(e.handlers[event], handler)
	e.mu.Unlock()

	e.startOnce.Do(func() { go e.loop() })
}

// Close stops the read loop, waits for it and releases the stream's client.
func (e *redisEvents) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		started := true
		e.startOnce.Do(func() { started = false })
		if started {
			<-e.done
		}
		if e.owned {
			err = e.client.Close()
		}
	})
	return err
}

func (e *redisEvents) loop() {
	defer close(e.done)

	lastID, err := e.tail()
	for err != nil {
		if !e.backoff(err) {
			return
		}
		lastID, err = e.tail()
	}

	for {
		streams, err := e.client.XRead(e.ctx, &redis.XReadArgs{
			Streams: []string{e.stream, lastID},
			Count:   100,
			Block:   e.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if !e.backoff(err) {
				return
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				e.dispatch(msg.Values)
			}
		}
	}
}

// tail returns the id of the newest stream entry so that only events
// emitted after subscribing are delivered.
func (e *redisEvents) tail() (string, error) {
	msgs, err := e.client.XRevRangeN(e.ctx, e.stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// backoff logs err and sleeps before the next read. It reports false once
// the subscription is closed.
func (e *redisEvents) backoff(err error) bool {
	if e.ctx.Err() != nil {
		return false
	}
	e.logger.Warn(e.ctx, "queue event stream read failed", observe.Err(err))

	t := time.NewTimer(e.block)
	defer t.Stop()
	select {
	case <-e.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *redisEvents) dispatch(values map[string]interface{}) {
	name, _ := values["event"].(string)
	jobID, _ := values["jobId"].(string)
	if name == "" {
		return
	}

	e.mu.RLock()
	handlers := e.handlers[name]
	e.mu.RUnlock()

	ev := Event{Name: name, JobID: jobID}
	for _, h := range handlers {
		e.safeCall(h, ev)
	}
}

func (e *redisEvents) safeCall(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(e.ctx, "queue event handler panicked",
				observe.Field{Key: "event", Value: ev.Name},
				observe.Field{Key: "job_id", Value: ev.JobID},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	h(e.ctx, ev)
}

var (
	_ Connector = (*RedisConnector)(nil)
	_ Queue     = (*redisQueue)(nil)
	_ Events    = (*redisEvents)(nil)
)
