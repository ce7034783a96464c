package queuemetrics

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DefaultDiscoveryConcurrency is the number of stores enumerated at once.
const DefaultDiscoveryConcurrency = 3

// Discoverer enumerates the queues to observe.
type Discoverer interface {
	DiscoverQueues(ctx context.Context) ([]QueueRef, error)
}

// discoverStores runs list for every store with at most limit in flight.
// Names are deduplicated and sorted per store; results follow store order.
// The first error cancels the remaining stores and is returned alone.
func discoverStores(ctx context.Context, stores []*Store, limit int, list func(context.Context, *Store) ([]string, error)) ([]QueueRef, error) {
	if limit <= 0 {
		limit = DefaultDiscoveryConcurrency
	}

	perStore := make([][]string, len(stores))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, s := range stores {
		g.Go(func() error {
			names, err := list(ctx, s)
			if err != nil {
				return fmt.Errorf("queuemetrics: discover queues on %s: %w", s.Name, err)
			}
			slices.Sort(names)
			perStore[i] = slices.Compact(names)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var refs []QueueRef
	for i, names := range perStore {
		for _, n := range names {
			refs = append(refs, QueueRef{Store: stores[i], Queue: n})
		}
	}
	return refs, nil
}

// RedisDiscoverer finds queues by scanning each store for BullMQ
// "<prefix>:<queue>:meta" keys.
type RedisDiscoverer struct {
	Stores []*Store

	// Concurrency caps the stores scanned at once.
	// Default: 3
	Concurrency int

	// ScanCount is the COUNT hint passed to SCAN.
	// Default: 100
	ScanCount int64
}

// DiscoverQueues implements Discoverer.
func (d *RedisDiscoverer) DiscoverQueues(ctx context.Context) ([]QueueRef, error) {
	return discoverStores(ctx, d.Stores, d.Concurrency, d.scanStore)
}

func (d *RedisDiscoverer) scanStore(ctx context.Context, s *Store) ([]string, error) {
	count := d.ScanCount
	if count <= 0 {
		count = 100
	}
	head := s.prefix() + ":"
	pattern := head + "*:meta"

	var (
		mu    sync.Mutex
		names []string
	)
	scan := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, pattern, count).Iterator()
		for iter.Next(ctx) {
			name, ok := strings.CutPrefix(iter.Val(), head)
			if !ok {
				continue
			}
			name, ok = strings.CutSuffix(name, ":meta")
			if !ok || name == "" {
				continue
			}
			mu.Lock()
			names = append(names, name)
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cc, ok := s.Client.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return scan(ctx, c)
		})
	} else {
		err = scan(ctx, s.Client)
	}
	return names, err
}

// ActiveQueueLister returns the ids of the queues registered as active on a
// store by the job processing library.
type ActiveQueueLister interface {
	ActiveQueueIDs(ctx context.Context, store *Store) ([]string, error)
}

// ActiveQueueListerFunc adapts a function to ActiveQueueLister.
type ActiveQueueListerFunc func(ctx context.Context, store *Store) ([]string, error)

// ActiveQueueIDs implements ActiveQueueLister.
func (f ActiveQueueListerFunc) ActiveQueueIDs(ctx context.Context, store *Store) ([]string, error) {
	return f(ctx, store)
}

// ActiveQueuesDiscoverer delegates per-store enumeration to a lister.
type ActiveQueuesDiscoverer struct {
	Stores []*Store

	// Lister enumerates one store.
	// Default: RedisActiveQueueLister with its default key
	Lister ActiveQueueLister

	// Concurrency caps the stores listed at once.
	// Default: 3
	Concurrency int
}

// DiscoverQueues implements Discoverer.
func (d *ActiveQueuesDiscoverer) DiscoverQueues(ctx context.Context) ([]QueueRef, error) {
	lister := d.Lister
	if lister == nil {
		lister = RedisActiveQueueLister{}
	}
	return discoverStores(ctx, d.Stores, d.Concurrency, lister.ActiveQueueIDs)
}

// DefaultActiveQueuesKey is the sorted set in which background job
// processors register their queue ids.
const DefaultActiveQueuesKey = "background-jobs-common:background-job:queues"

// RedisActiveQueueLister reads queue ids from a sorted set.
type RedisActiveQueueLister struct {
	// Key is the sorted set holding queue ids.
	// Default: DefaultActiveQueuesKey
	Key string
}

// ActiveQueueIDs implements ActiveQueueLister.
func (l RedisActiveQueueLister) ActiveQueueIDs(ctx context.Context, store *Store) ([]string, error) {
	key := l.Key
	if key == "" {
		key = DefaultActiveQueuesKey
	}
	return store.Client.ZRange(ctx, key, 0, -1).Result()
}

var (
	_ Discoverer        = (*RedisDiscoverer)(nil)
	_ Discoverer        = (*ActiveQueuesDiscoverer)(nil)
	_ ActiveQueueLister = RedisActiveQueueLister{}
)
