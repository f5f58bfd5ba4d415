// Package cache provides a concurrent string-keyed cache with lock striping,
// TTL expiry, and an optional load-through function for misses.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const defaultShardCount = 64

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache distributes keys across shards to reduce contention. Entries expire
// after the configured TTL; a zero TTL disables expiry.
//
// Usage:
//
//	c := cache.New[Info](cache.WithTTL[Info](30 * time.Second))
//	info, err := c.GetOrLoad(ctx, "key", loadFunc)
type Cache[V any] struct {
	shards    []shard[V]
	numShards int
	ttl       time.Duration

	// loadMu serializes concurrent loads of the same key
	loadMu sync.Mutex
	loads  map[string]*loadCall[V]
}

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
}

type loadCall[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithTTL sets the expiry for cache entries. Entries older than this duration
// are treated as misses.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		c.ttl = ttl
	}
}

// WithNumShards sets the number of shards for lock striping.
func WithNumShards[V any](n int) Option[V] {
	return func(c *Cache[V]) {
		if n < 1 {
			n = 1
		}
		c.numShards = n
	}
}

func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		numShards: defaultShardCount,
		loads:     make(map[string]*loadCall[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.shards = make([]shard[V], c.numShards)
	for i := range c.shards {
		c.shards[i].entries = make(map[string]entry[V])
	}
	return c
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.shards[h.Sum32()%uint32(c.numShards)]
}

func (c *Cache[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && time.Now().After(e.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, expires: time.Now().Add(c.ttl)}
	s.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent loads of the same key are collapsed into a single call; load
// errors are returned to every waiter and nothing is cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context, key string) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	if call, inflight := c.loads[key]; inflight {
		c.loadMu.Unlock()
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	call := &loadCall[V]{done: make(chan struct{})}
	c.loads[key] = call
	c.loadMu.Unlock()

	call.value, call.err = load(ctx, key)
	if call.err == nil {
		c.Set(key, call.value)
	}

	c.loadMu.Lock()
	delete(c.loads, key)
	c.loadMu.Unlock()
	close(call.done)

	return call.value, call.err
}

// Len returns the number of live entries across all shards.
func (c *Cache[V]) Len() int {
	now := time.Now()
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, e := range s.entries {
			if c.ttl == 0 || now.Before(e.expires) {
				total++
			}
		}
		s.mu.RUnlock()
	}
	return total
}
