package cache

import (
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/warmcache/internal/util"
)

// cache is a sharded in-memory KV store with lazy, read-triggered TTL eviction.
// All methods are safe for concurrent use by multiple goroutines.
type cache[V any] struct {
	shards []*shard[V]
	closed atomic.Bool
	total  atomic.Int64

	opt Options[V]
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Clock    -> SystemClock
//   - Shards <= 0  -> auto, rounded up to the next power of two
func New[V any](opt Options[V]) ExpiringCache[V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Clock == nil {
		opt.Clock = SystemClock{}
	}

	c := &cache[V]{opt: opt}
	n := util.ShardCount(opt.Shards)
	c.shards = make([]*shard[V], n)
	for i := range c.shards {
		c.shards[i] = newShard(&c.opt, &c.total)
	}
	return c
}

// ---- ExpiringCache[V] implementation ----

func (c *cache[V]) Set(k string, v V) {
	c.SetWithTTL(k, v, c.opt.DefaultTTL)
}

func (c *cache[V]) SetWithTTL(k string, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.getShard(k).Set(k, v, c.deadline(ttl))
}

func (c *cache[V]) Get(k string) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

func (c *cache[V]) Has(k string) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Has(k)
}

func (c *cache[V]) Remove(k string) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Remove(k)
}

func (c *cache[V]) Clear() {
	for _, s := range c.shards {
		s.Clear()
	}
}

func (c *cache[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

func (c *cache[V]) Keys() []string {
	keys := make([]string, 0, c.total.Load())
	for _, s := range c.shards {
		keys = s.appendKeys(keys)
	}
	return keys
}

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// getShard picks a shard by hashing the key.
// len(c.shards) is guaranteed to be a power of two.
func (c *cache[V]) getShard(k string) *shard[V] {
	return c.shards[util.ShardIndex(util.Fnv64a(k), len(c.shards))]
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cache[V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.opt.Clock.NowUnixNano() + int64(ttl)
}
