// Package cache provides ExpiringCache, a generic, sharded in-memory cache
// with per-entry TTL. It is the leaf primitive the other warmcache tiers
// (API responses, prefetch results) are built on.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by an
//     RWMutex. The shard count is a power of two picked from GOMAXPROCS
//     unless Options.Shards is set.
//
//   - TTL: entries carry an absolute UnixNano deadline. An entry is visible
//     only while now < deadline. Expiration is lazy: the first Get or Has
//     that observes an expired entry deletes it. There is no background
//     sweeper, so an idle cache costs no CPU.
//
//   - Len counts resident entries, including expired entries no read has
//     touched yet.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
//   - Clock: Options.Clock overrides the time source for deterministic tests.
//
// Basic usage
//
//	c := cache.New[int](cache.Options[int]{DefaultTTL: time.Second})
//	c.Set("a", 42)
//	v, ok := c.Get("a") // 42, true
//	time.Sleep(1001 * time.Millisecond)
//	_, ok = c.Get("a") // false, entry deleted
package cache
