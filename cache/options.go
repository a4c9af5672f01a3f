package cache

import "time"

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictTTL: expired entry observed by a read (lazy eviction on access).
	EvictTTL EvictReason = iota
	// EvictCleared: removed by Clear.
	EvictCleared
)

// String returns a stable label value for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowUnixNano implements Clock.
func (SystemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Now returns the current time of c, falling back to the wall clock for nil.
func Now(c Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return time.Unix(0, c.NowUnixNano())
}

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Clock    => SystemClock
type Options[V any] struct {
	// DefaultTTL applies to Set when no per-key TTL is provided (0 = no TTL).
	DefaultTTL time.Duration

	// Shards defines the number of shards. If 0, an automatic value is chosen
	// (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// OnEvict is called on eviction under the shard lock; keep callbacks lightweight.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding time source (tests).
	Clock Clock
}
