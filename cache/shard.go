package cache

import (
	"sync"
	"sync/atomic"
)

// entry is a value plus its absolute expiration deadline in UnixNano.
// Zero means "no TTL".
type entry[V any] struct {
	val V
	exp int64
}

// shard is an independent partition of the cache with its own lock and map.
type shard[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	opt *Options[V]

	// total is the cache-wide resident entry counter shared by all shards.
	total *atomic.Int64
}

func newShard[V any](opt *Options[V], total *atomic.Int64) *shard[V] {
	return &shard[V]{
		m:     make(map[string]entry[V]),
		opt:   opt,
		total: total,
	}
}

// Set inserts or overwrites an entry. exp is an absolute UnixNano deadline.
func (s *shard[V]) Set(k string, v V, exp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.m[k]; !exists {
		s.opt.Metrics.Size(int(s.total.Add(1)))
	}
	s.m[k] = entry[V]{val: v, exp: exp}
}

// Get returns the value if present and not expired.
// TTL: if expired, the entry is evicted and a miss is returned.
func (s *shard[V]) Get(k string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if !ok {
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	if s.expiredLocked(e) {
		s.evictLocked(k, e, EvictTTL)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	s.opt.Metrics.Hit()
	return e.val, true
}

// Has reports presence with the same lazy expiry as Get, without touching
// hit/miss counters.
func (s *shard[V]) Has(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if !ok {
		return false
	}
	if s.expiredLocked(e) {
		s.evictLocked(k, e, EvictTTL)
		return false
	}
	return true
}

// Remove deletes an entry by key. Returns true if the entry existed.
// Explicit removal is not counted as an eviction.
func (s *shard[V]) Remove(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	s.opt.Metrics.Size(int(s.total.Add(-1)))
	return true
}

// Clear drops every entry in the shard.
func (s *shard[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.m {
		s.evictLocked(k, e, EvictCleared)
	}
}

// Len returns the number of resident entries in this shard.
func (s *shard[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// appendKeys appends resident keys to dst.
func (s *shard[V]) appendKeys(dst []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.m {
		dst = append(dst, k)
	}
	return dst
}

// -------------------- internals (mu held) --------------------

// expiredLocked treats now == exp as expired: an entry is visible only while now < exp.
func (s *shard[V]) expiredLocked(e entry[V]) bool {
	if e.exp == 0 {
		return false
	}
	return s.opt.Clock.NowUnixNano() >= e.exp
}

// evictLocked removes the entry, reports metrics, and calls OnEvict.
func (s *shard[V]) evictLocked(k string, e entry[V], reason EvictReason) {
	delete(s.m, k)
	s.opt.Metrics.Evict(reason)
	s.opt.Metrics.Size(int(s.total.Add(-1)))
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, e.val, reason)
	}
}
