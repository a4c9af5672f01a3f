package cache

import "time"

// ExpiringCache is a sharded, in-memory string-keyed cache with per-entry TTL.
// All methods are safe for concurrent use by multiple goroutines.
//
// Eviction is access-driven only: an expired entry stays resident until a Get
// or Has observes it. There is no background sweeper.
type ExpiringCache[V any] interface {
	// Set inserts or updates key→v using the cache's DefaultTTL (if any).
	Set(key string, v V)

	// SetWithTTL inserts or updates key→v with a per-key TTL (relative duration).
	// A non-positive ttl disables expiration for this entry.
	SetWithTTL(key string, v V, ttl time.Duration)

	// Get returns the value for key and a presence flag.
	// Expired entries are deleted and reported as a miss.
	Get(key string) (V, bool)

	// Has performs the same expiry check as Get without returning the value.
	Has(key string) bool

	// Remove deletes key if present and returns true on success.
	Remove(key string) bool

	// Clear empties all shards.
	Clear()

	// Len returns the number of resident entries across all shards.
	// Expired entries that no read has touched yet are still counted.
	Len() int

	// Keys returns a snapshot of resident keys (expired ones included).
	Keys() []string

	// Close marks the cache closed; later writes are ignored and reads miss.
	Close() error
}
