// Package apicache caches API responses on top of cache.ExpiringCache and
// adds a stale-while-revalidate read path (GetWithSWR).
//
// Every stored value is wrapped in a Record carrying its fetch time, so
// passthrough writes (Set) and SWR writes share one representation and a
// prefetched response is visible to a later GetWithSWR of the same type.
package apicache

import (
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
	"github.com/IvanBrykalov/warmcache/internal/singleflight"
	"github.com/IvanBrykalov/warmcache/internal/util"
)

const (
	DefaultTTL               = 5 * time.Minute
	DefaultRetention         = 30 * time.Minute
	DefaultRevalidateTimeout = 10 * time.Second
)

// Record is a cached response and the time it was fetched.
type Record struct {
	Data      any
	FetchedAt time.Time
}

// Options configures a Cache. Zero values select the package defaults.
type Options struct {
	// DefaultTTL applies to Set calls with ttl == 0.
	DefaultTTL time.Duration
	// Retention is the minimum lifetime of records written by GetWithSWR.
	// Records live for max(Retention, maxAge) so an unusable record can still
	// serve as a fallback when a refetch fails.
	Retention time.Duration
	// RevalidateTimeout bounds one background revalidation.
	RevalidateTimeout time.Duration

	Shards  int
	Clock   cache.Clock
	Metrics cache.Metrics
	Logger  *zap.Logger
}

// Cache is the API response cache. Safe for concurrent use.
type Cache struct {
	entries cache.ExpiringCache[any]
	opt     Options
	log     *zap.Logger

	flights singleflight.Group[string, any]

	mu     sync.Mutex // guards closed and bg.Add
	closed bool
	bg     sync.WaitGroup
}

// New builds a Cache.
func New(opt Options) *Cache {
	if opt.DefaultTTL <= 0 {
		opt.DefaultTTL = DefaultTTL
	}
	if opt.Retention <= 0 {
		opt.Retention = DefaultRetention
	}
	if opt.RevalidateTimeout <= 0 {
		opt.RevalidateTimeout = DefaultRevalidateTimeout
	}
	return &Cache{
		entries: cache.New[any](cache.Options[any]{
			DefaultTTL: opt.DefaultTTL,
			Shards:     opt.Shards,
			Clock:      opt.Clock,
			Metrics:    opt.Metrics,
		}),
		opt: opt,
		log: logger.OrNop(opt.Logger).With(zap.String("tier", "api")),
	}
}

// Key derives a deterministic cache key from an endpoint and its query
// parameters. url.Values.Encode sorts by parameter name, so the key does not
// depend on insertion order.
func Key(endpoint string, params url.Values) string {
	return endpoint + "#" + util.Fnv64aHex(endpoint+"?"+params.Encode())
}

// Set stores data under key for ttl (0 selects DefaultTTL).
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.opt.DefaultTTL
	}
	c.entries.SetWithTTL(key, Record{Data: data, FetchedAt: c.now()}, ttl)
}

// Get returns the data stored under key.
func (c *Cache) Get(key string) (any, bool) {
	rec, ok := c.Record(key)
	if !ok {
		return nil, false
	}
	return rec.Data, true
}

// Record returns the full record stored under key.
func (c *Cache) Record(key string) (Record, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return Record{}, false
	}
	rec, ok := v.(Record)
	return rec, ok
}

func (c *Cache) Has(key string) bool    { return c.entries.Has(key) }
func (c *Cache) Remove(key string) bool { return c.entries.Remove(key) }
func (c *Cache) Clear()                 { c.entries.Clear() }

// Len counts resident records, including expired ones not yet touched.
func (c *Cache) Len() int { return c.entries.Len() }

// Keys returns the resident keys.
func (c *Cache) Keys() []string { return c.entries.Keys() }

// Revalidating reports whether a fetch for key is in flight in the background.
func (c *Cache) Revalidating(key string) bool { return c.flights.InFlight(key) }

// Close stops accepting background revalidations, waits for the running ones
// and closes the underlying cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.bg.Wait()
	return c.entries.Close()
}

func (c *Cache) now() time.Time {
	return cache.Now(c.opt.Clock)
}

// retain stores data as a fresh record kept for max(Retention, maxAge).
func (c *Cache) retain(key string, data any, maxAge time.Duration) {
	ttl := max(c.opt.Retention, maxAge)
	c.entries.SetWithTTL(key, Record{Data: data, FetchedAt: c.now()}, ttl)
}
