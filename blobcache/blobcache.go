// Package blobcache is a two-tier cache for binary resources such as images.
//
// The fast tier maps resource URLs to in-memory Handles for the lifetime of
// the process. The durable tier (a Store, sqlite in production) keeps the raw
// bytes with their store time. Durable records older than the TTL are deleted
// lazily by the Get that finds them. Durable I/O errors are logged and treated
// as misses; they never reach the caller.
package blobcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// DefaultTTL bounds the age of durable records.
const DefaultTTL = 7 * 24 * time.Hour

// Options configures a Cache.
type Options struct {
	// TTL is the maximum age of a durable record; <= 0 selects DefaultTTL.
	TTL    time.Duration
	Clock  cache.Clock
	Logger *zap.Logger
}

// Cache is the two-tier blob cache. A nil Store makes it memory-only.
type Cache struct {
	store Store
	ttl   time.Duration
	clock cache.Clock
	log   *zap.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// New builds a Cache over store.
func New(store Store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     opts.TTL,
		clock:   opts.Clock,
		log:     logger.OrNop(opts.Logger).With(zap.String("tier", "blob")),
		handles: make(map[string]*Handle),
	}
}

// Get returns a handle for url from memory, falling back to the durable tier.
func (c *Cache) Get(ctx context.Context, url string) (*Handle, bool) {
	c.mu.RLock()
	h, ok := c.handles[url]
	c.mu.RUnlock()
	if ok && !h.Revoked() {
		return h, true
	}
	if c.store == nil {
		return nil, false
	}

	rec, err := c.store.Get(ctx, url)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("durable blob read failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	age := time.Duration(c.nowMillis()-rec.Timestamp) * time.Millisecond
	if age >= c.ttl {
		if err := c.store.Delete(ctx, url); err != nil {
			c.log.Warn("durable blob delete failed", zap.String("url", url), zap.Error(err))
		}
		return nil, false
	}

	return c.remember(url, rec.Blob), true
}

// Set persists blob under url and returns a fresh in-memory handle. A durable
// write failure is logged; the handle is still returned and cached in memory.
func (c *Cache) Set(ctx context.Context, url string, blob []byte) *Handle {
	if c.store != nil {
		rec := Record{URL: url, Blob: blob, Timestamp: c.nowMillis()}
		if err := c.store.Put(ctx, rec); err != nil {
			c.log.Warn("durable blob write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return c.remember(url, blob)
}

// Forget revokes and drops the in-memory handle for url. The durable record stays.
func (c *Cache) Forget(url string) {
	c.mu.Lock()
	h, ok := c.handles[url]
	delete(c.handles, url)
	c.mu.Unlock()
	if ok {
		h.Revoke()
	}
}

// ForgetAll revokes and drops every in-memory handle.
func (c *Cache) ForgetAll() {
	c.mu.Lock()
	old := c.handles
	c.handles = make(map[string]*Handle)
	c.mu.Unlock()
	for _, h := range old {
		h.Revoke()
	}
}

// Clear empties both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.ForgetAll()
	if c.store == nil {
		return nil
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("durable blob clear failed", zap.Error(err))
		return err
	}
	return nil
}

// Len returns the number of in-memory handles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// DurableCount returns the number of durable records (expired ones included).
func (c *Cache) DurableCount(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Count(ctx)
}

// DurableSize returns the total size of durable blobs in bytes.
func (c *Cache) DurableSize(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Size(ctx)
}

// remember installs a new handle for url, revoking the one it replaces.
func (c *Cache) remember(url string, blob []byte) *Handle {
	h := newHandle(url, blob)
	c.mu.Lock()
	old := c.handles[url]
	c.handles[url] = h
	c.mu.Unlock()
	if old != nil {
		old.Revoke()
	}
	return h
}

func (c *Cache) nowMillis() int64 {
	return cache.Now(c.clock).UnixMilli()
}
