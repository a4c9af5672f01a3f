// Package kvstore implements TTL-wrapped persistent key/value caches.
//
// Values are stored as JSON envelopes {"data": ..., "expiry": <epoch ms>} in a
// Storage. A session cache lives as long as the process; a local cache sits on
// a durable Storage (sqlite, Redis) and survives restarts. Reads never return
// errors: corrupt envelopes and storage failures are logged and reported as a
// miss.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// envelope is the persisted form of a cached value.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Expiry int64           `json:"expiry"`
}

// Options configures a Cache.
type Options struct {
	// Name labels log lines ("session", "local").
	Name   string
	Clock  cache.Clock
	Logger *zap.Logger
}

// Cache is a persistent key/value cache over a Storage.
type Cache struct {
	store Storage
	clock cache.Clock
	log   *zap.Logger
}

// New wraps store.
func New(store Storage, opts Options) *Cache {
	if opts.Name == "" {
		opts.Name = "kv"
	}
	return &Cache{
		store: store,
		clock: opts.Clock,
		log:   logger.OrNop(opts.Logger).With(zap.String("store", opts.Name)),
	}
}

// NewSession returns a cache over process-lifetime Memory storage.
func NewSession(opts Options) *Cache {
	if opts.Name == "" {
		opts.Name = "session"
	}
	return New(NewMemory(), opts)
}

// NewLocal returns a cache over a durable storage.
func NewLocal(store Storage, opts Options) *Cache {
	if opts.Name == "" {
		opts.Name = "local"
	}
	return New(store, opts)
}

// Set stores data under key until now+ttl. data must be JSON-serializable.
func (c *Cache) Set(ctx context.Context, key string, data any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	env, err := json.Marshal(envelope{
		Data:   raw,
		Expiry: cache.Now(c.clock).Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("kvstore: encode envelope %q: %w", key, err)
	}
	if err := c.store.SetItem(ctx, key, string(env)); err != nil {
		c.log.Warn("kvstore write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Get decodes the value under key into out. It reports false when the key is
// absent, expired (the item is then deleted), unreadable, or undecodable.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	raw, err := c.store.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("kvstore read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.log.Warn("kvstore corrupt envelope", zap.String("key", key), zap.Error(err))
		return false
	}
	if cache.Now(c.clock).UnixMilli() > env.Expiry {
		c.Remove(ctx, key)
		return false
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.log.Warn("kvstore decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Remove deletes key. Storage failures are logged.
func (c *Cache) Remove(ctx context.Context, key string) {
	if err := c.store.RemoveItem(ctx, key); err != nil {
		c.log.Warn("kvstore remove failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear deletes every item of the underlying storage.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("kvstore clear failed", zap.Error(err))
		return err
	}
	return nil
}

// Len returns the number of stored items, expired ones included.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}
