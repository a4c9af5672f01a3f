// Package statecache keeps snapshots of component state across short-lived
// unmounts. The cache never inspects or mutates a snapshot's state; it only
// enforces a maximum age on restore.
package statecache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// Snapshot is one saved state.
type Snapshot struct {
	Key     string
	State   any
	SavedAt time.Time
}

// Options configures a Cache.
type Options struct {
	Clock  cache.Clock
	Logger *zap.Logger
}

// Cache maps component keys to snapshots. Safe for concurrent use.
type Cache struct {
	clock cache.Clock
	log   *zap.Logger

	mu   sync.Mutex
	snap map[string]Snapshot
}

// New builds an empty Cache.
func New(opts Options) *Cache {
	return &Cache{
		clock: opts.Clock,
		log:   logger.OrNop(opts.Logger).With(zap.String("tier", "component")),
		snap:  make(map[string]Snapshot),
	}
}

// Save stores state under key, replacing any previous snapshot.
func (c *Cache) Save(key string, state any) {
	c.mu.Lock()
	c.snap[key] = Snapshot{Key: key, State: state, SavedAt: c.now()}
	c.mu.Unlock()
}

// Restore returns the state saved under key if it is at most maxAge old.
// An older snapshot is deleted.
func (c *Cache) Restore(key string, maxAge time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.snap[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(s.SavedAt) > maxAge {
		delete(c.snap, key)
		return nil, false
	}
	return s.State, true
}

// RestoreAs is Restore with a typed result. A snapshot of another type is a
// miss and is left in place.
func RestoreAs[T any](c *Cache, key string, maxAge time.Duration) (T, bool) {
	v, ok := c.Restore(key, maxAge)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Clear removes the snapshot for key.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	delete(c.snap, key)
	c.mu.Unlock()
}

// ClearAll removes every snapshot.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	clear(c.snap)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snap)
}

// Sweep deletes snapshots saved more than olderThan ago and returns how many
// it removed.
func (c *Cache) Sweep(olderThan time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, s := range c.snap {
		if now.Sub(s.SavedAt) > olderThan {
			delete(c.snap, k)
			n++
		}
	}
	if n > 0 {
		c.log.Debug("swept component states", zap.Int("removed", n), zap.Int("remaining", len(c.snap)))
	}
	return n
}

func (c *Cache) now() time.Time {
	return cache.Now(c.clock)
}
