// Package coordinator runs lifecycle operations across all cache tiers:
// flushing, diagnostics, and the periodic component-state cleanup.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/apicache"
	"github.com/IvanBrykalov/warmcache/blobcache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
	"github.com/IvanBrykalov/warmcache/kvstore"
	"github.com/IvanBrykalov/warmcache/statecache"
)

const (
	// DefaultRetention is the age after which Cleanup drops component states.
	DefaultRetention = 10 * time.Minute
	// DefaultCleanupInterval is the ticker period used by Start.
	DefaultCleanupInterval = 5 * time.Minute
)

// Tiers are the caches a Coordinator manages. Any of them may be nil.
type Tiers struct {
	API        *apicache.Cache
	Blobs      *blobcache.Cache
	Components *statecache.Cache
	Session    *kvstore.Cache
	Local      *kvstore.Cache
}

// Options configures a Coordinator.
type Options struct {
	Retention       time.Duration
	CleanupInterval time.Duration
	Logger          *zap.Logger
}

// Stats holds entry counts per tier. A tier that is not configured or whose
// count could not be read reports -1.
type Stats struct {
	APIEntries      int   `json:"api_entries"`
	BlobHandles     int   `json:"blob_handles"`
	BlobDurable     int   `json:"blob_durable"`
	BlobBytes       int64 `json:"blob_bytes"`
	ComponentStates int   `json:"component_states"`
	SessionEntries  int   `json:"session_entries"`
	LocalEntries    int   `json:"local_entries"`
}

// Coordinator owns no data; it operates on the tiers it was given.
type Coordinator struct {
	tiers     Tiers
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Coordinator.
func New(tiers Tiers, opts Options) *Coordinator {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	return &Coordinator{
		tiers:     tiers,
		retention: opts.Retention,
		interval:  opts.CleanupInterval,
		log:       logger.OrNop(opts.Logger).Named("coordinator"),
	}
}

// ClearAll flushes the API, blob, component and session tiers. The local
// store is left alone: it holds data that must outlive a cache flush.
// Every tier is attempted; the joined errors are returned.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	var errs []error
	if c.tiers.API != nil {
		c.tiers.API.Clear()
	}
	if c.tiers.Blobs != nil {
		if err := c.tiers.Blobs.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.tiers.Components != nil {
		c.tiers.Components.ClearAll()
	}
	if c.tiers.Session != nil {
		if err := c.tiers.Session.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		c.log.Warn("clear all finished with errors", zap.Error(err))
	} else {
		c.log.Info("all caches cleared")
	}
	return err
}

// Stats returns per-tier entry counts for diagnostics.
func (c *Coordinator) Stats(ctx context.Context) Stats {
	s := Stats{
		APIEntries:      -1,
		BlobHandles:     -1,
		BlobDurable:     -1,
		BlobBytes:       -1,
		ComponentStates: -1,
		SessionEntries:  -1,
		LocalEntries:    -1,
	}
	if c.tiers.API != nil {
		s.APIEntries = c.tiers.API.Len()
	}
	if c.tiers.Blobs != nil {
		s.BlobHandles = c.tiers.Blobs.Len()
		if n, err := c.tiers.Blobs.DurableCount(ctx); err == nil {
			s.BlobDurable = n
		} else {
			c.log.Warn("blob count unavailable", zap.Error(err))
		}
		if n, err := c.tiers.Blobs.DurableSize(ctx); err == nil {
			s.BlobBytes = n
		} else {
			c.log.Warn("blob size unavailable", zap.Error(err))
		}
	}
	if c.tiers.Components != nil {
		s.ComponentStates = c.tiers.Components.Len()
	}
	s.SessionEntries = c.kvLen(ctx, c.tiers.Session, "session")
	s.LocalEntries = c.kvLen(ctx, c.tiers.Local, "local")
	return s
}

func (c *Coordinator) kvLen(ctx context.Context, kv *kvstore.Cache, name string) int {
	if kv == nil {
		return -1
	}
	n, err := kv.Len(ctx)
	if err != nil {
		c.log.Warn("kv count unavailable", zap.String("store", name), zap.Error(err))
		return -1
	}
	return n
}

// Cleanup drops component states older than the retention window and
// returns how many were removed.
func (c *Coordinator) Cleanup() int {
	if c.tiers.Components == nil {
		return 0
	}
	n := c.tiers.Components.Sweep(c.retention)
	c.log.Debug("cleanup finished", zap.Int("removed", n))
	return n
}

// Start runs Cleanup every CleanupInterval until Stop. Calling Start on a
// running coordinator does nothing.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.log.Info("starting periodic cleanup", zap.Duration("interval", c.interval))
	go c.run(ctx, c.done)
}

// Stop halts the periodic cleanup and waits for it to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	c.log.Info("periodic cleanup stopped")
}

func (c *Coordinator) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
