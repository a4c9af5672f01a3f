package prefetch

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/warmcache/blobcache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// Image prefetch defaults.
const (
	DefaultMaxImagesFast = 10
	DefaultMaxImagesSlow = 3
	highImageParallelism = 6
	lowImageParallelism  = 2
)

// ImageOptions configures an ImagePrefetcher.
type ImageOptions struct {
	// MaxImagesFast caps one call on a 4g connection.
	MaxImagesFast int
	// MaxImagesSlow caps one call on any other connection.
	MaxImagesSlow int
	Timeout       time.Duration

	Fetcher Fetcher
	Blobs   *blobcache.Cache
	Network NetworkInfo
	Logger  *zap.Logger
}

// ImagePrefetcher downloads images into the blob cache.
type ImagePrefetcher struct {
	opt  ImageOptions
	log  *zap.Logger
	done attempts
}

// NewImagePrefetcher builds an ImagePrefetcher. A nil Fetcher selects
// NewHTTPFetcher.
func NewImagePrefetcher(opt ImageOptions) *ImagePrefetcher {
	if opt.MaxImagesFast <= 0 {
		opt.MaxImagesFast = DefaultMaxImagesFast
	}
	if opt.MaxImagesSlow <= 0 {
		opt.MaxImagesSlow = DefaultMaxImagesSlow
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.Fetcher == nil {
		opt.Fetcher = NewHTTPFetcher()
	}
	return &ImagePrefetcher{opt: opt, log: logger.OrNop(opt.Logger).Named("prefetch.image")}
}

// PrefetchImages fetches up to the connection's cap of not-yet-attempted
// urls into the blob cache and returns how many are now cached. Each image
// succeeds or fails on its own. Nothing is fetched on a constrained network.
func (p *ImagePrefetcher) PrefetchImages(ctx context.Context, urls []string, priority Priority) int {
	if Constrained(p.opt.Network) {
		return 0
	}
	limit := p.opt.MaxImagesSlow
	if Fast(p.opt.Network) {
		limit = p.opt.MaxImagesFast
	}

	batch := make([]string, 0, min(limit, len(urls)))
	for _, u := range urls {
		if len(batch) == limit {
			break
		}
		if u != "" && p.done.mark(u) {
			batch = append(batch, u)
		}
	}
	if len(batch) == 0 {
		return 0
	}

	var g errgroup.Group
	if priority == High {
		g.SetLimit(highImageParallelism)
	} else {
		g.SetLimit(lowImageParallelism)
	}

	var cached atomic.Int32
	for _, u := range batch {
		g.Go(func() error {
			if p.fetchOne(ctx, u) {
				cached.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(cached.Load())
	p.log.Debug("image batch done", zap.Int("requested", len(batch)), zap.Int("cached", n))
	return n
}

func (p *ImagePrefetcher) fetchOne(ctx context.Context, url string) bool {
	if p.opt.Blobs != nil {
		if _, ok := p.opt.Blobs.Get(ctx, url); ok {
			return true
		}
	}

	fctx, cancel := context.WithTimeout(ctx, p.opt.Timeout)
	defer cancel()
	body, err := p.opt.Fetcher.Fetch(fctx, url)
	if err != nil {
		p.log.Debug("image prefetch failed", zap.String("url", url), zap.Error(Classify(fctx, err)))
		return false
	}
	if p.opt.Blobs != nil {
		p.opt.Blobs.Set(ctx, url, body)
	}
	return true
}

// Reset forgets attempted urls (full navigation).
func (p *ImagePrefetcher) Reset() { p.done.reset() }
