package prefetch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// attempts is the per-page-view set of keys a policy has already tried.
type attempts struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// mark records key and reports whether it was new.
func (a *attempts) mark(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen == nil {
		a.seen = make(map[string]struct{})
	}
	if _, ok := a.seen[key]; ok {
		return false
	}
	a.seen[key] = struct{}{}
	return true
}

func (a *attempts) has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.seen[key]
	return ok
}

func (a *attempts) reset() {
	a.mu.Lock()
	clear(a.seen)
	a.mu.Unlock()
}

// Loader warms one part of a route (its code or its data).
type Loader func(ctx context.Context) error

// RoutePrefetcher runs a route's loaders at most once per page view.
type RoutePrefetcher struct {
	log  *zap.Logger
	done attempts
}

// NewRoutePrefetcher returns a RoutePrefetcher.
func NewRoutePrefetcher(log *zap.Logger) *RoutePrefetcher {
	return &RoutePrefetcher{log: logger.OrNop(log).Named("prefetch.route")}
}

// PrefetchRoute runs loadComponent and loadData concurrently the first time
// path is seen and waits for both. Failures are logged; the path stays
// attempted until Reset either way. Nil loaders are skipped. It reports
// whether the loaders ran.
func (r *RoutePrefetcher) PrefetchRoute(ctx context.Context, path string, loadComponent, loadData Loader) bool {
	if !r.done.mark(path) {
		return false
	}

	var g errgroup.Group
	for name, load := range map[string]Loader{"component": loadComponent, "data": loadData} {
		if load == nil {
			continue
		}
		g.Go(func() error {
			if err := load(ctx); err != nil {
				r.log.Debug("route loader failed",
					zap.String("path", path), zap.String("loader", name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return true
}

// Attempted reports whether path was tried in this page view.
func (r *RoutePrefetcher) Attempted(path string) bool { return r.done.has(path) }

// Reset forgets attempted paths (full navigation).
func (r *RoutePrefetcher) Reset() { r.done.reset() }
