// Package warmcache wires the cache tiers, the prefetch machinery and the
// behavior observer into one Layer built from a config.Config.
//
//	cfg, _ := config.Load(nil)
//	layer, err := warmcache.New(cfg, warmcache.Options{})
//	if err != nil { ... }
//	defer layer.Close()
//	layer.Start()
//
//	posts, err := apicache.GetWithSWR(ctx, layer.API, apicache.Key("/api/posts", nil),
//		fetchPosts, 5*time.Second, 30*time.Second)
package warmcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/IvanBrykalov/warmcache/apicache"
	"github.com/IvanBrykalov/warmcache/behavior"
	"github.com/IvanBrykalov/warmcache/blobcache"
	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/config"
	"github.com/IvanBrykalov/warmcache/coordinator"
	"github.com/IvanBrykalov/warmcache/internal/database"
	"github.com/IvanBrykalov/warmcache/internal/logger"
	"github.com/IvanBrykalov/warmcache/kvstore"
	pmet "github.com/IvanBrykalov/warmcache/metrics/prom"
	"github.com/IvanBrykalov/warmcache/prefetch"
	"github.com/IvanBrykalov/warmcache/statecache"
)

// Options carries the collaborators a Layer cannot build from config.
type Options struct {
	// Logger defaults to one built from Config.LogLevel and Config.LogFile.
	Logger *zap.Logger
	// Fetcher defaults to prefetch.NewHTTPFetcher.
	Fetcher prefetch.Fetcher
	// Registry receives the Prometheus collectors; nil creates a private one.
	Registry *prometheus.Registry
	Clock    cache.Clock

	// RouteLoaders returns the loaders for a hovered same-origin path. When
	// nil, hover intent submits the path's URL to the scheduler instead.
	RouteLoaders func(path string) (component, data prefetch.Loader)
	// NextPage returns the URL to warm when the reader nears the end of the
	// page, or "" for none.
	NextPage func() string
}

// Layer owns every tier for the lifetime of the host process.
type Layer struct {
	Config   config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry

	API         *apicache.Cache
	Blobs       *blobcache.Cache
	States      *statecache.Cache
	Session     *kvstore.Cache
	Local       *kvstore.Cache
	Coordinator *coordinator.Coordinator

	Network   *prefetch.Connection
	Scheduler *prefetch.Scheduler
	Routes    *prefetch.RoutePrefetcher
	Images    *prefetch.ImagePrefetcher
	Endpoints *prefetch.EndpointPrefetcher
	Observer  *behavior.Observer

	opts    Options
	imageDB *gorm.DB
	localDB *gorm.DB
	redis   *redis.Client
}

// New builds a Layer. Durable stores that cannot be opened are logged and
// replaced by memory-only tiers; only invalid configuration is an error.
func New(cfg config.Config, opts Options) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	l := &Layer{Config: cfg, Log: log, Registry: reg, opts: opts}

	l.API = apicache.New(apicache.Options{
		DefaultTTL:        cfg.Cache.APIDefaultTTL,
		Retention:         cfg.Cache.APIRetention,
		RevalidateTimeout: cfg.Cache.RevalidateTimeout,
		Shards:            cfg.Cache.Shards,
		Clock:             opts.Clock,
		Metrics:           pmet.New(reg, "warmcache", "api", nil),
		Logger:            log,
	})
	l.Blobs = blobcache.New(l.openImageStore(), blobcache.Options{
		TTL:    cfg.Cache.BlobTTL,
		Clock:  opts.Clock,
		Logger: log,
	})
	l.States = statecache.New(statecache.Options{Clock: opts.Clock, Logger: log})
	l.Session = kvstore.NewSession(kvstore.Options{Clock: opts.Clock, Logger: log})
	l.Local = kvstore.NewLocal(l.openLocalStorage(), kvstore.Options{Clock: opts.Clock, Logger: log})
	l.Coordinator = coordinator.New(coordinator.Tiers{
		API:        l.API,
		Blobs:      l.Blobs,
		Components: l.States,
		Session:    l.Session,
		Local:      l.Local,
	}, coordinator.Options{
		Retention:       cfg.Cache.StateRetention,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Logger:          log,
	})

	l.Network = prefetch.NewConnection(cfg.Prefetch.EffectiveType, cfg.Prefetch.SaveData)
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = prefetch.NewHTTPFetcher()
	}
	l.Scheduler = prefetch.NewScheduler(prefetch.Options{
		MaxConcurrent: cfg.Prefetch.MaxConcurrent,
		Timeout:       cfg.Prefetch.Timeout,
		CacheTTL:      cfg.Prefetch.CacheTTL,
		Fetcher:       fetcher,
		Network:       l.Network,
		Cache:         l.API,
		Metrics:       pmet.NewPrefetch(reg, "warmcache", "prefetch", nil),
		Logger:        log,
	})
	l.Routes = prefetch.NewRoutePrefetcher(log)
	l.Images = prefetch.NewImagePrefetcher(prefetch.ImageOptions{
		MaxImagesFast: cfg.Prefetch.MaxImagesFast,
		MaxImagesSlow: cfg.Prefetch.MaxImagesSlow,
		Timeout:       cfg.Prefetch.Timeout,
		Fetcher:       fetcher,
		Blobs:         l.Blobs,
		Network:       l.Network,
		Logger:        log,
	})

	var err error
	l.Endpoints, err = prefetch.NewEndpointPrefetcher(prefetch.EndpointOptions{
		BaseURL: cfg.APIBaseURL,
		TTL:     cfg.Prefetch.EndpointTTL,
		Timeout: cfg.Prefetch.Timeout,
		Fetcher: fetcher,
		API:     l.API,
		Network: l.Network,
		Logger:  log,
	})
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("api base url: %w", err)
	}

	l.Observer, err = behavior.New(behavior.Options{
		Hooks: behavior.Hooks{
			OnHoverIntent: l.onHoverIntent,
			OnNextPage:    l.onNextPage,
		},
		Origin:            cfg.Origin,
		HoverDelay:        cfg.Behavior.HoverDelay,
		ScrollDebounce:    cfg.Behavior.ScrollDebounce,
		NextPageThreshold: cfg.Behavior.NextPageThreshold,
		TickInterval:      cfg.Behavior.TickInterval,
		Clock:             opts.Clock,
		Logger:            log,
	})
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("origin: %w", err)
	}
	return l, nil
}

func (l *Layer) openImageStore() blobcache.Store {
	db, err := database.OpenSQLite(l.Config.Storage.ImageDB)
	if err == nil {
		var store *blobcache.SQLStore
		if store, err = blobcache.NewSQLStore(db); err == nil {
			l.imageDB = db
			return store
		}
		_ = database.Close(db)
	}
	l.Log.Warn("durable image cache unavailable; using memory only",
		zap.String("db", blobcache.DBName), zap.String("path", l.Config.Storage.ImageDB), zap.Error(err))
	return nil
}

func (l *Layer) openLocalStorage() kvstore.Storage {
	s := l.Config.Storage
	switch s.LocalBackend {
	case config.BackendRedis:
		l.redis = redis.NewClient(&redis.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
		return kvstore.NewRedis(l.redis, s.RedisPrefix)
	case config.BackendSQLite:
		db, err := database.OpenSQLite(s.LocalDB)
		if err == nil {
			var store *kvstore.SQL
			if store, err = kvstore.NewSQL(db); err == nil {
				l.localDB = db
				return store
			}
			_ = database.Close(db)
		}
		l.Log.Warn("local storage unavailable; using memory", zap.String("path", s.LocalDB), zap.Error(err))
	}
	return kvstore.NewMemory()
}

func (l *Layer) onHoverIntent(path string) {
	ctx := context.Background()
	if l.opts.RouteLoaders != nil {
		component, data := l.opts.RouteLoaders(path)
		l.Routes.PrefetchRoute(ctx, path, component, data)
		return
	}
	if target := l.absolute(path); target != "" {
		l.Scheduler.Submit(prefetch.NewTask(target, prefetch.High, true))
	}
}

func (l *Layer) onNextPage() {
	if l.opts.NextPage == nil {
		return
	}
	if target := l.opts.NextPage(); target != "" {
		l.Scheduler.Submit(prefetch.NewTask(l.absolute(target), prefetch.Low, true))
	}
}

// absolute resolves ref against the configured origin.
func (l *Layer) absolute(ref string) string {
	if l.Config.Origin == "" {
		return ref
	}
	base, err := url.Parse(l.Config.Origin)
	if err != nil {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// Start launches the periodic cleanup and the observer's page timer.
func (l *Layer) Start() {
	l.Coordinator.Start()
	l.Observer.Start()
}

// Navigate begins a new page view: behavior samples and per-page attempt
// sets are reset and page-lifetime blob handles released.
func (l *Layer) Navigate() {
	l.Observer.Reset()
	l.Routes.Reset()
	l.Images.Reset()
	l.Endpoints.Reset()
	l.Blobs.ForgetAll()
}

// Close stops background work, drains prefetches and revalidations, and
// releases storage connections.
func (l *Layer) Close() error {
	if l.Observer != nil {
		l.Observer.Stop()
	}
	l.Coordinator.Stop()

	var errs []error
	if err := l.Scheduler.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := l.API.Close(); err != nil {
		errs = append(errs, err)
	}
	l.Blobs.ForgetAll()
	if err := database.Close(l.imageDB); err != nil {
		errs = append(errs, fmt.Errorf("close image db: %w", err))
	}
	if err := database.Close(l.localDB); err != nil {
		errs = append(errs, fmt.Errorf("close local db: %w", err))
	}
	if l.redis != nil {
		if err := l.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	_ = l.Log.Sync()
	return errors.Join(errs...)
}
