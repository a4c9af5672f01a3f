// Package prefetch runs speculative fetches: a bounded-concurrency
// Scheduler plus the route, image and endpoint policies that decide what to
// warm. Prefetching is best-effort; failures are logged and never surfaced.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	perrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/warmcache/apicache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// Scheduler defaults.
const (
	DefaultMaxConcurrent = 3
	DefaultTimeout       = 5 * time.Second
	DefaultCachePrefix   = "prefetch:"
	DefaultCacheTTL      = 10 * time.Minute
)

// Priority orders queued tasks. High tasks are admitted before Low ones.
type Priority int

const (
	Low Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "low"
}

// Task is one speculative fetch.
type Task struct {
	ID       string
	URL      string
	Priority Priority
	// CacheOnSuccess stores the body in the API cache under CachePrefix+URL.
	CacheOnSuccess bool
	// Timeout bounds the fetch; <= 0 selects the scheduler default.
	Timeout time.Duration
}

// NewTask returns a Task with a fresh ID.
func NewTask(url string, p Priority, cacheOnSuccess bool) Task {
	return Task{ID: uuid.NewString(), URL: url, Priority: p, CacheOnSuccess: cacheOnSuccess}
}

// Options configures a Scheduler.
type Options struct {
	MaxConcurrent int
	Timeout       time.Duration
	CachePrefix   string
	CacheTTL      time.Duration

	Fetcher Fetcher
	Network NetworkInfo
	// Cache receives bodies of CacheOnSuccess tasks; nil disables caching.
	Cache   *apicache.Cache
	Metrics Metrics
	Logger  *zap.Logger
}

// Scheduler deduplicates tasks by URL and runs at most MaxConcurrent at once.
// A URL stays in the in-flight set from Submit until its task finishes,
// whatever the outcome.
type Scheduler struct {
	opt     Options
	log     *zap.Logger
	gateLog rate.Sometimes

	mu       sync.Mutex
	idle     *sync.Cond
	inflight map[string]struct{}
	high     []Task
	low      []Task
	running  int
	closed   bool
}

// NewScheduler builds a Scheduler. A nil Fetcher selects NewHTTPFetcher.
func NewScheduler(opt Options) *Scheduler {
	if opt.MaxConcurrent <= 0 {
		opt.MaxConcurrent = DefaultMaxConcurrent
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.CachePrefix == "" {
		opt.CachePrefix = DefaultCachePrefix
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = DefaultCacheTTL
	}
	if opt.Fetcher == nil {
		opt.Fetcher = NewHTTPFetcher()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	s := &Scheduler{
		opt:      opt,
		log:      logger.OrNop(opt.Logger).Named("prefetch"),
		gateLog:  rate.Sometimes{Interval: time.Minute},
		inflight: make(map[string]struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Submit queues t and reports whether it was accepted. It is a no-op on a
// constrained network, for a URL already in flight, and after Close.
func (s *Scheduler) Submit(t Task) bool {
	if t.URL == "" {
		return false
	}
	if Constrained(s.opt.Network) {
		s.gateLog.Do(func() {
			s.log.Info("prefetch disabled on constrained network",
				zap.String("effective_type", s.opt.Network.EffectiveType()),
				zap.Bool("save_data", s.opt.Network.SaveData()),
			)
		})
		s.opt.Metrics.Skipped(SkipNetwork)
		return false
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timeout <= 0 {
		t.Timeout = s.opt.Timeout
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.opt.Metrics.Skipped(SkipClosed)
		return false
	}
	if _, dup := s.inflight[t.URL]; dup {
		s.mu.Unlock()
		s.opt.Metrics.Skipped(SkipDuplicate)
		return false
	}
	s.inflight[t.URL] = struct{}{}
	if t.Priority == High {
		s.high = append(s.high, t)
	} else {
		s.low = append(s.low, t)
	}
	s.dispatchLocked()
	s.mu.Unlock()

	s.opt.Metrics.Submitted()
	return true
}

// InFlight returns the number of queued and running tasks.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Running returns the number of executing tasks.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending reports whether url is queued or running.
func (s *Scheduler) Pending(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[url]
	return ok
}

// Wait blocks until no task is queued or running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	for len(s.inflight) > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close rejects further submissions and waits for queued tasks to finish.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Wait()
	return nil
}

// dispatchLocked starts queued tasks while slots are free. s.mu must be held.
func (s *Scheduler) dispatchLocked() {
	for s.running < s.opt.MaxConcurrent {
		var t Task
		switch {
		case len(s.high) > 0:
			t, s.high = s.high[0], s.high[1:]
		case len(s.low) > 0:
			t, s.low = s.low[0], s.low[1:]
		default:
			return
		}
		s.running++
		s.opt.Metrics.Running(s.running)
		go s.run(t)
	}
}

func (s *Scheduler) run(t Task) {
	s.opt.Metrics.Completed(s.execute(t))

	s.mu.Lock()
	delete(s.inflight, t.URL)
	s.running--
	s.opt.Metrics.Running(s.running)
	s.dispatchLocked()
	if len(s.inflight) == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scheduler) execute(t Task) string {
	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout)
	defer cancel()

	log := s.log.With(zap.String("task", t.ID), zap.String("url", t.URL), zap.Stringer("priority", t.Priority))

	body, err := s.opt.Fetcher.Fetch(ctx, t.URL)
	if err != nil {
		err = Classify(ctx, err)
		code := perrors.GetCode(err)
		log.Debug("prefetch failed",
			zap.String("code", string(code)),
			zap.Bool("retryable", perrors.IsRetryable(err)),
			zap.Error(err),
		)
		if code == perrors.CodeTimeout {
			return OutcomeTimeout
		}
		return OutcomeError
	}

	if t.CacheOnSuccess && s.opt.Cache != nil {
		s.opt.Cache.Set(s.opt.CachePrefix+t.URL, body, s.opt.CacheTTL)
	}
	log.Debug("prefetched", zap.Int("bytes", len(body)))
	return OutcomeOK
}
