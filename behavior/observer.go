// Package behavior collects passive navigation signals (link hover, scroll
// depth, time on page) for one page view and turns them into prefetch hints.
//
// The three streams are independent: each has its own timers, and hooks run
// on timer goroutines without holding the observer's lock.
package behavior

import (
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/internal/logger"
)

// Defaults.
const (
	DefaultHoverDelay        = 100 * time.Millisecond
	DefaultScrollDebounce    = 100 * time.Millisecond
	DefaultNextPageThreshold = 70.0
	DefaultTickInterval      = 5 * time.Second
)

// Hooks are called when a signal crosses its trigger. Nil hooks are skipped.
type Hooks struct {
	// OnHoverIntent receives the path (and query) of a same-origin link the
	// pointer rested on for HoverDelay.
	OnHoverIntent func(path string)
	// OnNextPage fires once per page view when scroll depth first reaches
	// NextPageThreshold.
	OnNextPage func()
}

// Options configures an Observer.
type Options struct {
	Hooks
	// Origin ("https://example.com") decides which links are same-origin.
	// When empty only relative links are.
	Origin string

	HoverDelay        time.Duration
	ScrollDebounce    time.Duration
	NextPageThreshold float64
	TickInterval      time.Duration

	Clock  cache.Clock
	Logger *zap.Logger
}

// Sample is a snapshot of the current page view's signals.
type Sample struct {
	HoveredLinks       map[string]time.Time
	ScrollDepthPercent float64
	TimeOnPage         time.Duration
}

// Observer tracks one page view at a time. Reset starts a new one.
type Observer struct {
	opt    Options
	origin *url.URL
	log    *zap.Logger

	mu          sync.Mutex
	page        uint64 // bumped by Reset; stale timers compare against it
	pageStart   time.Time
	sample      Sample
	nextFired   bool
	hovers      map[string]*hoverTimer
	scrollTimer *time.Timer
	scrollSeq   uint64
	scrollValue float64

	stop chan struct{}
	done chan struct{}
}

// New builds an Observer. It fails only on an unparsable Origin.
func New(opt Options) (*Observer, error) {
	if opt.HoverDelay <= 0 {
		opt.HoverDelay = DefaultHoverDelay
	}
	if opt.ScrollDebounce <= 0 {
		opt.ScrollDebounce = DefaultScrollDebounce
	}
	if opt.NextPageThreshold <= 0 {
		opt.NextPageThreshold = DefaultNextPageThreshold
	}
	if opt.TickInterval <= 0 {
		opt.TickInterval = DefaultTickInterval
	}
	o := &Observer{
		opt:    opt,
		log:    logger.OrNop(opt.Logger).Named("behavior"),
		hovers: make(map[string]*hoverTimer),
	}
	if opt.Origin != "" {
		u, err := url.Parse(opt.Origin)
		if err != nil {
			return nil, err
		}
		o.origin = u
	}
	o.pageStart = o.now()
	o.sample.HoveredLinks = make(map[string]time.Time)
	return o, nil
}

type hoverTimer struct {
	timer *time.Timer
	page  uint64
}

// PointerOver starts the hover-intent timer for href.
func (o *Observer) PointerOver(href string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, pending := o.hovers[href]; pending {
		return
	}
	h := &hoverTimer{page: o.page}
	h.timer = time.AfterFunc(o.opt.HoverDelay, func() { o.hoverFired(href, h) })
	o.hovers[href] = h
}

// PointerOut cancels a pending hover-intent timer for href.
func (o *Observer) PointerOut(href string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.hovers[href]; ok {
		h.timer.Stop()
		delete(o.hovers, href)
	}
}

// hoverFired runs when h elapses. A timer that was cancelled or replaced
// after it had already fired finds another entry (or none) under href.
func (o *Observer) hoverFired(href string, h *hoverTimer) {
	o.mu.Lock()
	if h.page != o.page || o.hovers[href] != h {
		o.mu.Unlock()
		return
	}
	delete(o.hovers, href)
	o.sample.HoveredLinks[href] = o.now()
	o.mu.Unlock()

	path, ok := o.sameOriginPath(href)
	if !ok {
		return
	}
	o.log.Debug("hover intent", zap.String("path", path))
	if o.opt.OnHoverIntent != nil {
		o.opt.OnHoverIntent(path)
	}
}

// Scroll reports the current scroll position in percent of the page. Calls
// are debounced; only the last value of a burst is applied.
func (o *Observer) Scroll(percent float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scrollTimer != nil {
		o.scrollTimer.Stop()
	}
	o.scrollSeq++
	o.scrollValue = percent
	page, seq := o.page, o.scrollSeq
	o.scrollTimer = time.AfterFunc(o.opt.ScrollDebounce, func() { o.applyScroll(page, seq) })
}

func (o *Observer) applyScroll(page, seq uint64) {
	o.mu.Lock()
	if page != o.page || seq != o.scrollSeq {
		o.mu.Unlock()
		return
	}
	o.scrollTimer = nil
	depth := min(max(o.scrollValue, 0), 100)
	if depth > o.sample.ScrollDepthPercent {
		o.sample.ScrollDepthPercent = depth
	}
	crossed := !o.nextFired && o.sample.ScrollDepthPercent >= o.opt.NextPageThreshold
	if crossed {
		o.nextFired = true
	}
	o.mu.Unlock()

	if crossed {
		o.log.Debug("next-page threshold reached", zap.Float64("depth", depth))
		if o.opt.OnNextPage != nil {
			o.opt.OnNextPage()
		}
	}
}

// Start begins updating TimeOnPage every TickInterval. Calling Start on a
// started observer does nothing.
func (o *Observer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stop != nil {
		return
	}
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	go o.tick(o.stop, o.done)
}

func (o *Observer) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.opt.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			o.sample.TimeOnPage = o.now().Sub(o.pageStart)
			o.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Stop tears the observer down: the ticker exits and pending timers are
// cancelled.
func (o *Observer) Stop() {
	o.mu.Lock()
	stop, done := o.stop, o.done
	o.stop, o.done = nil, nil
	o.cancelTimersLocked()
	o.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Reset starts a new page view: the sample is cleared, pending timers are
// dropped and the next-page trigger is re-armed.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.page++
	o.cancelTimersLocked()
	o.sample = Sample{HoveredLinks: make(map[string]time.Time)}
	o.nextFired = false
	o.pageStart = o.now()
}

// Sample returns a copy of the current signals.
func (o *Observer) Sample() Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sample
	s.HoveredLinks = make(map[string]time.Time, len(o.sample.HoveredLinks))
	for k, v := range o.sample.HoveredLinks {
		s.HoveredLinks[k] = v
	}
	return s
}

func (o *Observer) cancelTimersLocked() {
	for href, h := range o.hovers {
		h.timer.Stop()
		delete(o.hovers, href)
	}
	if o.scrollTimer != nil {
		o.scrollTimer.Stop()
		o.scrollTimer = nil
	}
	o.scrollSeq++
}

// sameOriginPath resolves href against Origin and returns its path and
// query when it points at the same origin.
func (o *Observer) sameOriginPath(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if o.origin == nil {
		if u.IsAbs() || u.Host != "" {
			return "", false
		}
	} else {
		u = o.origin.ResolveReference(u)
		if u.Scheme != o.origin.Scheme || u.Host != o.origin.Host {
			return "", false
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, true
}

func (o *Observer) now() time.Time {
	return cache.Now(o.opt.Clock)
}
