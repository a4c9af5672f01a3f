// Package prom exports warmcache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/warmcache/cache"
	"github.com/IvanBrykalov/warmcache/prefetch"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	sizeEnt prometheus.Gauge
}

// New constructs a Prometheus cache metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries, expired ones not yet evicted included",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// PrefetchAdapter implements prefetch.Metrics.
type PrefetchAdapter struct {
	submitted prometheus.Counter
	skipped   *prometheus.CounterVec
	completed *prometheus.CounterVec
	running   prometheus.Gauge
}

// NewPrefetch constructs a Prometheus prefetch metrics adapter. Arguments
// follow New.
func NewPrefetch(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *PrefetchAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &PrefetchAdapter{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "submitted_total",
			Help:        "Prefetch tasks accepted by the scheduler",
			ConstLabels: constLabels,
		}),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "skipped_total",
				Help:        "Prefetch submissions rejected, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "completed_total",
				Help:        "Finished prefetch tasks, by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "running",
			Help:        "Prefetch tasks currently executing",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.submitted, a.skipped, a.completed, a.running)
	return a
}

func (a *PrefetchAdapter) Submitted()               { a.submitted.Inc() }
func (a *PrefetchAdapter) Skipped(reason string)    { a.skipped.WithLabelValues(reason).Inc() }
func (a *PrefetchAdapter) Completed(outcome string) { a.completed.WithLabelValues(outcome).Inc() }
func (a *PrefetchAdapter) Running(n int)            { a.running.Set(float64(n)) }

// Compile-time checks.
var (
	_ cache.Metrics    = (*Adapter)(nil)
	_ prefetch.Metrics = (*PrefetchAdapter)(nil)
)
