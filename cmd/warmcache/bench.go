package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/warmcache/cache"
	pmet "github.com/IvanBrykalov/warmcache/metrics/prom"
)

type benchOptions struct {
	Shards   int
	TTL      time.Duration
	Workers  int
	Duration time.Duration
	ReadPct  int
	Keys     int
	ZipfS    float64
	ZipfV    float64
	Seed     int64
	Preload  int
	Metrics  string
}

type benchResult struct {
	Ops, Reads, Writes, Hits, Misses uint64
	Elapsed                          time.Duration
	Len                              int
}

func (r benchResult) hitRate() float64 {
	if r.Reads == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Reads) * 100
}

var bench benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic read/write workload against the expiring cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bench.ReadPct < 0 || bench.ReadPct > 100 {
			return fmt.Errorf("reads must be in [0, 100], got %d", bench.ReadPct)
		}
		if bench.ZipfS <= 1 {
			return fmt.Errorf("zipf-s must be > 1, got %v", bench.ZipfS)
		}
		if bench.Keys < 1 {
			return errors.New("keys must be >= 1")
		}

		reg := prometheus.NewRegistry()
		if bench.Metrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: bench.Metrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() { _ = srv.ListenAndServe() }()
			defer func() { _ = srv.Close() }()
		}

		res := runBench(cmd.Context(), bench, pmet.New(reg, "warmcache", "bench", nil))
		printBench(cmd.OutOrStdout(), bench, res)
		return nil
	},
}

func init() {
	f := benchCmd.Flags()
	f.IntVar(&bench.Shards, "shards", 0, "number of shards (0=auto)")
	f.DurationVar(&bench.TTL, "ttl", 0, "default entry TTL (0=none)")
	f.IntVar(&bench.Workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	f.DurationVar(&bench.Duration, "duration", 10*time.Second, "benchmark duration")
	f.IntVar(&bench.ReadPct, "reads", 80, "read percentage [0..100]")
	f.IntVar(&bench.Keys, "keys", 1_000_000, "keyspace size")
	f.Float64Var(&bench.ZipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	f.Float64Var(&bench.ZipfV, "zipf-v", 1.0, "Zipf v")
	f.Int64Var(&bench.Seed, "seed", time.Now().UnixNano(), "random seed")
	f.IntVar(&bench.Preload, "preload", 0, "preload entries (0 = keys/2)")
	f.StringVar(&bench.Metrics, "metrics", "", "serve Prometheus metrics at addr; empty = disabled")
}

func runBench(ctx context.Context, opt benchOptions, metrics cache.Metrics) benchResult {
	c := cache.New[string](cache.Options[string]{
		DefaultTTL: opt.TTL,
		Shards:     opt.Shards,
		Metrics:    metrics,
	})
	defer func() { _ = c.Close() }()

	// Preload to get a realistic hit-rate.
	pl := opt.Preload
	if pl == 0 {
		pl = opt.Keys / 2
	}
	for i := 0; i < pl; i++ {
		c.Set("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}

	workers := opt.Workers
	if workers <= 0 {
		workers = 1
	}
	keysMax := uint64(opt.Keys - 1)

	var reads, writes, hits, misses, total atomic.Uint64
	ctx, cancel := context.WithTimeout(ctx, opt.Duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()

			// rand.Rand is not goroutine-safe; one per worker.
			r := rand.New(rand.NewSource(opt.Seed + int64(id)*9973))
			zipf := rand.NewZipf(r, opt.ZipfS, opt.ZipfV, keysMax)
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			for ctx.Err() == nil {
				total.Add(1)
				if int(r.Int31n(100)) < opt.ReadPct {
					reads.Add(1)
					if _, ok := c.Get(key()); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
				} else {
					writes.Add(1)
					c.Set(key(), "v"+strconv.Itoa(r.Int()))
				}
			}
		}(w)
	}
	wg.Wait()

	return benchResult{
		Ops:     total.Load(),
		Reads:   reads.Load(),
		Writes:  writes.Load(),
		Hits:    hits.Load(),
		Misses:  misses.Load(),
		Elapsed: time.Since(start),
		Len:     c.Len(),
	}
}

func printBench(w io.Writer, opt benchOptions, r benchResult) {
	fmt.Fprintf(w, "shards=%d workers=%d keys=%s dur=%v seed=%d\n",
		opt.Shards, opt.Workers, humanize.Comma(int64(opt.Keys)), r.Elapsed, opt.Seed)
	fmt.Fprintf(w, "ops=%s (%s ops/s)  reads=%s  writes=%s\n",
		humanize.Comma(int64(r.Ops)), humanize.Comma(int64(float64(r.Ops)/r.Elapsed.Seconds())),
		humanize.Comma(int64(r.Reads)), humanize.Comma(int64(r.Writes)))
	fmt.Fprintf(w, "hits=%s  misses=%s  hit-rate=%.2f%%\n",
		humanize.Comma(int64(r.Hits)), humanize.Comma(int64(r.Misses)), r.hitRate())
	fmt.Fprintf(w, "Len()=%s\n", humanize.Comma(int64(r.Len)))
}
