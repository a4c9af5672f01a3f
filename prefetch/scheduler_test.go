package prefetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	perrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/warmcache/apicache"
)

// gatedFetcher blocks every fetch until release is closed and tracks
// concurrency.
type gatedFetcher struct {
	release chan struct{}

	calls   atomic.Int32
	current atomic.Int32
	peak    atomic.Int32

	mu    sync.Mutex
	order []string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{release: make(chan struct{})}
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.order = append(f.order, url)
	f.mu.Unlock()

	select {
	case <-f.release:
		return []byte("body:" + url), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fakeURLs(n int) []string {
	base := "https://" + gofakeit.DomainName()
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s/%s-%d", base, gofakeit.Word(), i)
	}
	return out
}

type countingMetrics struct {
	NoopMetrics
	submitted atomic.Int32
	mu        sync.Mutex
	skipped   map[string]int
	completed map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{skipped: map[string]int{}, completed: map[string]int{}}
}

func (m *countingMetrics) Submitted() { m.submitted.Add(1) }
func (m *countingMetrics) Skipped(r string) {
	m.mu.Lock()
	m.skipped[r]++
	m.mu.Unlock()
}
func (m *countingMetrics) Completed(o string) {
	m.mu.Lock()
	m.completed[o]++
	m.mu.Unlock()
}

func TestScheduler_DeduplicatesInFlightURL(t *testing.T) {
	f := newGatedFetcher()
	m := newCountingMetrics()
	s := NewScheduler(Options{Fetcher: f, Metrics: m})

	url := fakeURLs(1)[0]
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Submit(NewTask(url, Low, false)) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.True(t, s.Pending(url))
	close(f.release)
	s.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 1, m.skipped[SkipDuplicate])
	assert.False(t, s.Pending(url), "completion removes the url")

	// A later submission of the same url is accepted again.
	assert.True(t, s.Submit(NewTask(url, Low, false)))
	s.Wait()
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestScheduler_RespectsConcurrencyCap(t *testing.T) {
	f := newGatedFetcher()
	s := NewScheduler(Options{Fetcher: f, MaxConcurrent: 3})

	for _, u := range fakeURLs(5) {
		require.True(t, s.Submit(NewTask(u, Low, false)))
	}
	require.Eventually(t, func() bool { return f.current.Load() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, s.Running())
	assert.Equal(t, 5, s.InFlight())

	close(f.release)
	s.Wait()
	assert.Equal(t, int32(5), f.calls.Load())
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Zero(t, s.InFlight())
	assert.Zero(t, s.Running())
}

func TestScheduler_HighPriorityAdmittedFirst(t *testing.T) {
	f := newGatedFetcher()
	s := NewScheduler(Options{Fetcher: f, MaxConcurrent: 1})

	urls := fakeURLs(4)
	require.True(t, s.Submit(NewTask(urls[0], Low, false)))
	require.Eventually(t, func() bool { return f.current.Load() == 1 }, time.Second, time.Millisecond)

	require.True(t, s.Submit(NewTask(urls[1], Low, false)))
	require.True(t, s.Submit(NewTask(urls[2], High, false)))
	require.True(t, s.Submit(NewTask(urls[3], High, false)))

	close(f.release)
	s.Wait()
	assert.Equal(t, []string{urls[0], urls[2], urls[3], urls[1]}, f.order)
}

func TestScheduler_NetworkGate(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		saveData bool
		accepted bool
	}{
		{"save-data", Type4G, true, false},
		{"slow-2g", TypeSlow2G, false, false},
		{"2g", Type2G, false, false},
		{"3g", Type3G, false, true},
		{"4g", Type4G, false, true},
		{"unknown", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			fetch := FetcherFunc(func(context.Context, string) ([]byte, error) {
				calls.Add(1)
				return nil, nil
			})
			s := NewScheduler(Options{Fetcher: fetch, Network: NewConnection(tt.typ, tt.saveData)})

			assert.Equal(t, tt.accepted, s.Submit(NewTask("https://example.com/a", High, false)))
			s.Wait()
			if tt.accepted {
				assert.Equal(t, int32(1), calls.Load())
			} else {
				assert.Zero(t, calls.Load())
			}
		})
	}
}

func TestScheduler_TimeoutReleasesURL(t *testing.T) {
	f := newGatedFetcher()
	m := newCountingMetrics()
	s := NewScheduler(Options{Fetcher: f, Metrics: m, Timeout: 20 * time.Millisecond})

	require.True(t, s.Submit(NewTask("https://example.com/slow", Low, false)))
	s.Wait()

	assert.Equal(t, 1, m.completed[OutcomeTimeout])
	assert.Zero(t, s.InFlight())
}

func TestScheduler_CachesBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "prefetch", r.Header.Get("Sec-Purpose"))
		_, _ = w.Write([]byte(`{"posts":[1,2,3]}`))
	}))
	defer srv.Close()

	api := apicache.New(apicache.Options{})
	defer api.Close()
	s := NewScheduler(Options{Cache: api})

	require.True(t, s.Submit(NewTask(srv.URL+"/api/posts", High, true)))
	require.True(t, s.Submit(NewTask(srv.URL+"/api/users", High, false)))
	require.NoError(t, s.Close())

	v, ok := api.Get("prefetch:" + srv.URL + "/api/posts")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"posts":[1,2,3]}`), v)
	assert.False(t, api.Has("prefetch:"+srv.URL+"/api/users"))
}

func TestScheduler_FailuresAreContained(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := newCountingMetrics()
	s := NewScheduler(Options{Metrics: m})
	require.True(t, s.Submit(NewTask(srv.URL+"/missing", Low, true)))
	s.Wait()

	assert.Equal(t, 1, m.completed[OutcomeError])
	assert.Equal(t, int32(1), m.submitted.Load())
}

func TestScheduler_CloseRejects(t *testing.T) {
	s := NewScheduler(Options{Fetcher: FetcherFunc(func(context.Context, string) ([]byte, error) { return nil, nil })})
	require.NoError(t, s.Close())
	assert.False(t, s.Submit(NewTask("https://example.com/", Low, false)))
	assert.False(t, s.Submit(Task{}))
}

func TestHTTPFetcher_ClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/slow":
			<-r.Context().Done()
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	_, err = f.Fetch(ctx, srv.URL+"/gone")
	assert.Equal(t, perrors.CodeNotFound, perrors.GetCode(err))
	assert.False(t, perrors.IsRetryable(err))

	_, err = f.Fetch(ctx, srv.URL+"/busy")
	assert.Equal(t, perrors.CodeUnavailable, perrors.GetCode(err))
	assert.True(t, perrors.IsRetryable(err))

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(tctx, srv.URL+"/slow")
	assert.Equal(t, perrors.CodeTimeout, perrors.GetCode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = f.Fetch(ctx, "http://127.0.0.1:1/")
	assert.Equal(t, perrors.CodeNetwork, perrors.GetCode(err))
}
