package behavior

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	paths     []string
	nextPages atomic.Int32
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnHoverIntent: func(path string) {
			r.mu.Lock()
			r.paths = append(r.paths, path)
			r.mu.Unlock()
		},
		OnNextPage: func() { r.nextPages.Add(1) },
	}
}

func (r *recorder) hovered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func newObserver(t *testing.T, r *recorder) *Observer {
	t.Helper()
	o, err := New(Options{
		Hooks:          r.hooks(),
		Origin:         "https://blog.example.com",
		HoverDelay:     20 * time.Millisecond,
		ScrollDebounce: 20 * time.Millisecond,
		TickInterval:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(o.Stop)
	return o
}

func TestObserver_HoverIntentForSameOriginLinks(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	o.PointerOver("/posts/42")
	o.PointerOver("https://blog.example.com/stories?tab=new")
	o.PointerOver("https://elsewhere.example.org/ad")

	require.Eventually(t, func() bool { return len(o.Sample().HoveredLinks) == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"/posts/42", "/stories?tab=new"}, r.hovered())
}

func TestObserver_PointerOutCancelsIntent(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	o.PointerOver("/posts/1")
	o.PointerOut("/posts/1")
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, r.hovered())
	assert.Empty(t, o.Sample().HoveredLinks)
}

func TestObserver_ScrollIsMonotonicAndFiresOnce(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	o.Scroll(40)
	require.Eventually(t, func() bool { return o.Sample().ScrollDepthPercent == 40 }, time.Second, 5*time.Millisecond)

	o.Scroll(75)
	require.Eventually(t, func() bool { return r.nextPages.Load() == 1 }, time.Second, 5*time.Millisecond)

	o.Scroll(20)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 75.0, o.Sample().ScrollDepthPercent, "depth never decreases")

	o.Scroll(95)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), r.nextPages.Load(), "threshold fires once per page view")

	o.Reset()
	assert.Zero(t, o.Sample().ScrollDepthPercent)
	o.Scroll(80)
	require.Eventually(t, func() bool { return r.nextPages.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestObserver_ScrollIsDebounced(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	for _, p := range []float64{10, 50, 90, 30} {
		o.Scroll(p)
	}
	require.Eventually(t, func() bool { return o.Sample().ScrollDepthPercent == 30 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, r.nextPages.Load(), "only the last value of a burst is applied")
}

func TestObserver_TimeOnPage(t *testing.T) {
	o := newObserver(t, &recorder{})
	o.Start()
	o.Start()

	require.Eventually(t, func() bool { return o.Sample().TimeOnPage > 0 }, time.Second, 5*time.Millisecond)
	o.Stop()
	frozen := o.Sample().TimeOnPage
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, o.Sample().TimeOnPage)
}

func TestObserver_ResetDropsPendingHover(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	o.PointerOver("/posts/9")
	o.Reset()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, r.hovered())
}

func TestObserver_LateTimerDoesNotClobberNewHover(t *testing.T) {
	r := &recorder{}
	o := newObserver(t, r)

	o.PointerOver("/posts/7")
	o.mu.Lock()
	old := o.hovers["/posts/7"]
	o.mu.Unlock()
	o.PointerOut("/posts/7")
	o.PointerOver("/posts/7")

	// The cancelled timer had already fired and now takes the lock.
	o.hoverFired("/posts/7", old)
	assert.Empty(t, r.hovered())

	require.Eventually(t, func() bool { return len(r.hovered()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []string{"/posts/7"}, r.hovered())
}

func TestNew_RejectsBadOrigin(t *testing.T) {
	_, err := New(Options{Origin: "://bad"})
	assert.Error(t, err)
}
