package cache

import (
	"strings"
	"testing"
	"time"
)

// Fuzz Set/Get/Has/Remove semantics under arbitrary string inputs.
// Key/value lengths are capped to keep memory bounded during fuzzing.
func FuzzCache_SetGetRemove(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("/api/posts?page=2", `{"id":1}`)
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		clk := &fakeClock{}
		c := New[string](Options[string]{Clock: clk, DefaultTTL: time.Second})
		t.Cleanup(func() { _ = c.Close() })

		c.Set(k, v)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Set/Get: want %q, got %q ok=%v", v, got, ok)
		}
		if !c.Has(k) {
			t.Fatalf("Has must be true after Set")
		}

		clk.add(time.Second)
		if c.Has(k) {
			t.Fatalf("entry must expire after DefaultTTL")
		}
		if c.Len() != 0 {
			t.Fatalf("expired entry must be evicted by Has, Len=%d", c.Len())
		}

		c.Set(k, v)
		if !c.Remove(k) {
			t.Fatalf("Remove must return true")
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after Remove")
		}
	})
}
