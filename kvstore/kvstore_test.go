package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

type profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// failingStorage fails every call.
type failingStorage struct{}

var errBoom = errors.New("boom")

func (failingStorage) GetItem(context.Context, string) (string, error) { return "", errBoom }
func (failingStorage) SetItem(context.Context, string, string) error   { return errBoom }
func (failingStorage) RemoveItem(context.Context, string) error        { return errBoom }
func (failingStorage) Clear(context.Context) error                     { return errBoom }
func (failingStorage) Len(context.Context) (int, error)                { return 0, errBoom }

func TestSession_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()}
	c := NewSession(Options{Clock: clk})

	require.NoError(t, c.Set(ctx, "user", profile{ID: 7, Name: "ana"}, time.Minute))

	var got profile
	require.True(t, c.Get(ctx, "user", &got))
	assert.Equal(t, profile{ID: 7, Name: "ana"}, got)

	clk.add(time.Minute)
	assert.True(t, c.Get(ctx, "user", &got), "now == expiry is still valid")

	clk.add(time.Millisecond)
	assert.False(t, c.Get(ctx, "user", &got))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired item must be deleted on read")
}

func TestSession_CorruptEnvelopeIsMiss(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := New(mem, Options{})

	require.NoError(t, mem.SetItem(ctx, "bad", "{not json"))
	var out map[string]any
	assert.False(t, c.Get(ctx, "bad", &out))

	// Valid envelope whose data does not fit the destination type.
	require.NoError(t, mem.SetItem(ctx, "typed", `{"data":"text","expiry":9999999999999}`))
	var n int
	assert.False(t, c.Get(ctx, "typed", &n))
}

func TestCache_StorageErrorsDegrade(t *testing.T) {
	ctx := context.Background()
	c := New(failingStorage{}, Options{Name: "broken"})

	var out string
	assert.False(t, c.Get(ctx, "k", &out))
	assert.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute), errBoom)
	assert.ErrorIs(t, c.Clear(ctx), errBoom)
	c.Remove(ctx, "k")
}

func TestCache_UnserializableValue(t *testing.T) {
	c := NewSession(Options{})
	err := c.Set(context.Background(), "ch", make(chan int), time.Minute)
	assert.Error(t, err)
}

func TestCache_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewSession(Options{})

	require.NoError(t, c.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, c.Set(ctx, "b", 2, time.Hour))

	c.Remove(ctx, "a")
	var v int
	assert.False(t, c.Get(ctx, "a", &v))
	assert.True(t, c.Get(ctx, "b", &v))
	assert.Equal(t, 2, v)

	require.NoError(t, c.Clear(ctx))
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
