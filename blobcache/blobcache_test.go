package blobcache

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/warmcache/internal/database"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.OpenSQLite(database.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	return store
}

// brokenStore fails every durable operation.
type brokenStore struct{}

var errDisk = errors.New("disk I/O error")

func (brokenStore) Put(context.Context, Record) error           { return errDisk }
func (brokenStore) Get(context.Context, string) (Record, error) { return Record{}, errDisk }
func (brokenStore) Delete(context.Context, string) error        { return errDisk }
func (brokenStore) Clear(context.Context) error                 { return errDisk }
func (brokenStore) Count(context.Context) (int, error)          { return 0, errDisk }
func (brokenStore) Size(context.Context) (int64, error)         { return 0, errDisk }

func TestCache_RoundTripSurvivesMemoryEviction(t *testing.T) {
	ctx := context.Background()
	c := New(newSQLStore(t), Options{TTL: time.Hour})
	img := []byte("\x89PNG\r\n\x1a\nfake-image-bytes")

	h := c.Set(ctx, "https://cdn.example.com/a.png", img)
	require.NotNil(t, h)
	assert.True(t, strings.HasPrefix(h.URL, "blob:warmcache/"))

	got, ok := c.Get(ctx, "https://cdn.example.com/a.png")
	require.True(t, ok)
	assert.Same(t, h, got, "fast path must return the cached handle")

	c.Forget("https://cdn.example.com/a.png")
	assert.True(t, h.Revoked())
	assert.Zero(t, c.Len())

	again, ok := c.Get(ctx, "https://cdn.example.com/a.png")
	require.True(t, ok, "durable tier must serve within TTL")
	assert.NotEqual(t, h.URL, again.URL, "a fresh handle is materialized")
	data, err := io.ReadAll(again.Reader())
	require.NoError(t, err)
	assert.Equal(t, img, data)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ExpiredDurableRecordIsDeletedOnRead(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixNano()}
	store := newSQLStore(t)
	c := New(store, Options{TTL: time.Minute, Clock: clk})

	c.Set(ctx, "u", []byte("x"))
	c.ForgetAll()

	clk.add(59 * time.Second)
	_, ok := c.Get(ctx, "u")
	require.True(t, ok)
	c.ForgetAll()

	clk.add(time.Second)
	_, ok = c.Get(ctx, "u")
	assert.False(t, ok)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired record must be removed lazily")
}

func TestCache_DurableErrorsDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	c := New(brokenStore{}, Options{})

	h := c.Set(ctx, "u", []byte("bytes"))
	require.NotNil(t, h, "memory handle is returned even if persistence fails")
	assert.Equal(t, []byte("bytes"), h.Bytes())

	c.ForgetAll()
	_, ok := c.Get(ctx, "u")
	assert.False(t, ok)
	assert.ErrorIs(t, c.Clear(ctx), errDisk)
}

func TestCache_ClearEmptiesBothTiers(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	c := New(store, Options{})

	h1 := c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("22"))

	size, err := c.DurableSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	require.NoError(t, c.Clear(ctx))
	assert.True(t, h1.Revoked())
	assert.Nil(t, h1.Bytes())
	assert.Zero(t, c.Len())
	n, err := c.DurableCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestCache_SetReplacesAndRevokesOldHandle(t *testing.T) {
	ctx := context.Background()
	c := New(nil, Options{})

	first := c.Set(ctx, "a", []byte("v1"))
	second := c.Set(ctx, "a", []byte("v2"))
	assert.True(t, first.Revoked())
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 2, second.Size())
}

func TestSQLStore_SchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(database.MemoryDSN)
	require.NoError(t, err)
	defer func() { _ = database.Close(db) }()

	s1, err := NewSQLStore(db)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, Record{URL: "u", Blob: []byte("b"), Timestamp: 1}))

	s2, err := NewSQLStore(db)
	require.NoError(t, err)
	v, err := s2.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	rec, err := s2.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Timestamp)
	assert.True(t, db.Migrator().HasIndex(&Record{}, "idx_images_timestamp"))

	_, err = s2.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
