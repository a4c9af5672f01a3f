package kvstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to WARMCACHE_TEST_REDIS_ADDR or skips the test.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("WARMCACHE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis storage tests: WARMCACHE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis storage tests: redis not available (%v)", err)
	}

	r := NewRedis(client, "warmcache:test:"+t.Name()+":")
	t.Cleanup(func() { _ = r.Clear(context.Background()) })
	return r
}

func TestRedis_ItemLifecycle(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	_, err := r.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.SetItem(ctx, "a", "1"))
	require.NoError(t, r.SetItem(ctx, "b", "2"))
	v, err := r.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.RemoveItem(ctx, "a"))
	require.NoError(t, r.Clear(ctx))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedis_DefaultPrefix(t *testing.T) {
	r := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	assert.Equal(t, DefaultRedisPrefix, r.prefix)
}
