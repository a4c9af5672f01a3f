package apicache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GetWithSWR reads key with stale-while-revalidate semantics:
//
//   - age < staleAfter: the cached data is returned.
//   - age < maxAge: the cached data is returned and fetch runs in the
//     background; its result replaces the record, its error is logged.
//   - otherwise fetch runs synchronously. On success the result is cached
//     and returned. On failure the unusable cached data is returned if a
//     record exists, else the error.
//
// Background fetches run detached from ctx, bounded by RevalidateTimeout and
// coalesced per key. A record whose data is not a T counts as absent.
func GetWithSWR[T any](
	ctx context.Context,
	c *Cache,
	key string,
	fetch func(context.Context) (T, error),
	staleAfter, maxAge time.Duration,
) (T, error) {
	if staleAfter > maxAge {
		c.log.Debug("staleAfter exceeds maxAge; clamping",
			zap.String("key", key),
			zap.Duration("stale_after", staleAfter),
			zap.Duration("max_age", maxAge),
		)
		staleAfter = maxAge
	}

	data, fetchedAt, cached := lookup[T](c, key)
	if cached {
		age := c.now().Sub(fetchedAt)
		if age < staleAfter {
			return data, nil
		}
		if age < maxAge {
			c.revalidate(ctx, key, func(ctx context.Context) (any, error) {
				return fetch(ctx)
			}, maxAge)
			return data, nil
		}
	}

	fresh, err := fetch(ctx)
	if err != nil {
		if cached {
			c.log.Warn("fetch failed; serving unusable cached record",
				zap.String("key", key), zap.Error(err))
			return data, nil
		}
		var zero T
		return zero, fmt.Errorf("apicache: fetch %q: %w", key, err)
	}
	c.retain(key, fresh, maxAge)
	return fresh, nil
}

func lookup[T any](c *Cache, key string) (data T, fetchedAt time.Time, ok bool) {
	rec, ok := c.Record(key)
	if !ok {
		return data, fetchedAt, false
	}
	data, ok = rec.Data.(T)
	if ok {
		return data, rec.FetchedAt, true
	}
	// Prefetched responses are stored as raw JSON until a typed reader asks.
	if raw, isRaw := rec.Data.(json.RawMessage); isRaw {
		if err := json.Unmarshal(raw, &data); err == nil {
			return data, rec.FetchedAt, true
		}
	}
	c.log.Debug("cached record has unexpected type", zap.String("key", key))
	var zero T
	return zero, fetchedAt, false
}

// revalidate refreshes key in the background. Callers do not wait for it.
func (c *Cache) revalidate(ctx context.Context, key string, fetch func(context.Context) (any, error), maxAge time.Duration) {
	if c.flights.InFlight(key) {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bg.Done()

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opt.RevalidateTimeout)
		defer cancel()

		_, err, shared := c.flights.Do(bctx, key, func() (any, error) {
			v, err := fetch(bctx)
			if err != nil {
				return nil, err
			}
			c.retain(key, v, maxAge)
			return v, nil
		})
		if err != nil && !shared {
			c.log.Warn("background revalidation failed", zap.String("key", key), zap.Error(err))
		}
	}()
}
