package tokencache

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// Key derives an opaque cache key from the caller's parameters, so secrets such as refresh
// tokens or client credentials never sit in memory as map keys.
func Key(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// FetchFunc obtains a fresh value and the duration it stays valid for. A zero ttl falls back
// to the cache default.
type FetchFunc[T any] func(ctx context.Context) (T, time.Duration, error)

// Cache is a per-instance TTL cache. Expired entries are never returned.
type Cache[T any] struct {
	cache *ttlcache.Cache[string, T]
	ttl   time.Duration
	group singleflight.Group
}

// New creates a cache whose entries live for ttl unless Set is given an explicit duration.
// Call Close to stop the expiry goroutine.
func New[T any](ttl time.Duration) *Cache[T] {
	c := ttlcache.New(
		ttlcache.WithTTL[string, T](ttl),
		ttlcache.WithDisableTouchOnHit[string, T](),
	)
	go c.Start()
	return &Cache[T]{cache: c, ttl: ttl}
}

func (c *Cache[T]) Get(key string) (T, bool) {
	item := c.cache.Get(key)
	if item == nil || item.IsExpired() {
		var zero T
		return zero, false
	}
	return item.Value(), true
}

// Set stores value for ttl; a non-positive ttl uses the cache default.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.Set(key, value, ttl)
}

func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}

// fetchTimeout bounds a shared fetch, which no longer follows any one caller's context.
const fetchTimeout = 30 * time.Second

// GetOrFetch returns the cached value for key or calls fetch and caches its result.
// Concurrent misses on the same key share one fetch, and a caller that goes away does not
// cancel it for the others. Errors are not cached.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		v, ttl, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[T]) Len() int {
	return c.cache.Len()
}

// Close stops the cleanup goroutine.
func (c *Cache[T]) Close() {
	c.cache.Stop()
}
