package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReadThrough fronts an LRUCache with a loader. Concurrent misses for the
// same key share a single load. A load that started before an invalidation
// never repopulates the cache with the pre-write value.
type ReadThrough[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group
}

// NewReadThrough creates a read-through cache holding at most maxSize entries.
func NewReadThrough[T any](maxSize int, ttl time.Duration) *ReadThrough[T] {
	return &ReadThrough[T]{cache: NewLRUCache[T](maxSize, ttl)}
}

// Get returns the cached value for key or calls load on a miss. The load is
// shared by every caller of the flight, so it does not inherit the first
// caller's cancellation.
func (r *ReadThrough[T]) Get(ctx context.Context, key Key, load func(context.Context) (T, error)) (T, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	// Callers arriving after an invalidation must not join a load that
	// started before it, so the flight key carries the generation.
	gen := r.cache.Generation()
	flight := fmt.Sprintf("%d|%d|%d", gen, key.UserID, key.Arg)
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(flight, func() (any, error) {
		data, err := load(loadCtx)
		if err != nil {
			return data, err
		}
		r.cache.SetIfGen(key, data, gen)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops the given keys.
func (r *ReadThrough[T]) Invalidate(keys ...Key) {
	for _, k := range keys {
		r.cache.Delete(k)
	}
}

// InvalidateUser drops every entry of userID.
func (r *ReadThrough[T]) InvalidateUser(userID int64) {
	r.cache.DeleteUser(userID)
}

// CleanExpired implements Cleaner.
func (r *ReadThrough[T]) CleanExpired() int {
	return r.cache.CleanExpired()
}

// Size returns the number of cached entries.
func (r *ReadThrough[T]) Size() int {
	return r.cache.Size()
}
