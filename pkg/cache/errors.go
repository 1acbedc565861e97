package cache

import "errors"

var (
	// ErrCacheMiss means the key is absent or expired. Callers fall back to
	// the store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheInvalidation wraps a failed delete.
	ErrCacheInvalidation = errors.New("cache invalidation failed")
)
