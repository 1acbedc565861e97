// Package cache provides a Redis-backed JSON cache with a cache-aside helper
// and pattern invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache stores JSON-encoded values in Redis.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a Redis client.
//
// Example:
//
//	c := cache.NewCache(redisDB.Client())
func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Get retrieves a value and unmarshals it into target.
// Returns ErrCacheMiss if the key doesn't exist.
//
// Example:
//
//	var user models.PublicUser
//	err := c.Get(ctx, cache.UserKey(userID), &user)
//	if errors.Is(err, cache.ErrCacheMiss) {
//	    // load from database
//	}
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to get from cache")
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached data")
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

// Set stores value as JSON with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to set cache")
		return fmt.Errorf("cache set error: %w", err)
	}

	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached data")
	return nil
}

// Delete removes one or more keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("Failed to delete from cache")
		return fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
	}

	return nil
}

// Generation returns the counter stored at key, or 0 when it is unset.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache get error: %w", err)
	}
	return gen, nil
}

// Bump increments the counter at key and returns the new value. Entries
// keyed by an older value are no longer read.
func (c *Cache) Bump(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to bump cache generation")
		return 0, fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
	}
	return gen, nil
}

// DeletePattern removes every key matching a glob pattern, iterating with
// SCAN so Redis is never blocked by KEYS.
//
// Example:
//
//	c.DeletePattern(ctx, cache.LatestPingsPattern(gen-1))
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Error().Err(err).Str("pattern", pattern).Msg("Failed to scan cache keys")
			return fmt.Errorf("cache scan error: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
			}
			deletedCount += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	log.Debug().Str("pattern", pattern).Int("count", deletedCount).Msg("Deleted keys by pattern")
	return nil
}

// GetOrSet implements cache-aside: on a miss it calls loader, caches the
// result and decodes it into target. A loader error is returned wrapped and
// nothing is cached. A failure to write the cache is logged but not returned.
//
// Example:
//
//	var pings []models.Ping
//	err := c.GetOrSet(ctx, cache.LatestPingsKey(gen, 3), time.Minute, &pings, func() (interface{}, error) {
//	    return store.Latest(ctx, 3)
//	})
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, target interface{}, loader func() (interface{}, error)) error {
	err := c.Get(ctx, key, target)
	if err == nil {
		log.Debug().Str("key", key).Msg("Cache hit")
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		// Redis trouble should not take reads down with it.
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to loader")
	}

	data, err := loader()
	if err != nil {
		return fmt.Errorf("loader error: %w", err)
	}

	if err := c.Set(ctx, key, data, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache loaded data")
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := json.Unmarshal(bytes, target); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}
