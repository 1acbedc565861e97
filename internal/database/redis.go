package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTokenNotFound means the refresh token is not (or no longer) in the
	// registry: it was rotated, revoked or has expired.
	ErrTokenNotFound = errors.New("refresh token not found or expired")

	// ErrSessionNotFound means the device session was revoked or expired.
	ErrSessionNotFound = errors.New("session not found")
)

// RedisDB wraps a Redis client and owns the key layout for authentication
// state:
//
//	refresh_token:{jti}         user id of a live refresh token
//	blacklist:{jti}             revoked token, kept for its remaining lifetime
//	session:{user_id}:{sid}     device session hash
//	ratelimit:{ip}:{endpoint}   request counter
type RedisDB struct {
	client *redis.Client
}

// RefreshRotation describes one refresh token exchange.
type RefreshRotation struct {
	OldJTI    string
	NewJTI    string
	UserID    string
	SessionID string
	Expiry    time.Duration // Lifetime of the new token and the session
	// BlacklistTTL is how long the old jti stays blacklisted. Zero skips
	// blacklisting; the old token still stops working because its registry
	// entry is removed.
	BlacklistTTL time.Duration
}

// NewRedisDB connects to Redis, retrying the initial ping with backoff.
//
// Example:
//
//	redisDB, err := database.NewRedisDB(&cfg.Redis)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Redis connection failed")
//	}
//	defer redisDB.Close()
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	var lastErr error
	err := utils.Retry(ctx, retryConfig, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			lastErr = err
			log.Warn().Err(err).Msg("Failed to ping Redis, retrying...")
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to Redis after retries: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis")

	return &RedisDB{client: client}, nil
}

// Close closes the client.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Client exposes the underlying client for the cache layer.
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Ping checks that Redis answers. Used by the readiness probe.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func refreshTokenKey(jti string) string {
	return fmt.Sprintf("refresh_token:%s", jti)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", userID, sessionID)
}

// CreateSession stores a new device session and its first refresh token in
// one MULTI/EXEC block, so a login never leaves a token without a session.
//
// Example:
//
//	err := redisDB.CreateSession(ctx, userID.String(), sid, jti,
//	    "Chrome 120 · Windows 10 · Desktop", "203.0.113.42", 7*24*time.Hour)
func (r *RedisDB) CreateSession(ctx context.Context, userID, sessionID, jti, deviceInfo, ipAddress string, expiry time.Duration) error {
	sKey := sessionKey(userID, sessionID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sKey, map[string]interface{}{
			"device_info": deviceInfo,
			"ip_address":  ipAddress,
			"created_at":  time.Now().Unix(),
		})
		pipe.Expire(ctx, sKey, expiry)
		pipe.Set(ctx, refreshTokenKey(jti), userID, expiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetRefreshToken returns the user id registered for a refresh jti.
// Returns ErrTokenNotFound when the entry is absent.
func (r *RedisDB) GetRefreshToken(ctx context.Context, jti string) (string, error) {
	userID, err := r.client.Get(ctx, refreshTokenKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	return userID, nil
}

// RotateRefreshToken swaps the old refresh token for a new one.
//
// The old registry entry is WATCHed, so two concurrent exchanges of the same
// token cannot both succeed: the loser's EXEC aborts and it gets
// ErrTokenNotFound. Inside MULTI the new entry is stored, the old one is
// deleted and blacklisted, and the session TTL is extended.
func (r *RedisDB) RotateRefreshToken(ctx context.Context, rot RefreshRotation) error {
	oldKey := refreshTokenKey(rot.OldJTI)
	sKey := sessionKey(rot.UserID, rot.SessionID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, oldKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrTokenNotFound
		}
		if err != nil {
			return err
		}
		if stored != rot.UserID {
			return ErrTokenNotFound
		}

		exists, err := tx.Exists(ctx, sKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrSessionNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, refreshTokenKey(rot.NewJTI), rot.UserID, rot.Expiry)
			pipe.Del(ctx, oldKey)
			if rot.BlacklistTTL > 0 {
				pipe.Set(ctx, blacklistKey(rot.OldJTI), "true", rot.BlacklistTTL)
			}
			pipe.Expire(ctx, sKey, rot.Expiry)
			return nil
		})
		return err
	}, oldKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrTokenNotFound
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrSessionNotFound):
		return err
	default:
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
}

// RevokeRefreshToken blacklists a refresh jti and removes its registry entry
// and session atomically. Safe to call for tokens that are already gone.
func (r *RedisDB) RevokeRefreshToken(ctx context.Context, jti, userID, sessionID string, blacklistTTL time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if blacklistTTL > 0 {
			pipe.Set(ctx, blacklistKey(jti), "true", blacklistTTL)
		}
		pipe.Del(ctx, refreshTokenKey(jti))
		if sessionID != "" {
			pipe.Del(ctx, sessionKey(userID, sessionID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// BlacklistToken marks a jti as revoked for the given duration.
func (r *RedisDB) BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error {
	if err := r.client.Set(ctx, blacklistKey(jti), "true", expiry).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether a jti has been revoked.
func (r *RedisDB) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// SessionExists reports whether a device session is still live.
func (r *RedisDB) SessionExists(ctx context.Context, userID, sessionID string) (bool, error) {
	exists, err := r.client.Exists(ctx, sessionKey(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists > 0, nil
}

// GetSession returns the session hash along with its remaining TTL.
// Returns ErrSessionNotFound when the session does not exist.
func (r *RedisDB) GetSession(ctx context.Context, userID, sessionID string) (map[string]string, time.Duration, error) {
	key := sessionKey(userID, sessionID)

	var fields *redis.MapStringStringCmd
	var ttl *redis.DurationCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields.Val()) == 0 {
		return nil, 0, ErrSessionNotFound
	}
	return fields.Val(), ttl.Val(), nil
}

// DeleteSession removes a device session. Refresh tokens of that session
// fail their next exchange.
func (r *RedisDB) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListUserSessions returns the session ids of a user using SCAN.
func (r *RedisDB) ListUserSessions(ctx context.Context, userID string) ([]string, error) {
	prefix := sessionKey(userID, "")
	pattern := prefix + "*"

	var sessions []string
	var cursor uint64
	for {
		var keys []string
		var err error

		keys, cursor, err = r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}

		for _, key := range keys {
			if len(key) > len(prefix) {
				sessions = append(sessions, key[len(prefix):])
			}
		}

		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

// IncrementRateLimit increments the fixed-window counter for ip+endpoint and
// returns the new count. The window starts with the first request.
func (r *RedisDB) IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", ip, endpoint)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	return count, nil
}
