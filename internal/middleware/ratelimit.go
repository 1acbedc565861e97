package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// RateCounter increments a fixed-window counter. Implemented by
// database.RedisDB.
type RateCounter interface {
	IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error)
}

// RateLimiter implements distributed rate limiting using Redis.
// Protects endpoints from abuse by limiting the number of requests
// per IP address within a time window.
//
// Redis key pattern: "ratelimit:{ip}:{endpoint}" with TTL equal to window
//
// On limit exceeded:
//   - Returns 429 rate_limited in the error envelope
//   - Sets Retry-After header
//   - Logs the violation for monitoring
type RateLimiter struct {
	redis          RateCounter
	requestsPerMin int           // Maximum requests allowed per window
	window         time.Duration // Time window for rate limiting
}

// NewRateLimiter creates a new rate limiter with the specified configuration.
//
// Example:
//
//	limiter := middleware.NewRateLimiter(redisDB, 30, time.Minute)
//	r.With(limiter.Limit("login")).Post("/auth/login/", authHandler.Login)
func NewRateLimiter(redis RateCounter, requestsPerMin int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:          redis,
		requestsPerMin: requestsPerMin,
		window:         window,
	}
}

// Limit creates middleware that applies rate limiting to an endpoint.
// Each endpoint identifier has its own counter per client IP.
//
// Rate limit headers:
//   - X-RateLimit-Limit: Maximum requests allowed per window
//   - X-RateLimit-Remaining: Requests remaining in current window
//   - Retry-After: Seconds until rate limit resets (on 429 only)
//
// On Redis errors the request is allowed through and the error is logged.
func (rl *RateLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ExtractClientIP(r)

			count, err := rl.redis.IncrementRateLimit(r.Context(), ip, endpoint, rl.window)
			if err != nil {
				log.Error().Err(err).Str("ip", ip).Msg("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			limit := strconv.Itoa(rl.requestsPerMin)

			if count > int64(rl.requestsPerMin) {
				log.Warn().
					Str("ip", ip).
					Str("endpoint", endpoint).
					Int64("count", count).
					Msg("Rate limit exceeded")

				w.Header().Set("X-RateLimit-Limit", limit)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))

				utils.RespondWithAPIError(w, r, utils.ErrRateLimited)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.requestsPerMin-int(count)))

			next.ServeHTTP(w, r)
		})
	}
}
