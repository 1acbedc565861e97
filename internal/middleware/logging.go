package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// CORS creates CORS middleware with configured allowed origins.
// Configures Cross-Origin Resource Sharing to allow frontend applications
// from different domains to access the API.
//
// Configuration:
//   - Allowed methods: GET, POST, PATCH, DELETE, OPTIONS
//   - Allowed headers: Accept, Authorization, Content-Type, X-Request-ID
//   - Exposed headers: X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining
//   - Credentials: Enabled (the refresh cookie must travel cross-origin)
//   - Max age: 300 seconds (5 minutes)
//
// Parameters:
//   - allowedOrigins: List of allowed origin URLs (e.g., ["https://app.example.com"])
//
// Use "*" to allow all origins (not recommended for production with credentials).
//
// Example:
//
//	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "User-Agent"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})
}

// Logger creates structured logging middleware with request ID correlation.
// Logs every HTTP request and response with consistent formatting and timing.
//
// Features:
//   - Generates or uses existing X-Request-ID for request correlation
//   - Logs request start with method, path, client info
//   - Logs request completion with status, bytes, duration
//   - Adds request ID to response headers for client-side tracing
//   - Propagates request ID through context for downstream logging
//
// Log fields:
//   - request_id: Unique identifier for request tracing
//   - method: HTTP method (GET, POST, etc.)
//   - path: Request path
//   - remote_addr: Client IP address
//   - user_agent: Client User-Agent header
//   - status: HTTP response status code
//   - bytes: Response body size in bytes
//   - duration_ms: Request processing time in milliseconds
//
// Request ID flow:
//  1. Check for existing X-Request-ID header (from load balancer/proxy)
//  2. Generate new UUID if not present
//  3. Add to context for use by handlers and services
//  4. Include in response headers for client correlation
//
// Example logs:
//
//	{"level":"info","request_id":"abc-123","method":"GET","path":"/pings/latest/","msg":"Request started"}
//	{"level":"info","request_id":"abc-123","status":200,"bytes":156,"duration_ms":45,"msg":"Request completed"}
//
// Usage:
//
//	r.Use(middleware.Logger())
func Logger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Generate request ID
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			// Add request ID to context
			ctx := utils.WithRequestID(r.Context(), requestID)
			r = r.WithContext(ctx)

			// Create response writer wrapper to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Add request ID to response headers
			ww.Header().Set("X-Request-ID", requestID)

			// Log request
			log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Request started")

			// Call next handler
			next.ServeHTTP(ww, r)

			// Log response
			duration := time.Since(start)
			log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration_ms", duration).
				Msg("Request completed")
		})
	}
}

// Recoverer recovers from panics, logs them with the stack, and answers
// with a 500 internal_error envelope. Panic details never reach the client.
//
// Usage (should be early in middleware chain):
//
//	r.Use(middleware.Recoverer())
//	r.Use(middleware.Logger())
//	r.Use(middleware.JWTAuth(jwtService))
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					// Logger runs inside the recoverer, so its request ID is
					// only visible on the response headers here.
					requestID := utils.GetRequestID(r.Context())
					if requestID == "" {
						requestID = w.Header().Get("X-Request-ID")
					}

					log.Error().
						Interface("error", err).
						Bytes("stack", debug.Stack()).
						Str("request_id", requestID).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")

					r = r.WithContext(utils.WithRequestID(r.Context(), requestID))
					utils.RespondWithAPIError(w, r, fmt.Errorf("panic: %v", err))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related HTTP headers to all responses.
// Implements security best practices to protect against common web vulnerabilities.
//
// Headers added:
//
//   - X-Content-Type-Options: nosniff
//     Prevents MIME type sniffing attacks
//
//   - X-Frame-Options: DENY
//     Prevents clickjacking by disallowing iframe embedding
//
//   - X-XSS-Protection: 1; mode=block
//     Enables browser XSS filter (legacy browsers)
//
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//     Forces HTTPS for 1 year including subdomains (HSTS)
//
//   - Content-Security-Policy: default-src 'none'
//     The API serves JSON only, so nothing may be loaded
//
//   - Referrer-Policy: strict-origin-when-cross-origin
//     Controls referrer information leakage
//
// Usage:
//
//	r.Use(middleware.SecurityHeaders())
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Security headers
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}
