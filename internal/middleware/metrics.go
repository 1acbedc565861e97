package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics. All metrics are registered in the default Prometheus
// registry and exposed via the /metrics endpoint.

var (
	// httpRequestsTotal counts all HTTP requests by method, route, and status.
	//
	// Labels: method, path (route pattern, e.g. /pings/{id}), status
	// Type: Counter
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration measures request processing time.
	//
	// Labels: method, path
	// Type: Histogram
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpResponseSize tracks response body sizes.
	//
	// Labels: method, path
	// Type: Histogram
	// Buckets: Exponential from 100 bytes to 100 MB
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// authAttemptsTotal counts login attempts by result.
	//
	// Labels: result (success, invalid_credentials, error)
	// Type: Counter
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// tokenRefreshTotal counts token refresh attempts by result.
	//
	// Labels: result (success, missing_cookie, invalid_token, error)
	// Type: Counter
	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// pingsCreatedTotal counts stored pings.
	//
	// Labels: kind (ping, response)
	// Type: Counter
	pingsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pings_created_total",
			Help: "Total number of pings created",
		},
		[]string{"kind"},
	)

	// dbQueriesTotal counts database queries by database, operation, and status.
	//
	// Labels: database (postgres), operation (create_ping, get_user_by_id, ...), status (success, error)
	// Type: Counter
	dbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	// dbQueryDuration measures database query execution time.
	//
	// Labels: database, operation
	// Type: Histogram
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpResponseSize)
	prometheus.MustRegister(authAttemptsTotal)
	prometheus.MustRegister(tokenRefreshTotal)
	prometheus.MustRegister(pingsCreatedTotal)
	prometheus.MustRegister(dbQueriesTotal)
	prometheus.MustRegister(dbQueryDuration)
}

// Metrics creates middleware for collecting HTTP metrics.
//
// The path label is the matched chi route pattern rather than the raw URL,
// so /pings/1/ and /pings/2/ share one series. Unmatched requests are
// labelled "unmatched".
//
// Example Prometheus queries:
//
//	# Error rate percentage
//	sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))
//
//	# P95 latency
//	histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))
//
// Usage:
//
//	r.Use(middleware.Metrics())
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := routePattern(r)
			status := strconv.Itoa(ww.Status())

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
//
// Usage:
//
//	r.Get("/metrics", middleware.MetricsHandler().ServeHTTP)
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// IncrementAuthAttempts increments the authentication attempts counter.
//
// Example:
//
//	if errors.Is(err, utils.ErrAuthenticationFailed) {
//	    middleware.IncrementAuthAttempts("invalid_credentials")
//	}
func IncrementAuthAttempts(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// IncrementTokenRefresh increments the token refresh counter.
func IncrementTokenRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
}

// IncrementPingsCreated counts a stored ping. kind is "ping" or "response".
func IncrementPingsCreated(kind string) {
	pingsCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordDBQuery records database query metrics including count and duration.
//
// Its signature matches database.QueryObserver once the database label is
// bound, see PostgresQueryObserver.
func RecordDBQuery(database, operation, status string, duration time.Duration) {
	dbQueriesTotal.WithLabelValues(database, operation, status).Inc()
	dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// PostgresQueryObserver records every PostgresDB query.
//
// Usage:
//
//	postgresDB.SetQueryObserver(middleware.PostgresQueryObserver)
func PostgresQueryObserver(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RecordDBQuery("postgres", operation, status, duration)
}
