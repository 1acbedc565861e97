package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/pings/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/pings/{id}", "200"))

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pings/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/pings/{id}", "200"))
	assert.Equal(t, 3.0, after-before, "requests share the route pattern label")

	unmatched := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404"))-unmatched)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(pingsCreatedTotal.WithLabelValues("response"))
	IncrementPingsCreated("response")
	assert.Equal(t, 1.0, testutil.ToFloat64(pingsCreatedTotal.WithLabelValues("response"))-before)

	before = testutil.ToFloat64(authAttemptsTotal.WithLabelValues("success"))
	IncrementAuthAttempts("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(authAttemptsTotal.WithLabelValues("success"))-before)

	before = testutil.ToFloat64(tokenRefreshTotal.WithLabelValues("invalid_token"))
	IncrementTokenRefresh("invalid_token")
	assert.Equal(t, 1.0, testutil.ToFloat64(tokenRefreshTotal.WithLabelValues("invalid_token"))-before)
}

func TestPostgresQueryObserver(t *testing.T) {
	okBefore := testutil.ToFloat64(dbQueriesTotal.WithLabelValues("postgres", "latest_pings", "success"))
	errBefore := testutil.ToFloat64(dbQueriesTotal.WithLabelValues("postgres", "latest_pings", "error"))

	PostgresQueryObserver("latest_pings", 3*time.Millisecond, nil)
	PostgresQueryObserver("latest_pings", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(dbQueriesTotal.WithLabelValues("postgres", "latest_pings", "success"))-okBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(dbQueriesTotal.WithLabelValues("postgres", "latest_pings", "error"))-errBefore)
}

func TestMetricsHandler(t *testing.T) {
	IncrementPingsCreated("ping")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pings_created_total")
}
