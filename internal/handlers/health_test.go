package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ieraasyl/PingService/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	t.Run("returns 200 OK with correct structure", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var response HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "ok", response.Status)
		assert.False(t, response.Timestamp.IsZero())
		assert.Nil(t, response.Services)
	})
}

func TestReady(t *testing.T) {
	t.Run("all services healthy", func(t *testing.T) {
		mr, cleanup := testutil.SetupMiniRedis(t)
		t.Cleanup(cleanup)

		handler := NewHealthHandler(stubPinger{}, testutil.NewTestRedisDB(t, mr))
		rec := testutil.Serve(http.HandlerFunc(handler.Ready), httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var response HealthResponse
		testutil.ParseJSONResponse(t, rec, &response)
		assert.Equal(t, "ok", response.Status)
		assert.Equal(t, map[string]string{"postgres": "healthy", "redis": "healthy"}, response.Services)
	})

	t.Run("redis down is degraded", func(t *testing.T) {
		mr, cleanup := testutil.SetupMiniRedis(t)
		t.Cleanup(cleanup)
		redisDB := testutil.NewTestRedisDB(t, mr)
		mr.Close()

		handler := NewHealthHandler(stubPinger{}, redisDB)
		rec := testutil.Serve(http.HandlerFunc(handler.Ready), httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var response HealthResponse
		testutil.ParseJSONResponse(t, rec, &response)
		assert.Equal(t, "degraded", response.Status)
		assert.Equal(t, "healthy", response.Services["postgres"])
		assert.Equal(t, "unhealthy", response.Services["redis"])
	})

	t.Run("postgres down is degraded", func(t *testing.T) {
		handler := NewHealthHandler(stubPinger{err: errors.New("connection refused")}, stubPinger{})
		rec := testutil.Serve(http.HandlerFunc(handler.Ready), httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func BenchmarkHealth(b *testing.B) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		handler.Health(rec, req)
	}
}
