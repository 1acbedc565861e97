// Package handlers provides HTTP request handlers for the API endpoints.
// Handlers coordinate between the HTTP layer and service layer, handling
// request parsing, validation, and response formatting.
//
// This package includes handlers for:
//   - Health checks and readiness probes
//   - Registration, login, token refresh and logout
//   - Device session management
//   - Pings and replies
//
// Every failure is rendered with utils.RespondWithAPIError.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Pinger is a dependency that can report its reachability. Implemented by
// database.PostgresDB and database.RedisDB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints for monitoring and orchestration.
// Provides both simple liveness checks and detailed readiness checks that verify
// connectivity to dependent services (PostgreSQL and Redis).
type HealthHandler struct {
	postgres Pinger
	redis    Pinger
}

// NewHealthHandler creates a new health handler with database dependencies.
//
// Example:
//
//	healthHandler := handlers.NewHealthHandler(postgresDB, redisDB)
//	r.Get("/health", healthHandler.Health)
//	r.Get("/ready", healthHandler.Ready)
func NewHealthHandler(postgres, redis Pinger) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
	}
}

// HealthResponse represents the health check response structure.
// Used by both the basic health check and detailed readiness check.
//
// JSON example:
//
//	{
//	  "status": "ok",
//	  "timestamp": "2024-01-20T14:30:00Z",
//	  "services": {
//	    "postgres": "healthy",
//	    "redis": "healthy"
//	  }
//	}
type HealthResponse struct {
	Status    string            `json:"status"`             // Overall status: "ok" or "degraded"
	Timestamp time.Time         `json:"timestamp"`          // Current server time
	Services  map[string]string `json:"services,omitempty"` // Individual service health (readiness only)
}

// Health is the liveness probe. It only reports that the process serves
// HTTP and never touches PostgreSQL or Redis.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe. Each dependency is pinged with a shared
// 5-second budget; any failure turns the response into 503 "degraded".
//
// Kubernetes readiness probe example:
//
//	readinessProbe:
//	  httpGet:
//	    path: /ready
//	    port: 8080
//	  periodSeconds: 10
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := []struct {
		name string
		dep  Pinger
	}{
		{"postgres", h.postgres},
		{"redis", h.redis},
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  make(map[string]string, len(checks)),
	}
	statusCode := http.StatusOK

	for _, c := range checks {
		if c.dep == nil {
			continue
		}
		if err := c.dep.Ping(ctx); err != nil {
			log.Error().Err(err).Str("service", c.name).Msg("Readiness check failed")
			response.Services[c.name] = "unhealthy"
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		response.Services[c.name] = "healthy"
	}

	utils.RespondWithJSON(w, r, statusCode, response)
}
