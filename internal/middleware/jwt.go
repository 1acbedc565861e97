// Package middleware provides HTTP middleware components for the API.
// Middleware functions wrap HTTP handlers to provide cross-cutting concerns
// like authentication, logging, metrics, and rate limiting.
//
// Middleware in this package:
//   - Bearer token authentication
//   - Structured request/response logging with correlation IDs
//   - Prometheus metrics collection
//   - Rate limiting per IP address
//
// All middleware is designed to be composable with Chi router, and every
// rejection is rendered with utils.RespondWithAPIError.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey holds the authenticated user's uuid.UUID.
	UserIDKey contextKey = "user_id"

	// ClaimsKey holds the validated *services.Claims of the access token.
	ClaimsKey contextKey = "claims"
)

var errInvalidBearer = &utils.APIError{
	Status:  http.StatusUnauthorized,
	Code:    utils.CodeNotAuthenticated,
	Message: "Given token not valid for any token type.",
}

// AccessTokenValidator validates bearer tokens. Implemented by
// services.JWTService.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*services.Claims, error)
}

// JWTAuth creates middleware that requires a valid access token in the
// Authorization header ("Bearer <token>") and adds the caller to the request
// context.
//
// A missing header and an unusable token are both 401 not_authenticated, as
// is a token whose account has since been deactivated or deleted. A failure
// to reach Redis or the database for those checks is a 500.
//
// Usage:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(middleware.JWTAuth(jwtService))
//	    r.Get("/auth/current_user/", authHandler.CurrentUser)
//	})
func JWTAuth(validator AccessTokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				log.Debug().Str("path", r.URL.Path).Msg("Missing authorization token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
				return
			}

			claims, err := validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, utils.ErrInvalidToken) {
					utils.RespondWithAPIError(w, r, err)
					return
				}
				log.Warn().Str("path", r.URL.Path).Msg("Invalid access token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				utils.RespondWithAPIError(w, r, errInvalidBearer)
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				utils.RespondWithAPIError(w, r, errInvalidBearer)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			log.Debug().
				Str("user_id", claims.UserID).
				Str("session_id", claims.SessionID).
				Msg("User authenticated via JWT")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID extracts the authenticated user's ID from the request context.
//
// Example:
//
//	userID, ok := middleware.GetUserID(r.Context())
//	if !ok {
//	    utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
//	    return
//	}
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetClaims returns the access token claims of the request.
func GetClaims(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*services.Claims)
	return claims, ok
}
