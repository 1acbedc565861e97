package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/middleware"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// UserService registers and authenticates users.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, in services.LoginInput) (*models.User, error)
	Current(ctx context.Context, userID uuid.UUID) (*models.PublicUser, error)
}

// JWTService defines the interface for JWT token operations.
// Manages token lifecycle including issue, rotation, and revocation.
type JWTService interface {
	Obtain(ctx context.Context, user *models.User, deviceInfo, ipAddress string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAccess(ctx context.Context, accessToken string) error
	RefreshExpiry() time.Duration
}

// SessionService defines the interface for device session management.
type SessionService interface {
	ListUserSessions(ctx context.Context, userID uuid.UUID, currentSessionID string) ([]*models.SessionInfo, error)
	RevokeSession(ctx context.Context, userID uuid.UUID, sessionID string) error
	RevokeOtherSessions(ctx context.Context, userID uuid.UUID, keepSessionID string) (int, error)
}

var errMissingRefreshCookie = &utils.APIError{
	Status:  http.StatusUnauthorized,
	Code:    utils.CodeNotAuthenticated,
	Message: "No refresh token cookie was provided.",
}

// AuthHandler handles all authentication-related HTTP endpoints:
//   - registration and login by code name or email
//   - access token refresh from the HttpOnly refresh cookie
//   - logout, which revokes the refresh token
//   - the current user's profile and device sessions
//
// The refresh token never appears in a response body; it travels only in
// the refresh_token cookie.
type AuthHandler struct {
	users    UserService
	jwt      JWTService
	sessions SessionService
	cookies  utils.CookieOptions
}

// NewAuthHandler creates a new authentication handler with all required dependencies.
//
// Example:
//
//	authHandler := handlers.NewAuthHandler(userSvc, jwtSvc, sessionSvc, utils.CookieOptions{
//	    Secure: cfg.Cookie.Secure,
//	    Domain: cfg.Cookie.Domain,
//	})
func NewAuthHandler(users UserService, jwt JWTService, sessions SessionService, cookies utils.CookieOptions) *AuthHandler {
	return &AuthHandler{
		users:    users,
		jwt:      jwt,
		sessions: sessions,
		cookies:  cookies,
	}
}

// Register creates an account.
//
// Example request:
//
//	POST /auth/register/
//	{"email": "bond@mi6.gov", "password": "shakenNotStirred", "name": "James Bond", "code_name": "007"}
//
// Response (201):
//
//	{"message": "User created successfully."}
//
// Every invalid field is reported at once in the validation_error details.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("code_name", user.CodeName).
		Msg("User registered")

	utils.RespondWithMessage(w, r, http.StatusCreated, "User created successfully.")
}

// loginResponse is the body of a successful login.
type loginResponse struct {
	Access string            `json:"access"`
	User   models.PublicUser `json:"user"`
}

// Login authenticates by code name or email and opens a device session.
//
// Example request:
//
//	POST /auth/login/
//	{"code_name": "007", "password": "shakenNotStirred"}
//
// Response (200), plus Set-Cookie: refresh_token=...; HttpOnly:
//
//	{"access": "eyJhbGci...", "user": {"id": "...", "email": "bond@mi6.gov", "name": "James Bond", "code_name": "007"}}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in services.LoginInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	details := utils.FieldErrors{}
	if in.CodeName == "" && in.Email == "" {
		details.Add("code_name", "This field may not be blank.")
	}
	if in.Password == "" {
		details.Add("password", "This field may not be blank.")
	}
	if !details.Empty() {
		utils.RespondWithAPIError(w, r, utils.NewValidationError("", details))
		return
	}

	user, err := h.users.Authenticate(r.Context(), in)
	if err != nil {
		if errors.Is(err, utils.ErrAuthenticationFailed) {
			middleware.IncrementAuthAttempts("invalid_credentials")
		} else {
			middleware.IncrementAuthAttempts("error")
		}
		utils.RespondWithAPIError(w, r, err)
		return
	}

	pair, err := h.jwt.Obtain(r.Context(), user,
		services.ExtractDeviceInfo(r.UserAgent()), utils.ExtractClientIP(r))
	if err != nil {
		middleware.IncrementAuthAttempts("error")
		utils.RespondWithAPIError(w, r, err)
		return
	}
	middleware.IncrementAuthAttempts("success")

	utils.SetRefreshCookie(w, pair.RefreshToken, h.jwt.RefreshExpiry(), h.cookies)
	utils.RespondWithJSON(w, r, http.StatusOK, loginResponse{
		Access: pair.AccessToken,
		User:   user.Public(),
	})
}

// Refresh exchanges the refresh cookie for a new access token. With
// rotation enabled the cookie is replaced by a new refresh token and the
// presented one stops working.
//
// Example request:
//
//	POST /auth/refresh/
//	Cookie: refresh_token=eyJhbGci...
//
// Response (200):
//
//	{"access": "eyJhbGci..."}
//
// A rejected cookie is cleared so the client stops presenting it.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := utils.RefreshTokenFromRequest(r)
	if token == "" {
		middleware.IncrementTokenRefresh("missing_cookie")
		utils.RespondWithAPIError(w, r, errMissingRefreshCookie)
		return
	}

	pair, err := h.jwt.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidToken) {
			middleware.IncrementTokenRefresh("invalid_token")
			utils.ClearRefreshCookie(w, h.cookies)
		} else {
			middleware.IncrementTokenRefresh("error")
		}
		utils.RespondWithAPIError(w, r, err)
		return
	}
	middleware.IncrementTokenRefresh("success")

	if pair.RefreshToken != token {
		utils.SetRefreshCookie(w, pair.RefreshToken, h.jwt.RefreshExpiry(), h.cookies)
	}
	utils.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"access": pair.AccessToken,
	})
}

// Logout revokes the refresh token from the cookie, ending its device
// session, and deletes the cookie. An access token sent as a bearer header
// is blacklisted too. It always answers 204: a missing or already revoked
// token is not an error.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := utils.RefreshTokenFromRequest(r); token != "" {
		if err := h.jwt.Revoke(r.Context(), token); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke refresh token")
		}
	}
	if token, ok := middleware.BearerToken(r); ok {
		if err := h.jwt.RevokeAccess(r.Context(), token); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke access token")
		}
	}

	utils.ClearRefreshCookie(w, h.cookies)
	utils.RespondNoContent(w)
}

// CurrentUser returns the caller's public profile.
//
// Requires: JWT authentication middleware
//
// Response:
//
//	{"id": "...", "email": "bond@mi6.gov", "name": "James Bond", "code_name": "007"}
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}

	user, err := h.users.Current(r.Context(), userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			// The account was deleted after the token was issued.
			utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
			return
		}
		utils.RespondWithAPIError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, user)
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsCurrent bool      `json:"is_current"`
}

// ListSessions lists the caller's device sessions, newest first. The
// session of the presented access token is marked is_current.
//
// Requires: JWT authentication middleware
//
// Response:
//
//	{
//	  "sessions": [
//	    {
//	      "id": "6f1c...",
//	      "device": "Chrome 120 · Windows 10 · Desktop",
//	      "ip_address": "203.0.113.42",
//	      "created_at": "2026-01-20T14:30:00Z",
//	      "expires_at": "2026-01-27T14:30:00Z",
//	      "is_current": true
//	    }
//	  ]
//	}
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}

	sessions, err := h.sessions.ListUserSessions(r.Context(), userID, sessionID)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	response := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		response[i] = sessionResponse{
			ID:        s.ID,
			Device:    s.DeviceInfo,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IsCurrent: s.IsCurrent,
		}
	}

	utils.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"sessions": response,
	})
}

// RevokeSession ends one of the caller's sessions: DELETE /auth/sessions/{id}/.
// The refresh token of that session stops working. A session that does not
// exist or belongs to someone else is 404.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if err := h.sessions.RevokeSession(r.Context(), userID, sessionID); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	utils.RespondNoContent(w)
}

// RevokeOtherSessions ends every session of the caller except the one the
// access token belongs to.
//
// Response:
//
//	{"message": "Other sessions revoked.", "revoked_count": 3}
func (h *AuthHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}

	revoked, err := h.sessions.RevokeOtherSessions(r.Context(), userID, sessionID)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("revoked_count", revoked).
		Msg("Other sessions revoked")

	utils.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":       "Other sessions revoked.",
		"revoked_count": revoked,
	})
}

// caller returns the authenticated user and the session of their access token.
func caller(r *http.Request) (uuid.UUID, string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, "", false
	}
	var sessionID string
	if claims, ok := middleware.GetClaims(r.Context()); ok {
		sessionID = claims.SessionID
	}
	return userID, sessionID, true
}
