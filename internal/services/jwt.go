package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenStore defines the Redis operations needed by the JWT service.
// This interface abstracts the refresh token registry, device sessions and
// the blacklist, enabling testing and dependency injection.
type TokenStore interface {
	CreateSession(ctx context.Context, userID, sessionID, jti, deviceInfo, ipAddress string, expiry time.Duration) error
	GetRefreshToken(ctx context.Context, jti string) (string, error)
	RotateRefreshToken(ctx context.Context, rot database.RefreshRotation) error
	RevokeRefreshToken(ctx context.Context, jti, userID, sessionID string, blacklistTTL time.Duration) error
	SessionExists(ctx context.Context, userID, sessionID string) (bool, error)
	BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AccountStore looks up the account a token was issued to.
type AccountStore interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// JWTService handles JWT token generation, validation, and lifecycle management.
// It provides:
//   - Token pair issuance at login, bound to a new device session
//   - Refresh with rotation of the refresh token
//   - Idempotent revocation of refresh and access tokens
//   - Access token validation with blacklist and account checks
//
// Tokens use HS256 signing. Every refresh token is registered in Redis under
// its jti; a token that is not in the registry cannot be exchanged even if
// its signature and expiry are fine. Tokens of an account that has been
// deactivated or deleted stop working on the next request.
type JWTService struct {
	secret                 []byte
	accessExpiry           time.Duration // Access token lifetime (default: 15 minutes)
	refreshExpiry          time.Duration // Refresh token and session lifetime (default: 7 days)
	rotate                 bool
	blacklistAfterRotation bool
	store                  TokenStore
	accounts               AccountStore
}

// TokenPair is the result of a login or refresh. The handler puts
// AccessToken in the body and RefreshToken in the cookie; the refresh token
// is never serialized.
type TokenPair struct {
	AccessToken  string    `json:"access"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"` // Access token expiration time
	SessionID    string    `json:"-"`
}

// Claims represents the custom JWT claims embedded in tokens.
type Claims struct {
	UserID    string `json:"user_id"` // UUID of the authenticated user
	Email     string `json:"email"`
	JTI       string `json:"jti"` // Unique token ID for blacklisting
	TokenType string `json:"typ"`
	SessionID string `json:"sid"` // Device session the token belongs to
	jwt.RegisteredClaims
}

// NewJWTService creates a new JWT service with the provided configuration.
//
// Example:
//
//	jwtSvc := services.NewJWTService(&config.JWTConfig{
//	    Secret:        []byte("your-secret-key-min-32-bytes"),
//	    AccessExpiry:  15 * time.Minute,
//	    RefreshExpiry: 7 * 24 * time.Hour,
//	    RotateRefresh: true,
//	}, redisDB, postgresDB)
func NewJWTService(cfg *config.JWTConfig, store TokenStore, accounts AccountStore) *JWTService {
	return &JWTService{
		secret:                 cfg.Secret,
		accessExpiry:           cfg.AccessExpiry,
		refreshExpiry:          cfg.RefreshExpiry,
		rotate:                 cfg.RotateRefresh,
		blacklistAfterRotation: cfg.BlacklistAfterRotation,
		store:                  store,
		accounts:               accounts,
	}
}

// RefreshExpiry is the refresh token lifetime. The handlers derive the
// cookie Max-Age from it.
func (s *JWTService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

// Obtain issues an access and refresh token for a freshly authenticated
// user and opens a device session for them.
//
// Example:
//
//	pair, err := jwtSvc.Obtain(ctx, user,
//	    services.ExtractDeviceInfo(r.UserAgent()), utils.ExtractClientIP(r))
//	if err != nil {
//	    return fmt.Errorf("token generation failed: %w", err)
//	}
//	utils.SetRefreshCookie(w, pair.RefreshToken, jwtSvc.RefreshExpiry(), cookieOpts)
func (s *JWTService) Obtain(ctx context.Context, user *models.User, deviceInfo, ipAddress string) (*TokenPair, error) {
	sessionID := uuid.NewString()
	userID := user.ID.String()

	refreshJTI := generateJTI()
	refreshToken, _, err := s.generateToken(userID, user.Email, refreshJTI, TokenTypeRefresh, sessionID, s.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	accessToken, expiresAt, err := s.generateToken(userID, user.Email, generateJTI(), TokenTypeAccess, sessionID, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	if err := s.store.CreateSession(ctx, userID, sessionID, refreshJTI, deviceInfo, ipAddress, s.refreshExpiry); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to store refresh token in Redis")
		return nil, err
	}

	log.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("refresh_jti", refreshJTI).
		Str("device", deviceInfo).
		Msg("Token pair issued")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		SessionID:    sessionID,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
//
// With rotation enabled the refresh token is single use: the response
// carries a new refresh token in the same session and the presented one is
// removed from the registry (and blacklisted) in the same Redis transaction.
// Two concurrent exchanges of one token cannot both succeed.
//
// A token whose account is inactive or gone is rejected and its session is
// ended. Every rejection is utils.ErrInvalidToken.
func (s *JWTService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh || claims.SessionID == "" {
		return nil, utils.ErrInvalidToken
	}

	if err := s.checkBlacklist(ctx, claims.JTI); err != nil {
		return nil, err
	}

	if err := s.checkAccount(ctx, claims); err != nil {
		if errors.Is(err, utils.ErrInvalidToken) {
			s.endSession(ctx, claims)
		}
		return nil, err
	}

	var newRefresh string
	if s.rotate {
		newJTI := generateJTI()
		newRefresh, _, err = s.generateToken(claims.UserID, claims.Email, newJTI, TokenTypeRefresh, claims.SessionID, s.refreshExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to generate refresh token: %w", err)
		}

		var blacklistTTL time.Duration
		if s.blacklistAfterRotation {
			blacklistTTL = remaining(claims)
		}

		err = s.store.RotateRefreshToken(ctx, database.RefreshRotation{
			OldJTI:       claims.JTI,
			NewJTI:       newJTI,
			UserID:       claims.UserID,
			SessionID:    claims.SessionID,
			Expiry:       s.refreshExpiry,
			BlacklistTTL: blacklistTTL,
		})
		if err != nil {
			return nil, s.rejectRefresh(err, claims)
		}
	} else {
		if err := s.checkRegistered(ctx, claims); err != nil {
			return nil, s.rejectRefresh(err, claims)
		}
		newRefresh = refreshToken
	}

	accessToken, expiresAt, err := s.generateToken(claims.UserID, claims.Email, generateJTI(), TokenTypeAccess, claims.SessionID, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	log.Info().
		Str("user_id", claims.UserID).
		Str("session_id", claims.SessionID).
		Bool("rotated", s.rotate).
		Msg("Access token refreshed successfully")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
		SessionID:    claims.SessionID,
	}, nil
}

// Revoke invalidates a refresh token and ends its session. It never fails
// for tokens that are empty, malformed, expired or already revoked, so
// logout can always succeed.
func (s *JWTService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.parse(refreshToken)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring unusable token on revoke")
		return nil
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil
	}

	ttl := remaining(claims)
	if ttl <= 0 {
		return nil
	}

	if err := s.store.RevokeRefreshToken(ctx, claims.JTI, claims.UserID, claims.SessionID, ttl); err != nil {
		return err
	}

	log.Info().
		Str("jti", claims.JTI).
		Str("user_id", claims.UserID).
		Str("session_id", claims.SessionID).
		Msg("Refresh token revoked")

	return nil
}

// RevokeAccess blacklists an access token for the rest of its lifetime.
// Like Revoke it ignores tokens it cannot use.
func (s *JWTService) RevokeAccess(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	claims, err := s.parse(accessToken)
	if err != nil || claims.TokenType != TokenTypeAccess {
		return nil
	}

	ttl := remaining(claims)
	if ttl <= 0 {
		return nil
	}

	if err := s.store.BlacklistToken(ctx, claims.JTI, ttl); err != nil {
		return err
	}

	log.Info().
		Str("jti", claims.JTI).
		Str("user_id", claims.UserID).
		Msg("Access token revoked")
	return nil
}

// ValidateAccessToken validates an access token and returns its claims.
// Performs signature, expiry, token type, blacklist and account checks.
// This is what the authentication middleware calls on every request.
func (s *JWTService) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil || claims.TokenType != TokenTypeAccess {
		return nil, utils.ErrInvalidToken
	}

	if err := s.checkBlacklist(ctx, claims.JTI); err != nil {
		return nil, err
	}

	if err := s.checkAccount(ctx, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// parse verifies signature and registered claims.
func (s *JWTService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (s *JWTService) checkBlacklist(ctx context.Context, jti string) error {
	blacklisted, err := s.store.IsTokenBlacklisted(ctx, jti)
	if err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("Failed to check token blacklist")
		return fmt.Errorf("failed to verify token status: %w", err)
	}
	if blacklisted {
		return utils.ErrInvalidToken
	}
	return nil
}

// checkAccount returns utils.ErrInvalidToken when the token's account has
// been deleted or deactivated. Store failures are returned as they are.
func (s *JWTService) checkAccount(ctx context.Context, claims *Claims) error {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return utils.ErrInvalidToken
	}

	user, err := s.accounts.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		log.Warn().Str("user_id", claims.UserID).Msg("Token presented for a deleted account")
		return utils.ErrInvalidToken
	case err != nil:
		return fmt.Errorf("failed to load token account: %w", err)
	case !user.IsActive:
		log.Warn().Str("user_id", claims.UserID).Msg("Token presented for an inactive account")
		return utils.ErrInvalidToken
	}
	return nil
}

// endSession revokes the refresh token and its session. Failures are logged;
// the caller is rejecting the token either way.
func (s *JWTService) endSession(ctx context.Context, claims *Claims) {
	if err := s.store.RevokeRefreshToken(ctx, claims.JTI, claims.UserID, claims.SessionID, remaining(claims)); err != nil {
		log.Error().
			Err(err).
			Str("user_id", claims.UserID).
			Str("session_id", claims.SessionID).
			Msg("Failed to end session of inactive account")
	}
}

func (s *JWTService) checkRegistered(ctx context.Context, claims *Claims) error {
	storedUserID, err := s.store.GetRefreshToken(ctx, claims.JTI)
	if err != nil {
		return err
	}
	if storedUserID != claims.UserID {
		return database.ErrTokenNotFound
	}

	exists, err := s.store.SessionExists(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return err
	}
	if !exists {
		return database.ErrSessionNotFound
	}
	return nil
}

func (s *JWTService) rejectRefresh(err error, claims *Claims) error {
	if errors.Is(err, database.ErrTokenNotFound) || errors.Is(err, database.ErrSessionNotFound) {
		log.Warn().
			Str("user_id", claims.UserID).
			Str("jti", claims.JTI).
			Str("reason", err.Error()).
			Msg("Refresh token rejected")
		return utils.ErrInvalidToken
	}
	return err
}

// generateToken signs an HS256 token with the given claims.
func (s *JWTService) generateToken(userID, email, jti, tokenType, sessionID string, expiry time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(expiry)

	claims := Claims{
		UserID:    userID,
		Email:     email,
		JTI:       jti,
		TokenType: tokenType,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

func remaining(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}

// generateJTI returns a URL-safe base64 string of 16 random bytes.
func generateJTI() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
