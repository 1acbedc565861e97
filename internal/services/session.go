package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
)

// SessionStore defines the interface for session storage operations.
// Sessions are created together with their first refresh token by
// JWTService.Obtain; this service only reads and deletes them.
type SessionStore interface {
	GetSession(ctx context.Context, userID, sessionID string) (map[string]string, time.Duration, error)
	ListUserSessions(ctx context.Context, userID string) ([]string, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// SessionService lists and revokes a user's device sessions.
//
// A session is the Redis record behind one login. Every refresh token of
// the login carries its id, so revoking the session makes the next refresh
// of that device fail while other devices keep working.
type SessionService struct {
	redis SessionStore
}

// NewSessionService creates a new session service.
//
// Example:
//
//	sessionSvc := services.NewSessionService(redisDB)
func NewSessionService(redis SessionStore) *SessionService {
	return &SessionService{redis: redis}
}

// GetSession retrieves a single session of userID.
// Returns utils.ErrNotFound if the session does not exist or has expired.
func (s *SessionService) GetSession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.SessionInfo, error) {
	sessionData, ttl, err := s.redis.GetSession(ctx, userID.String(), sessionID)
	if errors.Is(err, database.ErrSessionNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	createdAtUnix, err := strconv.ParseInt(sessionData["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid session data: %w", err)
	}

	return &models.SessionInfo{
		ID:         sessionID,
		DeviceInfo: sessionData["device_info"],
		IPAddress:  sessionData["ip_address"],
		CreatedAt:  time.Unix(createdAtUnix, 0).UTC(),
		ExpiresAt:  time.Now().Add(ttl).UTC().Truncate(time.Second),
	}, nil
}

// ListUserSessions returns the active sessions of userID, newest first.
// currentSessionID marks the session the request was made from.
//
// Sessions that vanish or are unreadable between the scan and the read are
// skipped.
func (s *SessionService) ListUserSessions(ctx context.Context, userID uuid.UUID, currentSessionID string) ([]*models.SessionInfo, error) {
	sessionIDs, err := s.redis.ListUserSessions(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.SessionInfo, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionInfo, err := s.GetSession(ctx, userID, sessionID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("user_id", userID.String()).
				Str("session_id", sessionID).
				Msg("Failed to get session info")
			continue
		}
		sessionInfo.IsCurrent = sessionID == currentSessionID
		sessions = append(sessions, sessionInfo)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	return sessions, nil
}

// RevokeSession deletes one session of userID. Returns utils.ErrNotFound
// when the session does not exist, which includes sessions of other users.
func (s *SessionService) RevokeSession(ctx context.Context, userID uuid.UUID, sessionID string) error {
	if _, _, err := s.redis.GetSession(ctx, userID.String(), sessionID); err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return utils.ErrNotFound
		}
		return err
	}

	if err := s.redis.DeleteSession(ctx, userID.String(), sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("session_id", sessionID).
		Msg("Session revoked successfully")

	return nil
}

// RevokeOtherSessions deletes every session of userID except keepSessionID
// and returns how many were removed. Individual failures are logged and do
// not stop the sweep.
func (s *SessionService) RevokeOtherSessions(ctx context.Context, userID uuid.UUID, keepSessionID string) (int, error) {
	sessionIDs, err := s.redis.ListUserSessions(ctx, userID.String())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, sessionID := range sessionIDs {
		if sessionID == keepSessionID {
			continue
		}
		if err := s.redis.DeleteSession(ctx, userID.String(), sessionID); err != nil {
			log.Warn().
				Err(err).
				Str("user_id", userID.String()).
				Str("session_id", sessionID).
				Msg("Failed to delete session")
			continue
		}
		revoked++
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("count", revoked).
		Msg("Other sessions revoked")

	return revoked, nil
}

// ExtractDeviceInfo turns a User-Agent header into a short display string
// such as "Chrome 120.0 · Windows 10 · Desktop". Returns "Unknown Device"
// for an empty header.
func ExtractDeviceInfo(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgent)

	var parts []string

	if ua.Name != "" {
		browser := ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
		parts = append(parts, browser)
	}

	if ua.OS != "" {
		os := ua.OS
		if ua.OSVersion != "" {
			os += " " + ua.OSVersion
		}
		parts = append(parts, os)
	}

	switch {
	case ua.Mobile:
		parts = append(parts, "Mobile")
	case ua.Tablet:
		parts = append(parts, "Tablet")
	case ua.Desktop:
		parts = append(parts, "Desktop")
	}

	if len(parts) == 0 {
		if len(userAgent) > 100 {
			return userAgent[:100] + "..."
		}
		return userAgent
	}

	return strings.Join(parts, " · ")
}
