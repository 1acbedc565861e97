package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
)

// UserDatabase is the subset of the user store the cache reads through.
type UserDatabase interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// UserCache caches public user profiles. Only the public projection is
// written to Redis; the password hash never leaves the database.
type UserCache struct {
	cache *Cache
	db    UserDatabase
	ttl   time.Duration
}

// NewUserCache creates a new user cache
func NewUserCache(cache *Cache, db UserDatabase, ttl time.Duration) *UserCache {
	return &UserCache{
		cache: cache,
		db:    db,
		ttl:   ttl,
	}
}

// GetPublicUser returns the public profile for userID, loading it from the
// database on a cache miss.
func (uc *UserCache) GetPublicUser(ctx context.Context, userID uuid.UUID) (*models.PublicUser, error) {
	var user models.PublicUser

	err := uc.cache.GetOrSet(ctx, UserKey(userID), uc.ttl, &user, func() (interface{}, error) {
		u, err := uc.db.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return u.Public(), nil
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}
