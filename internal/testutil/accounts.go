package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
)

// Accounts answers account lookups for token tests. Every id is an active
// user until it is deactivated or deleted.
type Accounts struct {
	mu       sync.Mutex
	inactive map[uuid.UUID]bool
	deleted  map[uuid.UUID]bool
	err      error
}

// NewAccounts returns a lookup in which every account is active.
func NewAccounts() *Accounts {
	return &Accounts{
		inactive: make(map[uuid.UUID]bool),
		deleted:  make(map[uuid.UUID]bool),
	}
}

// GetUserByID implements services.AccountStore.
func (a *Accounts) GetUserByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}
	if a.deleted[userID] {
		return nil, utils.ErrNotFound
	}

	user := TestUser()
	user.ID = userID
	user.IsActive = !a.inactive[userID]
	return user, nil
}

// Deactivate marks userID inactive.
func (a *Accounts) Deactivate(userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inactive[userID] = true
}

// Delete makes userID unknown.
func (a *Accounts) Delete(userID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted[userID] = true
}

// Fail makes every lookup return err.
func (a *Accounts) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}
