package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
)

// Store is an in-memory stand-in for PostgresDB that implements the user
// and ping stores with the same observable behaviour: unique and not-null
// constraints surface as the same validation errors, foreign keys cascade
// and set null the same way, and ownership is part of the write predicate.
type Store struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*models.User
	pings  map[int64]*models.Ping
	nextID int64

	// Now stamps new rows. Tests override it to create pings that share a
	// timestamp.
	Now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users: make(map[uuid.UUID]*models.User),
		pings: make(map[int64]*models.Ping),
		Now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// CreateUser implements services.UserStore.
func (s *Store) CreateUser(_ context.Context, nu models.NewUser) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nu.PasswordHash == "" {
		return nil, utils.FieldError("password", database.MsgRequired)
	}
	for _, u := range s.users {
		if u.Email == nu.Email {
			return nil, utils.FieldError("email", database.MsgEmailTaken)
		}
		if nu.CodeName != "" && u.CodeName == nu.CodeName {
			return nil, utils.FieldError("code_name", database.MsgCodeNameTaken)
		}
	}

	now := s.Now()
	user := &models.User{
		ID:           uuid.New(),
		Email:        nu.Email,
		Name:         nu.Name,
		CodeName:     nu.CodeName,
		PasswordHash: nu.PasswordHash,
		IsActive:     true,
		IsStaff:      nu.IsStaff,
		IsSuperuser:  nu.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user

	copied := *user
	return &copied, nil
}

// GetUserByID implements services.UserStore.
func (s *Store) GetUserByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.ID == userID })
}

// GetUserByEmail implements services.UserStore.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Email == email })
}

// GetUserByCodeName implements services.UserStore.
func (s *Store) GetUserByCodeName(_ context.Context, codeName string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return codeName != "" && u.CodeName == codeName })
}

// DeactivateUser clears the active flag.
func (s *Store) DeactivateUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsActive = false
	}
}

// DeleteUser removes a user and, like the CASCADE foreign key, their pings.
func (s *Store) DeleteUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	for id, p := range s.pings {
		if p.UserID == userID {
			s.deletePingLocked(id)
		}
	}
}

func (s *Store) findUser(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, utils.ErrNotFound
}

// CreatePing implements services.PingStore.
func (s *Store) CreatePing(_ context.Context, np models.NewPing) (*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if np.ParentPingID != nil {
		if _, ok := s.pings[*np.ParentPingID]; !ok {
			return nil, utils.FieldError("parent_ping", database.MsgInvalidPK)
		}
	}
	return s.insertPingLocked(np)
}

// RespondToPing implements services.PingStore.
func (s *Store) RespondToPing(_ context.Context, parentID int64, np models.NewPing) (*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pings[parentID]; !ok {
		return nil, utils.ErrNotFound
	}
	np.ParentPingID = &parentID
	return s.insertPingLocked(np)
}

func (s *Store) insertPingLocked(np models.NewPing) (*models.Ping, error) {
	if np.Latitude == nil {
		return nil, utils.FieldError("latitude", database.MsgRequired)
	}
	if np.Longitude == nil {
		return nil, utils.FieldError("longitude", database.MsgRequired)
	}
	if _, ok := s.users[np.UserID]; !ok {
		return nil, utils.FieldError("user", database.MsgInvalidPK)
	}

	s.nextID++
	ping := &models.Ping{
		ID:        s.nextID,
		UserID:    np.UserID,
		Latitude:  *np.Latitude,
		Longitude: *np.Longitude,
		Timestamp: s.Now(),
	}
	if np.ParentPingID != nil {
		parent := *np.ParentPingID
		ping.ParentPingID = &parent
	}
	s.pings[ping.ID] = ping

	return copyPing(ping), nil
}

// GetPing implements services.PingStore.
func (s *Store) GetPing(_ context.Context, id int64) (*models.PingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ping, ok := s.pings[id]
	if !ok {
		return nil, utils.ErrNotFound
	}

	children := []int64{}
	for _, p := range s.pings {
		if p.ParentPingID != nil && *p.ParentPingID == id {
			children = append(children, p.ID)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	return &models.PingDetail{Ping: *copyPing(ping), ChildPings: children}, nil
}

// ListPings implements services.PingStore.
func (s *Store) ListPings(_ context.Context, f models.PingFilter) ([]models.Ping, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Ping
	for _, p := range s.pings {
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		if f.Timestamp != nil && !p.Timestamp.Equal(*f.Timestamp) {
			continue
		}
		if f.Day != nil {
			start := f.Day.UTC()
			if p.Timestamp.Before(start) || !p.Timestamp.Before(start.Add(24*time.Hour)) {
				continue
			}
		}
		matched = append(matched, *copyPing(p))
	}

	order := f.Order
	if order.Field == "" {
		order = models.DefaultPingOrder
	}
	sortPings(matched, order)

	total := int64(len(matched))
	limit := f.Limit
	if limit <= 0 {
		limit = utils.DefaultPageSize
	}
	if f.Offset >= len(matched) {
		return []models.Ping{}, total, nil
	}
	end := f.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], total, nil
}

// LatestPings implements services.PingStore.
func (s *Store) LatestPings(ctx context.Context, n int) ([]models.Ping, error) {
	pings, _, err := s.ListPings(ctx, models.PingFilter{Order: models.DefaultPingOrder, Limit: n})
	return pings, err
}

// UpdatePing implements services.PingStore.
func (s *Store) UpdatePing(_ context.Context, id int64, ownerID uuid.UUID, upd models.PingUpdate) (*models.Ping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ping, ok := s.pings[id]
	if !ok || ping.UserID != ownerID {
		return nil, utils.ErrNotFound
	}
	if upd.Latitude != nil {
		ping.Latitude = *upd.Latitude
	}
	if upd.Longitude != nil {
		ping.Longitude = *upd.Longitude
	}
	return copyPing(ping), nil
}

// DeletePing implements services.PingStore.
func (s *Store) DeletePing(_ context.Context, id int64, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ping, ok := s.pings[id]
	if !ok || ping.UserID != ownerID {
		return utils.ErrNotFound
	}
	s.deletePingLocked(id)
	return nil
}

// PingCount returns the number of stored pings.
func (s *Store) PingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pings)
}

func (s *Store) deletePingLocked(id int64) {
	delete(s.pings, id)
	for _, p := range s.pings {
		if p.ParentPingID != nil && *p.ParentPingID == id {
			p.ParentPingID = nil
		}
	}
}

func sortPings(pings []models.Ping, order models.PingOrder) {
	key := func(p models.Ping) float64 {
		switch order.Field {
		case models.PingOrderLatitude:
			return p.Latitude
		case models.PingOrderLongitude:
			return p.Longitude
		default:
			return float64(p.Timestamp.UnixMicro())
		}
	}

	sort.Slice(pings, func(i, j int) bool {
		a, b := key(pings[i]), key(pings[j])
		if a == b {
			if order.Descending {
				return pings[i].ID > pings[j].ID
			}
			return pings[i].ID < pings[j].ID
		}
		if order.Descending {
			return a > b
		}
		return a < b
	})
}

func copyPing(p *models.Ping) *models.Ping {
	copied := *p
	if p.ParentPingID != nil {
		parent := *p.ParentPingID
		copied.ParentPingID = &parent
	}
	return &copied
}
