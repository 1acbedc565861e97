package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/events"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/cache"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLatest is the number of pings returned by Latest when the
	// caller does not ask for a specific count.
	DefaultLatest = 3
	// MaxLatest caps the latest-pings window.
	MaxLatest = 100

	latestCacheTTL = 30 * time.Second
)

// PingStore is the persistence the ping service needs.
type PingStore interface {
	CreatePing(ctx context.Context, np models.NewPing) (*models.Ping, error)
	RespondToPing(ctx context.Context, parentID int64, np models.NewPing) (*models.Ping, error)
	GetPing(ctx context.Context, id int64) (*models.PingDetail, error)
	ListPings(ctx context.Context, filter models.PingFilter) ([]models.Ping, int64, error)
	LatestPings(ctx context.Context, n int) ([]models.Ping, error)
	UpdatePing(ctx context.Context, id int64, ownerID uuid.UUID, upd models.PingUpdate) (*models.Ping, error)
	DeletePing(ctx context.Context, id int64, ownerID uuid.UUID) error
}

// PingInput is the body of a create or respond request. The owner is never
// part of the body; it is always the authenticated caller.
type PingInput struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	ParentPing *int64   `json:"parent_ping"`
}

// ListParams are the raw query parameters of a ping listing.
type ListParams struct {
	User      string
	Timestamp string
	Ordering  string
	Page      utils.PageParams
}

// PingService implements the ping API on top of a PingStore.
//
// Latest results are cached in Redis when a cache is configured, keyed by a
// generation counter that every mutation bumps. If the bump fails, a stale
// answer lives for at most latestCacheTTL.
type PingService struct {
	store     PingStore
	cache     *cache.Cache
	publisher events.Publisher
}

// NewPingService creates the ping service. c and publisher may be nil.
//
// Example:
//
//	pingSvc := services.NewPingService(postgresDB, cache.NewCache(redisDB.Client()), publisher)
func NewPingService(store PingStore, c *cache.Cache, publisher events.Publisher) *PingService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &PingService{
		store:     store,
		cache:     c,
		publisher: publisher,
	}
}

// CanMutate reports whether caller may update or delete p.
func CanMutate(p *models.Ping, caller uuid.UUID) bool {
	return p != nil && p.UserID == caller
}

// Create stores a ping owned by owner. A parent, when given, must exist.
func (s *PingService) Create(ctx context.Context, owner uuid.UUID, in PingInput) (*models.Ping, error) {
	ping, err := s.store.CreatePing(ctx, models.NewPing{
		UserID:       owner,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		ParentPingID: in.ParentPing,
	})
	if err != nil {
		return nil, err
	}

	s.afterInsert(ctx, ping)
	return ping, nil
}

// Respond creates a reply to parentID owned by owner. Returns
// utils.ErrNotFound when the parent does not exist. Any parent_ping in the
// input is ignored.
func (s *PingService) Respond(ctx context.Context, parentID int64, owner uuid.UUID, in PingInput) (*models.Ping, error) {
	ping, err := s.store.RespondToPing(ctx, parentID, models.NewPing{
		UserID:    owner,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	})
	if err != nil {
		return nil, err
	}

	s.afterInsert(ctx, ping)
	return ping, nil
}

// Get returns a ping with the ids of its direct replies. Any authenticated
// user may read any ping.
func (s *PingService) Get(ctx context.Context, id int64) (*models.PingDetail, error) {
	return s.store.GetPing(ctx, id)
}

// List returns one page of pings and the total number of matches.
//
// User filters by owner id. Timestamp is either an RFC 3339 instant (exact
// match) or a YYYY-MM-DD date (the whole UTC day). Ordering is one of
// timestamp, latitude or longitude, optionally prefixed with "-" for
// descending; the default is newest first.
func (s *PingService) List(ctx context.Context, params ListParams) ([]models.Ping, int64, error) {
	filter, err := BuildPingFilter(params)
	if err != nil {
		return nil, 0, err
	}
	return s.store.ListPings(ctx, filter)
}

// BuildPingFilter validates the raw listing parameters. Every invalid
// parameter is reported in one validation error.
func BuildPingFilter(params ListParams) (models.PingFilter, error) {
	filter := models.PingFilter{
		Order:  models.DefaultPingOrder,
		Offset: params.Page.Offset,
		Limit:  params.Page.Limit,
	}
	details := utils.FieldErrors{}

	if params.User != "" {
		userID, err := uuid.Parse(params.User)
		if err != nil {
			details.Add("user", "Must be a valid UUID.")
		} else {
			filter.UserID = &userID
		}
	}

	if params.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, params.Timestamp); err == nil {
			ts = ts.UTC()
			filter.Timestamp = &ts
		} else if day, err := time.Parse(time.DateOnly, params.Timestamp); err == nil {
			filter.Day = &day
		} else {
			details.Add("timestamp", "Enter a valid date/time.")
		}
	}

	if params.Ordering != "" {
		field := strings.TrimPrefix(params.Ordering, "-")
		switch field {
		case models.PingOrderTimestamp, models.PingOrderLatitude, models.PingOrderLongitude:
			filter.Order = models.PingOrder{
				Field:      field,
				Descending: strings.HasPrefix(params.Ordering, "-"),
			}
		default:
			details.Add("ordering", "Ordering must be one of timestamp, latitude, longitude, optionally prefixed with '-'.")
		}
	}

	if !details.Empty() {
		return models.PingFilter{}, utils.NewValidationError("", details)
	}
	return filter, nil
}

// Latest returns the n most recent pings across all users, newest first.
// n <= 0 means DefaultLatest; n is capped at MaxLatest.
func (s *PingService) Latest(ctx context.Context, n int) ([]models.Ping, error) {
	if n <= 0 {
		n = DefaultLatest
	}
	if n > MaxLatest {
		n = MaxLatest
	}

	if s.cache == nil {
		return s.store.LatestPings(ctx, n)
	}

	// The generation is read before loading. A write that lands during the
	// load bumps it, so the result cached here is never read afterwards.
	gen, err := s.cache.Generation(ctx, cache.LatestPingsGeneration)
	if err != nil {
		log.Warn().Err(err).Msg("Latest pings cache unavailable, reading from the store")
		return s.store.LatestPings(ctx, n)
	}

	var pings []models.Ping
	err = s.cache.GetOrSet(ctx, cache.LatestPingsKey(gen, n), latestCacheTTL, &pings, func() (interface{}, error) {
		return s.store.LatestPings(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return pings, nil
}

// Update changes the location of a ping owned by caller. A ping owned by
// someone else is reported as utils.ErrNotFound, the same as a missing one.
func (s *PingService) Update(ctx context.Context, id int64, caller uuid.UUID, upd models.PingUpdate) (*models.Ping, error) {
	if err := s.checkOwner(ctx, id, caller); err != nil {
		return nil, err
	}

	ping, err := s.store.UpdatePing(ctx, id, caller, upd)
	if err != nil {
		return nil, err
	}

	s.invalidateLatest(ctx)
	return ping, nil
}

// Delete removes a ping owned by caller. Its replies stay, with no parent.
func (s *PingService) Delete(ctx context.Context, id int64, caller uuid.UUID) error {
	if err := s.checkOwner(ctx, id, caller); err != nil {
		return err
	}

	if err := s.store.DeletePing(ctx, id, caller); err != nil {
		return err
	}

	log.Info().
		Int64("ping_id", id).
		Str("user_id", caller.String()).
		Msg("Ping deleted")

	s.invalidateLatest(ctx)
	return nil
}

// checkOwner runs the ownership check ahead of the write. The store repeats
// it in the statement predicate, which covers a change of hands in between.
func (s *PingService) checkOwner(ctx context.Context, id int64, caller uuid.UUID) error {
	existing, err := s.store.GetPing(ctx, id)
	if err != nil {
		return err
	}
	if !CanMutate(&existing.Ping, caller) {
		log.Warn().
			Int64("ping_id", id).
			Str("user_id", caller.String()).
			Msg("Rejected mutation of ping owned by another user")
		return utils.ErrNotFound
	}
	return nil
}

func (s *PingService) afterInsert(ctx context.Context, ping *models.Ping) {
	s.invalidateLatest(ctx)

	event := events.NewPingEvent(ping)
	if err := s.publisher.PublishPing(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("type", event.Type).
			Int64("ping_id", ping.ID).
			Msg("Failed to queue ping event")
	}
}

func (s *PingService) invalidateLatest(ctx context.Context) {
	if s.cache == nil {
		return
	}

	gen, err := s.cache.Bump(ctx, cache.LatestPingsGeneration)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Failed to invalidate latest pings cache")
		}
		return
	}

	// Results of the previous generation would expire anyway; dropping them
	// now only frees memory.
	if err := s.cache.DeletePattern(ctx, cache.LatestPingsPattern(gen-1)); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("Failed to drop stale latest pings")
	}
}
