package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/middleware"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/pkg/utils"
)

// PingService stores and queries pings.
type PingService interface {
	Create(ctx context.Context, owner uuid.UUID, in services.PingInput) (*models.Ping, error)
	Respond(ctx context.Context, parentID int64, owner uuid.UUID, in services.PingInput) (*models.Ping, error)
	Get(ctx context.Context, id int64) (*models.PingDetail, error)
	List(ctx context.Context, params services.ListParams) ([]models.Ping, int64, error)
	Latest(ctx context.Context, n int) ([]models.Ping, error)
	Update(ctx context.Context, id int64, caller uuid.UUID, upd models.PingUpdate) (*models.Ping, error)
	Delete(ctx context.Context, id int64, caller uuid.UUID) error
}

// PingHandler serves /pings/. Every route requires the JWT middleware; any
// authenticated user may read any ping, only the owner may change it.
type PingHandler struct {
	pings PingService
}

// NewPingHandler creates the ping handler.
func NewPingHandler(pings PingService) *PingHandler {
	return &PingHandler{pings: pings}
}

// List returns one page of pings.
//
// Query parameters: user (owner UUID), timestamp (RFC 3339 instant or
// YYYY-MM-DD day), ordering (timestamp, latitude or longitude, "-" for
// descending), page and page_size.
//
// Response:
//
//	{"data": [...], "pagination": {"page": 1, "page_size": 20, "total_items": 42, ...}}
func (h *PingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.ParsePageParams(r)

	pings, total, err := h.pings.List(r.Context(), services.ListParams{
		User:      q.Get("user"),
		Timestamp: q.Get("timestamp"),
		Ordering:  q.Get("ordering"),
		Page:      page,
	})
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}
	if pings == nil {
		pings = []models.Ping{}
	}

	utils.RespondWithJSON(w, r, http.StatusOK, utils.NewPaginatedResponse(pings, page, total))
}

// Create stores a ping owned by the caller.
//
// Example request:
//
//	POST /pings/
//	{"latitude": 51.5074, "longitude": -0.1278, "parent_ping": null}
func (h *PingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}

	var in services.PingInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	ping, err := h.pings.Create(r.Context(), userID, in)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}
	middleware.IncrementPingsCreated("ping")

	utils.RespondWithJSON(w, r, http.StatusCreated, ping)
}

// Get returns a ping and the ids of its direct replies in child_pings.
func (h *PingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pingID(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotFound)
		return
	}

	ping, err := h.pings.Get(r.Context(), id)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}
	if ping.ChildPings == nil {
		ping.ChildPings = []int64{}
	}

	utils.RespondWithJSON(w, r, http.StatusOK, ping)
}

// Update applies a partial update of latitude and longitude. Other fields
// are read-only and ignored; an explicit null is rejected.
func (h *PingHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}
	id, ok := pingID(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotFound)
		return
	}

	var raw map[string]json.RawMessage
	if err := utils.DecodeJSON(r, &raw); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	upd, err := decodePingUpdate(raw)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	ping, err := h.pings.Update(r.Context(), id, userID, upd)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, ping)
}

func decodePingUpdate(raw map[string]json.RawMessage) (models.PingUpdate, error) {
	var upd models.PingUpdate
	details := utils.FieldErrors{}

	for field, dst := range map[string]**float64{
		"latitude":  &upd.Latitude,
		"longitude": &upd.Longitude,
	} {
		value, present := raw[field]
		if !present {
			continue
		}
		if string(value) == "null" {
			details.Add(field, "This field may not be null.")
			continue
		}
		var f float64
		if err := json.Unmarshal(value, &f); err != nil {
			details.Add(field, "A valid number is required.")
			continue
		}
		*dst = &f
	}

	if !details.Empty() {
		return models.PingUpdate{}, utils.NewValidationError("", details)
	}
	return upd, nil
}

// Delete removes a ping owned by the caller. Its replies are kept with
// parent_ping set to null.
func (h *PingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}
	id, ok := pingID(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotFound)
		return
	}

	if err := h.pings.Delete(r.Context(), id, userID); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	utils.RespondNoContent(w)
}

// Latest returns the most recent pings of all users, newest first. The
// limit query parameter defaults to 3 and is capped at 100.
func (h *PingHandler) Latest(w http.ResponseWriter, r *http.Request) {
	limit := utils.ParseIntParam(r, "limit", services.DefaultLatest)

	pings, err := h.pings.Latest(r.Context(), limit)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}
	if pings == nil {
		pings = []models.Ping{}
	}

	utils.RespondWithJSON(w, r, http.StatusOK, pings)
}

// Respond creates a reply to the ping in the URL, owned by the caller.
//
// Example request:
//
//	POST /pings/4/respond/
//	{"latitude": -33.8688, "longitude": 151.2093}
func (h *PingHandler) Respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotAuthenticated)
		return
	}
	parentID, ok := pingID(r)
	if !ok {
		utils.RespondWithAPIError(w, r, utils.ErrNotFound)
		return
	}

	var in services.PingInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}

	ping, err := h.pings.Respond(r.Context(), parentID, userID, in)
	if err != nil {
		utils.RespondWithAPIError(w, r, err)
		return
	}
	middleware.IncrementPingsCreated("response")

	utils.RespondWithJSON(w, r, http.StatusCreated, ping)
}

// pingID reads the {id} URL parameter. Anything that is not a positive
// integer cannot name a ping.
func pingID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
