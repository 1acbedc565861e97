package models

import (
	"time"

	"github.com/google/uuid"
)

// Ping is a geolocated check-in. ParentPingID links a reply to the ping it
// answers and becomes nil when that parent is deleted.
//
// JSON example:
//
//	{
//	  "id": 42,
//	  "user": "550e8400-e29b-41d4-a716-446655440000",
//	  "latitude": 51.5074,
//	  "longitude": -0.1278,
//	  "timestamp": "2024-01-20T14:45:00Z",
//	  "parent_ping": null
//	}
type Ping struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"timestamp"`
	ParentPingID *int64    `json:"parent_ping"`
}

// PingDetail is a ping together with the ids of its direct replies.
type PingDetail struct {
	Ping
	ChildPings []int64 `json:"child_pings"`
}

// NewPing is the insert payload. Latitude and Longitude stay nullable down to
// the store so that the NOT NULL constraint is what rejects a missing value.
type NewPing struct {
	UserID       uuid.UUID
	Latitude     *float64
	Longitude    *float64
	ParentPingID *int64
}

// PingUpdate is a partial update of the location fields. Nil fields are left
// unchanged.
type PingUpdate struct {
	Latitude  *float64
	Longitude *float64
}

// Empty reports whether the update changes nothing.
func (u PingUpdate) Empty() bool {
	return u.Latitude == nil && u.Longitude == nil
}

// Sortable ping fields.
const (
	PingOrderTimestamp = "timestamp"
	PingOrderLatitude  = "latitude"
	PingOrderLongitude = "longitude"
)

// PingOrder is a single sort key. Ties are always broken by id in the same
// direction so that pings created within the same instant keep insertion
// order.
type PingOrder struct {
	Field      string
	Descending bool
}

// DefaultPingOrder is newest first.
var DefaultPingOrder = PingOrder{Field: PingOrderTimestamp, Descending: true}

// PingFilter narrows a ping listing. A nil field does not filter.
//
// Exactly one of Timestamp or Day is normally set: Timestamp matches an
// exact instant, Day matches the whole UTC calendar day starting at Day.
type PingFilter struct {
	UserID    *uuid.UUID
	Timestamp *time.Time
	Day       *time.Time
	Order     PingOrder
	Offset    int
	Limit     int
}
