package domain

import (
	"errors"
	"time"

	"github.com/routepulse/routepulse/routeevent"
)

// ErrEventNotFound reports a lookup for an event id that is not stored.
// Adapters translate their driver-specific no-rows errors into this so
// callers can tell a missing event from a failing backend.
var ErrEventNotFound = errors.New("event not found")

// StoredEvent is a route event as persisted by the platform: the SDK value
// plus the route it belongs to and bookkeeping timestamps. The event id is
// lifted out of the SDK value because storage requires one.
type StoredEvent struct {
	ID        string                `json:"id"`
	RouteID   string                `json:"route_id"`
	Event     routeevent.RouteEvent `json:"event"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NearbyEvent is a stored event with its distance in meters from a query
// point, computed by the storage layer.
type NearbyEvent struct {
	StoredEvent
	Distance float64 `json:"distance"`
}

// FeedStats summarizes what the ingestor has loaded.
type FeedStats struct {
	Routes     int    `json:"routes"`
	Events     int    `json:"events"`
	LastIngest string `json:"last_ingest,omitempty"`
}
