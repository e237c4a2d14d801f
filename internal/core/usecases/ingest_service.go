package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/routepulse/routepulse/internal/core/domain"
	"github.com/routepulse/routepulse/internal/core/ports"
	"github.com/routepulse/routepulse/internal/pkg/geospatial"
	"github.com/routepulse/routepulse/routeevent"
)

// relocationThresholdMeters is how far an event must move between polls
// before a relocation broadcast goes out.
const relocationThresholdMeters = 25.0

// IngestService stores route events fetched from the upstream provider and
// fans updates out to the message broker.
type IngestService struct {
	events    ports.EventRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
}

// NewIngestService creates a new IngestService. cache and publisher may be
// nil; ingestion then skips invalidation and fan-out.
func NewIngestService(events ports.EventRepository, cache ports.CacheService, publisher ports.EventPublisher) *IngestService {
	return &IngestService{events: events, cache: cache, publisher: publisher}
}

// StoreRouteEvents upserts one route's events and publishes each update.
// Events without an id cannot be keyed and are skipped. Returns how many
// events were stored.
func (s *IngestService) StoreRouteEvents(ctx context.Context, routeID string, evs []routeevent.RouteEvent) (int, error) {
	if routeID == "" {
		return 0, fmt.Errorf("route id must not be empty")
	}

	now := time.Now().UTC()
	stored := make([]domain.StoredEvent, 0, len(evs))
	for _, ev := range evs {
		id, ok := ev.ID()
		if !ok {
			slog.Warn("skipping route event without id", "route_id", routeID)
			continue
		}
		stored = append(stored, domain.StoredEvent{
			ID:        id,
			RouteID:   routeID,
			Event:     ev,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if len(stored) == 0 {
		return 0, nil
	}

	// Capture previous positions before the upsert overwrites them
	var moved []relocation
	if s.publisher != nil {
		moved = s.detectRelocations(ctx, stored)
	}

	if err := s.events.UpsertBatch(ctx, stored); err != nil {
		return 0, fmt.Errorf("upsert events for route %s: %w", routeID, err)
	}

	// Drop the route list and every upserted event's own cache entry so
	// reads see the new positions immediately. Nearby keys are derived from
	// query coordinates and cannot be enumerated; they expire by TTL.
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "events:route:"+routeID)
		for i := range stored {
			_ = s.cache.Delete(ctx, "events:id:"+stored[i].ID)
		}
	}

	if s.publisher != nil {
		for i := range stored {
			if err := s.publisher.PublishEvent(ctx, &stored[i]); err != nil {
				slog.Warn("publish route event failed", "event_id", stored[i].ID, "error", err)
			}
		}
		for _, m := range moved {
			if data, err := json.Marshal(m); err == nil {
				if err := s.publisher.PublishBroadcast(ctx, data); err != nil {
					slog.Warn("publish relocation failed", "event_id", m.EventID, "error", err)
				}
			}
		}
	}

	return len(stored), nil
}

// relocation is broadcast when an event's reported position jumps.
type relocation struct {
	Type     string  `json:"type"`
	EventID  string  `json:"event_id"`
	RouteID  string  `json:"route_id"`
	Distance float64 `json:"distance_meters"`
}

// detectRelocations compares incoming events against their stored positions.
func (s *IngestService) detectRelocations(ctx context.Context, incoming []domain.StoredEvent) []relocation {
	var moved []relocation
	for i := range incoming {
		newLoc, ok := incoming[i].Event.Location()
		if !ok {
			continue
		}
		newPt, err := newLoc.Point()
		if err != nil {
			continue
		}

		prev, err := s.events.GetByID(ctx, incoming[i].ID)
		if err != nil || prev == nil {
			continue
		}
		oldLoc, ok := prev.Event.Location()
		if !ok {
			continue
		}
		oldPt, err := oldLoc.Point()
		if err != nil {
			continue
		}

		dist := geospatial.Haversine(oldPt.Lat, oldPt.Lon, newPt.Lat, newPt.Lon)
		if dist >= relocationThresholdMeters {
			moved = append(moved, relocation{
				Type:     "event_relocated",
				EventID:  incoming[i].ID,
				RouteID:  incoming[i].RouteID,
				Distance: dist,
			})
		}
	}
	return moved
}
