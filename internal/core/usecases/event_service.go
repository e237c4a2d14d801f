package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/routepulse/routepulse/internal/core/domain"
	"github.com/routepulse/routepulse/internal/core/ports"
)

// EventService handles read-side route-event logic.
type EventService struct {
	events ports.EventRepository
	cache  ports.CacheService
}

// NewEventService creates a new EventService.
func NewEventService(events ports.EventRepository, cache ports.CacheService) *EventService {
	return &EventService{events: events, cache: cache}
}

// ListByRoute returns all stored events of a route.
func (s *EventService) ListByRoute(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
	if routeID == "" {
		return nil, fmt.Errorf("route id must not be empty")
	}

	cacheKey := "events:route:" + routeID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var evs []domain.StoredEvent
			if err := json.Unmarshal(data, &evs); err == nil {
				return evs, nil
			}
		}
	}

	evs, err := s.events.ListByRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	// Events along a route change only when the ingestor runs
	if s.cache != nil {
		if data, err := json.Marshal(evs); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return evs, nil
}

// GetByID returns a single stored event.
func (s *EventService) GetByID(ctx context.Context, id string) (*domain.StoredEvent, error) {
	cacheKey := "events:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var ev domain.StoredEvent
			if err := json.Unmarshal(data, &ev); err == nil {
				return &ev, nil
			}
		}
	}

	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(ev); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}

	return ev, nil
}

// FindNearby returns events within radiusMeters of the given point.
func (s *EventService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.NearbyEvent, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("events:nearby:%.4f:%.4f:%.0f:%d", lat, lon, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var evs []domain.NearbyEvent
			if err := json.Unmarshal(data, &evs); err == nil {
				return evs, nil
			}
		}
	}

	evs, err := s.events.FindNearby(ctx, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(evs); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return evs, nil
}

// Stats returns feed-level counters.
func (s *EventService) Stats(ctx context.Context) (*domain.FeedStats, error) {
	return s.events.Stats(ctx)
}
