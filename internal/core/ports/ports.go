package ports

import (
	"context"

	"github.com/routepulse/routepulse/internal/core/domain"
)

// EventRepository persists route events.
type EventRepository interface {
	Upsert(ctx context.Context, ev *domain.StoredEvent) error
	UpsertBatch(ctx context.Context, evs []domain.StoredEvent) error
	GetByID(ctx context.Context, id string) (*domain.StoredEvent, error)
	ListByRoute(ctx context.Context, routeID string) ([]domain.StoredEvent, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.NearbyEvent, error)
	Stats(ctx context.Context) (*domain.FeedStats, error)
}

// EventPublisher publishes route-event updates to a message broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *domain.StoredEvent) error
	PublishBroadcast(ctx context.Context, data []byte) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
