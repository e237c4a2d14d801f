package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/routepulse/routepulse/internal/core/domain"
	"github.com/routepulse/routepulse/routeevent"
)

// EventRepo implements ports.EventRepository with pgx.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

const upsertEventSQL = `
	INSERT INTO route_events (id, route_id, address, event_type, loc_type, location, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5,
	        CASE WHEN $6::float8 IS NULL THEN NULL
	             ELSE ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography END,
	        $8, $9)
	ON CONFLICT (id) DO UPDATE
	SET route_id = EXCLUDED.route_id,
	    address = EXCLUDED.address,
	    event_type = EXCLUDED.event_type,
	    loc_type = EXCLUDED.loc_type,
	    location = EXCLUDED.location,
	    updated_at = EXCLUDED.updated_at
`

// eventArgs flattens a stored event into the upsert parameter list.
func eventArgs(ev *domain.StoredEvent) []any {
	var address *string
	if a, ok := ev.Event.Address(); ok {
		address = &a
	}
	var eventType *int
	if t, ok := ev.Event.Type(); ok {
		eventType = &t
	}
	var locType *string
	var lon, lat *float64
	if loc, ok := ev.Event.Location(); ok {
		if t, ok := loc.LocationType(); ok {
			locType = &t
		}
		if pt, err := loc.Point(); err == nil {
			lon, lat = &pt.Lon, &pt.Lat
		}
	}
	return []any{ev.ID, ev.RouteID, address, eventType, locType, lon, lat, ev.CreatedAt, ev.UpdatedAt}
}

// Upsert inserts or updates a single event.
func (r *EventRepo) Upsert(ctx context.Context, ev *domain.StoredEvent) error {
	_, err := r.db.Pool.Exec(ctx, upsertEventSQL, eventArgs(ev)...)
	return err
}

// UpsertBatch inserts many events using pgx.Batch.
func (r *EventRepo) UpsertBatch(ctx context.Context, evs []domain.StoredEvent) error {
	batch := &pgx.Batch{}
	for i := range evs {
		batch.Queue(upsertEventSQL, eventArgs(&evs[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range evs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

const selectEventColumns = `
	id, route_id, address, event_type, loc_type,
	ST_X(location::geometry) as lon,
	ST_Y(location::geometry) as lat,
	created_at, updated_at
`

// scanEvent rebuilds a stored event from one row; extra columns (e.g. the
// nearby distance) are appended to dest before the call.
func scanEvent(row pgx.Row, extra ...any) (*domain.StoredEvent, error) {
	var (
		ev        domain.StoredEvent
		address   *string
		eventType *int
		locType   *string
		lon, lat  *float64
	)
	dest := []any{&ev.ID, &ev.RouteID, &address, &eventType, &locType, &lon, &lat, &ev.CreatedAt, &ev.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	b := routeevent.NewEventBuilder().ID(ev.ID)
	if address != nil {
		b.Address(*address)
	}
	if eventType != nil {
		b.Type(*eventType)
	}
	if locType != nil || lon != nil {
		lb := routeevent.NewLocationBuilder()
		if locType != nil {
			lb.Type(*locType)
		}
		if lon != nil && lat != nil {
			lb.Coordinates(*lon, *lat)
		}
		b.Location(lb.Build())
	}
	ev.Event = *b.Build()
	return &ev, nil
}

// GetByID returns an event by its upstream id, or domain.ErrEventNotFound
// when no row matches.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*domain.StoredEvent, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+selectEventColumns+`
		FROM route_events WHERE id = $1
	`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return ev, err
}

// ListByRoute returns all events of a route, stable-ordered by id.
func (r *EventRepo) ListByRoute(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+selectEventColumns+`
		FROM route_events WHERE route_id = $1
		ORDER BY id
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []domain.StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		evs = append(evs, *ev)
	}
	return evs, rows.Err()
}

// FindNearby returns events within radiusMeters using PostGIS ST_DWithin,
// closest first.
func (r *EventRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.NearbyEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+selectEventColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM route_events
		WHERE location IS NOT NULL
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []domain.NearbyEvent
	for rows.Next() {
		var dist float64
		ev, err := scanEvent(rows, &dist)
		if err != nil {
			return nil, err
		}
		evs = append(evs, domain.NearbyEvent{StoredEvent: *ev, Distance: dist})
	}
	return evs, rows.Err()
}

// Stats returns feed-level counters.
func (r *EventRepo) Stats(ctx context.Context) (*domain.FeedStats, error) {
	var stats domain.FeedStats
	row := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT count(DISTINCT route_id) FROM route_events),
			(SELECT count(*) FROM route_events),
			COALESCE((SELECT max(updated_at)::text FROM route_events), '')
	`)
	if err := row.Scan(&stats.Routes, &stats.Events, &stats.LastIngest); err != nil {
		return nil, err
	}
	return &stats, nil
}
