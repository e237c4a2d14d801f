package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/routepulse/routepulse/internal/adapters/http"
	"github.com/routepulse/routepulse/internal/core/domain"
	"github.com/routepulse/routepulse/internal/core/usecases"
	"github.com/routepulse/routepulse/routeevent"
)

// ---- Mock repository ----

type mockEventRepo struct {
	getByIDFn     func(ctx context.Context, id string) (*domain.StoredEvent, error)
	listByRouteFn func(ctx context.Context, routeID string) ([]domain.StoredEvent, error)
	findNearbyFn  func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.NearbyEvent, error)
	statsFn       func(ctx context.Context) (*domain.FeedStats, error)
}

func (m *mockEventRepo) Upsert(ctx context.Context, ev *domain.StoredEvent) error      { return nil }
func (m *mockEventRepo) UpsertBatch(ctx context.Context, evs []domain.StoredEvent) error { return nil }
func (m *mockEventRepo) GetByID(ctx context.Context, id string) (*domain.StoredEvent, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, errors.New("not found")
}
func (m *mockEventRepo) ListByRoute(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
	if m.listByRouteFn != nil {
		return m.listByRouteFn(ctx, routeID)
	}
	return nil, nil
}
func (m *mockEventRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.NearbyEvent, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lon, radius, limit)
	}
	return nil, nil
}
func (m *mockEventRepo) Stats(ctx context.Context) (*domain.FeedStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &domain.FeedStats{}, nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(repo *mockEventRepo) *handler.Dependencies {
	return &handler.Dependencies{
		Events: usecases.NewEventService(repo, nil),
	}
}

func storedEvent(id, routeID, address string) domain.StoredEvent {
	ev := routeevent.NewEventBuilder().
		ID(id).
		Address(address).
		Type(1).
		Location(routeevent.NewLocationBuilder().Type("Point").Coordinates(-2.935, 43.263).Build()).
		Build()
	return domain.StoredEvent{
		ID:        id,
		RouteID:   routeID,
		Event:     *ev,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

// ---- Route events ----

func TestListRouteEvents_Success(t *testing.T) {
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			if routeID != "bus-27" {
				t.Errorf("expected bus-27, got %s", routeID)
			}
			return []domain.StoredEvent{
				storedEvent("ev-1", routeID, "Gran Via 1"),
				storedEvent("ev-2", routeID, "Gran Via 2"),
			}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/routes/bus-27/events", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The body is a bare array in the upstream wire format
	var events []routeevent.RouteEvent
	if err := json.Unmarshal(readBody(t, resp.Body), &events); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if id, _ := events[0].ID(); id != "ev-1" {
		t.Errorf("expected ev-1, got %s", id)
	}
	loc, ok := events[0].Location()
	if !ok {
		t.Fatal("expected location to survive the wire")
	}
	pt, err := loc.Point()
	if err != nil {
		t.Fatalf("point: %v", err)
	}
	if pt.Lat != 43.263 {
		t.Errorf("expected lat 43.263, got %f", pt.Lat)
	}

	if got := resp.Header.Get("X-Total-Count"); got != "2" {
		t.Errorf("expected X-Total-Count 2, got %q", got)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="first"`) {
		t.Errorf("expected Link header with rel=first, got %q", link)
	}
}

func TestListRouteEvents_Pagination(t *testing.T) {
	var all []domain.StoredEvent
	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		all = append(all, storedEvent(id, "bus-27", "somewhere"))
	}
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			return all, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/routes/bus-27/events?offset=1&limit=1", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	var events []routeevent.RouteEvent
	if err := json.Unmarshal(readBody(t, resp.Body), &events); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if id, _ := events[0].ID(); id != "ev-2" {
		t.Errorf("expected ev-2, got %s", id)
	}

	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected next and prev links, got %q", link)
	}
}

func TestListRouteEvents_RepoError(t *testing.T) {
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			return nil, errors.New("db down")
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/routes/bus-27/events", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	var apiErr handler.APIError
	if err := json.Unmarshal(readBody(t, resp.Body), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "internal_error" {
		t.Errorf("expected internal_error, got %s", apiErr.Code)
	}
}

func TestIncidentsAlias_DeprecationHeaders(t *testing.T) {
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			return []domain.StoredEvent{storedEvent("ev-1", routeID, "x")}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/routes/bus-27/incidents", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header on incidents alias")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header on incidents alias")
	}
}

// ---- Single event ----

func TestGetEvent_Success(t *testing.T) {
	repo := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.StoredEvent, error) {
			ev := storedEvent(id, "bus-27", "Gran Via 1")
			return &ev, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/events/ev-42", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		ID      string          `json:"id"`
		RouteID string          `json:"route_id"`
		Event   json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.ID != "ev-42" || result.RouteID != "bus-27" {
		t.Errorf("unexpected result: %+v", result)
	}

	ev, err := routeevent.ParseRouteEvent(result.Event)
	if err != nil {
		t.Fatalf("embedded event should be wire-format: %v", err)
	}
	if addr, _ := ev.Address(); addr != "Gran Via 1" {
		t.Errorf("expected address, got %q", addr)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	repo := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.StoredEvent, error) {
			return nil, domain.ErrEventNotFound
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/events/nope", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetEvent_BackendFailure(t *testing.T) {
	repo := &mockEventRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.StoredEvent, error) {
			return nil, errors.New("connection refused")
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/events/ev-1", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500 for a failing backend, got %d", resp.StatusCode)
	}

	var apiErr handler.APIError
	if err := json.Unmarshal(readBody(t, resp.Body), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "internal_error" {
		t.Errorf("expected internal_error, got %s", apiErr.Code)
	}
}

// ---- Nearby ----

func TestNearbyEvents_Success(t *testing.T) {
	repo := &mockEventRepo{
		findNearbyFn: func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.NearbyEvent, error) {
			if lat != 43.263 || lon != -2.935 {
				t.Errorf("unexpected point: %f %f", lat, lon)
			}
			return []domain.NearbyEvent{
				{StoredEvent: storedEvent("ev-1", "bus-27", "close"), Distance: 12.5},
			}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/events/nearby?lat=43.263&lon=-2.935&radius=500", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var events []domain.NearbyEvent
	if err := json.Unmarshal(readBody(t, resp.Body), &events); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(events) != 1 || events[0].Distance != 12.5 {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestNearbyEvents_MissingCoordinates(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	req := httptest.NewRequest("GET", "/v1/events/nearby?radius=500", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNearbyEvents_EquatorAndMeridian(t *testing.T) {
	var gotLat, gotLon float64
	repo := &mockEventRepo{
		findNearbyFn: func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.NearbyEvent, error) {
			gotLat, gotLon = lat, lon
			return []domain.NearbyEvent{}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	// lat=0 is the equator, not a missing parameter
	req := httptest.NewRequest("GET", "/v1/events/nearby?lat=0&lon=6.73&radius=500", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for equator query, got %d", resp.StatusCode)
	}
	if gotLat != 0 || gotLon != 6.73 {
		t.Errorf("unexpected point passed to repo: %f %f", gotLat, gotLon)
	}

	// lon=0 is the prime meridian
	req = httptest.NewRequest("GET", "/v1/events/nearby?lat=51.477&lon=0&radius=500", nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for prime meridian query, got %d", resp.StatusCode)
	}
	if gotLat != 51.477 || gotLon != 0 {
		t.Errorf("unexpected point passed to repo: %f %f", gotLat, gotLon)
	}
}

func TestNearbyEvents_CoordinatesOutOfRange(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	for _, query := range []string{
		"lat=91&lon=0",
		"lat=-90.5&lon=0",
		"lat=0&lon=181",
		"lat=0&lon=-180.5",
		"lat=abc&lon=0",
	} {
		req := httptest.NewRequest("GET", "/v1/events/nearby?"+query+"&radius=500", nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("query %q: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func TestNearbyEvents_RadiusTooLarge(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	req := httptest.NewRequest("GET", "/v1/events/nearby?lat=43.2&lon=-2.9&radius=99999", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Feed stats ----

func TestFeedStats(t *testing.T) {
	repo := &mockEventRepo{
		statsFn: func(ctx context.Context) (*domain.FeedStats, error) {
			return &domain.FeedStats{Routes: 4, Events: 120, LastIngest: "2026-08-25 10:00:00"}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/feeds/status", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stats domain.FeedStats
	if err := json.Unmarshal(readBody(t, resp.Body), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Routes != 4 || stats.Events != 120 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("expected feed stats cache header, got %q", cc)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReady_NoDatabase(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 without database, got %d", resp.StatusCode)
	}
}

// ---- Middleware behaviour ----

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(&mockEventRepo{}))

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := resp.Header.Get("X-API-Version"); got == "" {
		t.Error("expected X-API-Version header")
	}
}

func TestETag_NotModified(t *testing.T) {
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			return []domain.StoredEvent{storedEvent("ev-1", routeID, "stable")}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	req := httptest.NewRequest("GET", "/v1/routes/bus-27/events", nil)
	first, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on first response")
	}

	req2 := httptest.NewRequest("GET", "/v1/routes/bus-27/events", nil)
	req2.Header.Set("If-None-Match", etag)
	second, err := app.Test(req2, -1)
	if err != nil {
		t.Fatal(err)
	}
	if second.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", second.StatusCode)
	}
}

// ---- GraphQL ----

func TestGraphQL_RouteEvents(t *testing.T) {
	repo := &mockEventRepo{
		listByRouteFn: func(ctx context.Context, routeID string) ([]domain.StoredEvent, error) {
			return []domain.StoredEvent{storedEvent("ev-1", routeID, "Gran Via 1")}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	body := strings.NewReader(`{"query":"{ routeEvents(route_id: \"bus-27\") { id address lat lon } }"}`)
	req := httptest.NewRequest("POST", "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			RouteEvents []struct {
				ID      string   `json:"id"`
				Address *string  `json:"address"`
				Lat     *float64 `json:"lat"`
				Lon     *float64 `json:"lon"`
			} `json:"routeEvents"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if len(result.Data.RouteEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Data.RouteEvents))
	}
	ev := result.Data.RouteEvents[0]
	if ev.ID != "ev-1" || ev.Address == nil || *ev.Address != "Gran Via 1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Lat == nil || *ev.Lat != 43.263 {
		t.Errorf("expected lat 43.263, got %v", ev.Lat)
	}
}

func TestGraphQL_FeedStats(t *testing.T) {
	repo := &mockEventRepo{
		statsFn: func(ctx context.Context) (*domain.FeedStats, error) {
			return &domain.FeedStats{Routes: 2, Events: 10}, nil
		},
	}
	app := setupApp(makeDeps(repo))

	body := strings.NewReader(`{"query":"{ feedStats { routes events } }"}`)
	req := httptest.NewRequest("POST", "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	var result struct {
		Data struct {
			FeedStats struct {
				Routes int `json:"routes"`
				Events int `json:"events"`
			} `json:"feedStats"`
		} `json:"data"`
	}
	if err := json.Unmarshal(readBody(t, resp.Body), &result); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if result.Data.FeedStats.Routes != 2 || result.Data.FeedStats.Events != 10 {
		t.Errorf("unexpected stats: %+v", result.Data.FeedStats)
	}
}
