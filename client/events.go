package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/routepulse/routepulse/routeevent"
)

// ErrMissingRouteID reports an Events client built without a route.
var ErrMissingRouteID = errors.New("client: route id is required")

// Events fetches the route events of one route from a RoutePulse-compatible
// API (GET {base}/v1/routes/{id}/events). One instance wraps one call; clone
// it to re-fetch.
type Events struct {
	baseURL string
	routeID string

	svc *Service[[]routeevent.RouteEvent]
}

// NewEvents builds an Events client for the given API base URL and route.
func NewEvents(baseURL, routeID string) (*Events, error) {
	if routeID == "" {
		return nil, ErrMissingRouteID
	}
	e := &Events{baseURL: baseURL, routeID: routeID}
	svc, err := New[[]routeevent.RouteEvent](e)
	if err != nil {
		return nil, err
	}
	e.svc = svc
	return e, nil
}

// BaseURL implements Endpoint.
func (e *Events) BaseURL() string {
	return e.baseURL
}

// NewCall implements Endpoint: it prepares the single GET request for this
// route's events.
func (e *Events) NewCall(s *Service[[]routeevent.RouteEvent]) (*Call[[]routeevent.RouteEvent], error) {
	u := fmt.Sprintf("%s/v1/routes/%s/events",
		strings.TrimSuffix(e.baseURL, "/"), url.PathEscape(e.routeID))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return NewCall[[]routeevent.RouteEvent](s.Client(), req), nil
}

// Execute fetches the events synchronously.
func (e *Events) Execute(ctx context.Context) (*Response[[]routeevent.RouteEvent], error) {
	return e.svc.Execute(ctx)
}

// Enqueue fetches the events asynchronously.
func (e *Events) Enqueue(ctx context.Context, cb Callback[[]routeevent.RouteEvent]) error {
	return e.svc.Enqueue(ctx, cb)
}

// Cancel requests cancellation of the in-flight or pending fetch.
func (e *Events) Cancel() {
	e.svc.Cancel()
}

// Clone returns a fresh call handle for retrying after a cancel or failure.
func (e *Events) Clone() (*Call[[]routeevent.RouteEvent], error) {
	return e.svc.Clone()
}

// EnableDebug toggles verbose transport logging.
func (e *Events) EnableDebug(enable bool) {
	e.svc.EnableDebug(enable)
}

// SetTransport substitutes the HTTP transport, e.g. for tests.
func (e *Events) SetTransport(d Doer) {
	e.svc.SetTransport(d)
}
