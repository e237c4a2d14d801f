package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/routepulse/routepulse/client"
	"github.com/routepulse/routepulse/routeevent"
)

const eventsFixture = `[
	{"_id": "ev-1", "address": "A-8 km 120", "type": 1,
	 "location": {"type": "service_area", "coordinates": [-2.935, 43.263]}},
	{"_id": "ev-2", "type": 2}
]`

func TestEvents_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/routes/route-7/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("unexpected Accept header %q", accept)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	events, err := client.NewEvents(srv.URL, "route-7")
	if err != nil {
		t.Fatalf("new events: %v", err)
	}

	resp, err := events.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(resp.Body) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Body))
	}

	first := resp.Body[0]
	if id, _ := first.ID(); id != "ev-1" {
		t.Errorf("expected ev-1, got %q", id)
	}
	loc, ok := first.Location()
	if !ok {
		t.Fatal("expected first event to carry a location")
	}
	pt, err := loc.Point()
	if err != nil {
		t.Fatalf("point: %v", err)
	}
	if pt.Lon != -2.935 || pt.Lat != 43.263 {
		t.Errorf("unexpected point: %+v", pt)
	}

	if _, ok := resp.Body[1].Location(); ok {
		t.Error("second event must have no location")
	}
}

func TestNewEvents_Validation(t *testing.T) {
	if _, err := client.NewEvents("", "route-7"); !errors.Is(err, client.ErrMissingBaseURL) {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := client.NewEvents("http://example.com", ""); !errors.Is(err, client.ErrMissingRouteID) {
		t.Errorf("expected ErrMissingRouteID, got %v", err)
	}
}

func TestEvents_Enqueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(eventsFixture))
	}))
	defer srv.Close()

	events, err := client.NewEvents(srv.URL, "route-7")
	if err != nil {
		t.Fatalf("new events: %v", err)
	}

	got := make(chan []routeevent.RouteEvent, 1)
	err = events.Enqueue(context.Background(), client.Callback[[]routeevent.RouteEvent]{
		OnResponse: func(r *client.Response[[]routeevent.RouteEvent]) { got <- r.Body },
		OnFailure:  func(err error) { t.Errorf("unexpected failure: %v", err) },
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case body := <-got:
		if len(body) != 2 {
			t.Errorf("expected 2 events, got %d", len(body))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestEvents_CloneRetriesAfterCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	events, err := client.NewEvents(srv.URL, "route-7")
	if err != nil {
		t.Fatalf("new events: %v", err)
	}

	clone, err := events.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	events.Cancel()

	if _, err := clone.Execute(context.Background()); err != nil {
		t.Errorf("clone must execute after original cancel: %v", err)
	}
}

func TestEvents_TransportSubstitution(t *testing.T) {
	doer := &recordingDoer{}

	events, err := client.NewEvents("http://upstream.invalid", "route-7")
	if err != nil {
		t.Fatalf("new events: %v", err)
	}
	events.SetTransport(doer)

	if _, err := events.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if doer.calls != 1 {
		t.Errorf("expected the substituted transport to be used, got %d calls", doer.calls)
	}
}
