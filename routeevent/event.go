// Package routeevent holds the immutable value types for route events: points
// of interest (rest stops, service areas) reported along a computed route.
// Values are assembled through builders or parsed from their JSON wire shape
// and never change after construction.
package routeevent

import (
	"encoding/json"
	"fmt"
)

// RouteEvent is a point of interest along a route. All four fields are
// optional; an absent field stays absent through a serialize/parse round
// trip.
type RouteEvent struct {
	id        *string
	address   *string
	eventType *int
	location  *RouteEventLocation
}

type eventJSON struct {
	ID       *string             `json:"_id,omitempty"`
	Address  *string             `json:"address,omitempty"`
	Type     *int                `json:"type,omitempty"`
	Location *RouteEventLocation `json:"location,omitempty"`
}

// ID returns the event identifier and whether it was set.
func (e *RouteEvent) ID() (string, bool) {
	if e.id == nil {
		return "", false
	}
	return *e.id, true
}

// Address returns the human-readable address and whether it was set.
func (e *RouteEvent) Address() (string, bool) {
	if e.address == nil {
		return "", false
	}
	return *e.address, true
}

// Type returns the numeric event type code and whether it was set.
func (e *RouteEvent) Type() (int, bool) {
	if e.eventType == nil {
		return 0, false
	}
	return *e.eventType, true
}

// Location returns the event location and whether it was set.
func (e *RouteEvent) Location() (*RouteEventLocation, bool) {
	return e.location, e.location != nil
}

// MarshalJSON serializes the event; absent fields are omitted.
func (e *RouteEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:       e.id,
		Address:  e.address,
		Type:     e.eventType,
		Location: e.location,
	})
}

// UnmarshalJSON parses an event. Fields missing from the JSON stay absent;
// type-incompatible fields fail the parse.
func (e *RouteEvent) UnmarshalJSON(data []byte) error {
	var wire eventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("routeevent: parse event: %w", err)
	}
	e.id = wire.ID
	e.address = wire.Address
	e.eventType = wire.Type
	e.location = wire.Location
	return nil
}

// ParseRouteEvent builds an event from its JSON representation.
func ParseRouteEvent(data []byte) (*RouteEvent, error) {
	var e RouteEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ToBuilder returns a builder pre-filled with this event's fields.
func (e *RouteEvent) ToBuilder() *RouteEventBuilder {
	return &RouteEventBuilder{
		id:        e.id,
		address:   e.address,
		eventType: e.eventType,
		location:  e.location,
	}
}

// RouteEventBuilder assembles an immutable RouteEvent.
type RouteEventBuilder struct {
	id        *string
	address   *string
	eventType *int
	location  *RouteEventLocation
}

// NewEventBuilder returns an empty event builder.
func NewEventBuilder() *RouteEventBuilder {
	return &RouteEventBuilder{}
}

// ID sets the event identifier.
func (b *RouteEventBuilder) ID(id string) *RouteEventBuilder {
	b.id = &id
	return b
}

// Address sets the human-readable address.
func (b *RouteEventBuilder) Address(addr string) *RouteEventBuilder {
	b.address = &addr
	return b
}

// Type sets the numeric event type code.
func (b *RouteEventBuilder) Type(t int) *RouteEventBuilder {
	b.eventType = &t
	return b
}

// Location sets the event location.
func (b *RouteEventBuilder) Location(l *RouteEventLocation) *RouteEventBuilder {
	b.location = l
	return b
}

// Build finalizes the event.
func (b *RouteEventBuilder) Build() *RouteEvent {
	return &RouteEvent{
		id:        b.id,
		address:   b.address,
		eventType: b.eventType,
		location:  b.location,
	}
}
