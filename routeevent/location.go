package routeevent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoCoordinates is returned by Point when a location was built or parsed
// without its coordinate pair.
var ErrNoCoordinates = errors.New("routeevent: location has no coordinate pair")

// RouteEventLocation describes where along the route an event sits: an
// optional type tag (e.g. "rest_area" or "service_area") and a raw
// [longitude, latitude] pair. Instances are immutable; use
// NewLocationBuilder or ParseRouteEventLocation to obtain one.
type RouteEventLocation struct {
	locType *string
	coords  []float64 // [lon, lat]; nil when never set
}

type locationJSON struct {
	Type        *string   `json:"type,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"`
}

// LocationType returns the type tag and whether it was set.
func (l *RouteEventLocation) LocationType() (string, bool) {
	if l.locType == nil {
		return "", false
	}
	return *l.locType, true
}

// Point derives the structured geographic point from the raw coordinate pair.
// It is computed on every call, never cached. Returns ErrNoCoordinates when
// the pair was never set.
func (l *RouteEventLocation) Point() (Point, error) {
	if l.coords == nil {
		return Point{}, ErrNoCoordinates
	}
	return Point{Lon: l.coords[0], Lat: l.coords[1]}, nil
}

// RawCoordinates returns a copy of the raw [longitude, latitude] pair, or nil
// when it was never set.
func (l *RouteEventLocation) RawCoordinates() []float64 {
	if l.coords == nil {
		return nil
	}
	out := make([]float64, 2)
	copy(out, l.coords)
	return out
}

// MarshalJSON serializes the location; absent fields are omitted.
func (l *RouteEventLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{Type: l.locType, Coordinates: l.coords})
}

// UnmarshalJSON parses a location. A present coordinates array must have
// exactly two elements; a missing one leaves the pair unset.
func (l *RouteEventLocation) UnmarshalJSON(data []byte) error {
	var wire locationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("routeevent: parse location: %w", err)
	}
	if wire.Coordinates != nil && len(wire.Coordinates) != 2 {
		return fmt.Errorf("routeevent: coordinates must have exactly 2 elements, got %d", len(wire.Coordinates))
	}
	l.locType = wire.Type
	l.coords = wire.Coordinates
	return nil
}

// ParseRouteEventLocation builds a location from its JSON representation.
func ParseRouteEventLocation(data []byte) (*RouteEventLocation, error) {
	var l RouteEventLocation
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ToBuilder returns a builder pre-filled with this location's fields.
func (l *RouteEventLocation) ToBuilder() *RouteEventLocationBuilder {
	b := NewLocationBuilder()
	b.locType = l.locType
	if l.coords != nil {
		b.coords = []float64{l.coords[0], l.coords[1]}
	}
	return b
}

// RouteEventLocationBuilder assembles an immutable RouteEventLocation.
type RouteEventLocationBuilder struct {
	locType *string
	coords  []float64
}

// NewLocationBuilder returns an empty location builder.
func NewLocationBuilder() *RouteEventLocationBuilder {
	return &RouteEventLocationBuilder{}
}

// Type sets the location type tag.
func (b *RouteEventLocationBuilder) Type(t string) *RouteEventLocationBuilder {
	b.locType = &t
	return b
}

// Coordinates sets the raw pair, longitude first.
func (b *RouteEventLocationBuilder) Coordinates(lon, lat float64) *RouteEventLocationBuilder {
	b.coords = []float64{lon, lat}
	return b
}

// Build finalizes the location. The builder keeps no reference to the
// returned value's coordinate slice.
func (b *RouteEventLocationBuilder) Build() *RouteEventLocation {
	l := &RouteEventLocation{locType: b.locType}
	if b.coords != nil {
		l.coords = []float64{b.coords[0], b.coords[1]}
	}
	return l
}
