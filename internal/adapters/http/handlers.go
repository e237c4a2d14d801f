package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/routepulse/routepulse/internal/core/domain"
	"github.com/routepulse/routepulse/routeevent"
)

// ListRouteEventsHandler returns the events reported along a route.
// The body is a bare JSON array in the upstream wire format so API consumers
// can decode it with the routeevent package; pagination travels in Link and
// X-Total-Count headers instead of a wrapper object.
func ListRouteEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		routeID := c.Params("id")
		if routeID == "" {
			return errBadRequest(c, "route id is required")
		}

		stored, err := deps.Events.ListByRoute(c.Context(), routeID)
		if err != nil {
			return errInternal(c, err.Error())
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		total := len(stored)
		if offset >= total {
			stored = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			stored = stored[offset:end]
		}

		events := make([]routeevent.RouteEvent, 0, len(stored))
		for _, ev := range stored {
			events = append(events, ev.Event)
		}

		SetLinkHeaders(c, Pagination{Offset: offset, Limit: limit, Total: total})
		c.Set("X-Total-Count", strconv.Itoa(total))
		return c.JSON(events)
	}
}

// GetEventHandler returns a single stored event with its platform metadata.
func GetEventHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "event id is required")
		}
		ev, err := deps.Events.GetByID(c.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrEventNotFound) {
				return errNotFound(c, "event not found")
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(ev)
	}
}

// NearbyEventsHandler returns events within a radius of a point.
// lat=0 and lon=0 are valid coordinates, so presence is checked on the raw
// query string rather than the parsed value.
func NearbyEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		latStr, lonStr := c.Query("lat"), c.Query("lon")
		if latStr == "" || lonStr == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil || lat < -90 || lat > 90 {
			return errBadRequest(c, "lat must be a number between -90 and 90")
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil || lon < -180 || lon > 180 {
			return errBadRequest(c, "lon must be a number between -180 and 180")
		}

		radius := c.QueryFloat("radius", 500)
		limit := c.QueryInt("limit", 20)
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}

		events, err := deps.Events.FindNearby(c.Context(), lat, lon, radius, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(events)
	}
}

// FeedStatsHandler returns counters describing what the ingestor has loaded.
func FeedStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := deps.Events.Stats(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
