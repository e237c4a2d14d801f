package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/routepulse/routepulse/internal/core/domain"
)

// gqlEvent flattens a stored event for GraphQL field resolution. Optional
// upstream fields stay nil when absent.
type gqlEvent struct {
	ID           string   `json:"id"`
	RouteID      string   `json:"route_id"`
	Address      *string  `json:"address"`
	EventType    *int     `json:"event_type"`
	LocationType *string  `json:"location_type"`
	Lon          *float64 `json:"lon"`
	Lat          *float64 `json:"lat"`
	UpdatedAt    string   `json:"updated_at"`
	Distance     *float64 `json:"distance"`
}

func flattenEvent(ev *domain.StoredEvent) gqlEvent {
	out := gqlEvent{
		ID:        ev.ID,
		RouteID:   ev.RouteID,
		UpdatedAt: ev.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if a, ok := ev.Event.Address(); ok {
		out.Address = &a
	}
	if t, ok := ev.Event.Type(); ok {
		out.EventType = &t
	}
	if loc, ok := ev.Event.Location(); ok {
		if t, ok := loc.LocationType(); ok {
			out.LocationType = &t
		}
		if pt, err := loc.Point(); err == nil {
			out.Lon, out.Lat = &pt.Lon, &pt.Lat
		}
	}
	return out
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	eventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteEvent",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"route_id":      &graphql.Field{Type: graphql.String},
			"address":       &graphql.Field{Type: graphql.String},
			"event_type":    &graphql.Field{Type: graphql.Int},
			"location_type": &graphql.Field{Type: graphql.String},
			"lon":           &graphql.Field{Type: graphql.Float},
			"lat":           &graphql.Field{Type: graphql.Float},
			"updated_at":    &graphql.Field{Type: graphql.String},
			"distance":      &graphql.Field{Type: graphql.Float},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FeedStats",
		Fields: graphql.Fields{
			"routes":      &graphql.Field{Type: graphql.Int},
			"events":      &graphql.Field{Type: graphql.Int},
			"last_ingest": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"event": &graphql.Field{
				Type:        eventType,
				Description: "Get a route event by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					ev, err := deps.Events.GetByID(p.Context, id)
					if err != nil {
						return nil, err
					}
					return flattenEvent(ev), nil
				},
			},
			"routeEvents": &graphql.Field{
				Type:        graphql.NewList(eventType),
				Description: "List events reported along a route",
				Args: graphql.FieldConfigArgument{
					"route_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					routeID := p.Args["route_id"].(string)
					evs, err := deps.Events.ListByRoute(p.Context, routeID)
					if err != nil {
						return nil, err
					}
					out := make([]gqlEvent, 0, len(evs))
					for i := range evs {
						out = append(out, flattenEvent(&evs[i]))
					}
					return out, nil
				},
			},
			"eventsNearby": &graphql.Field{
				Type:        graphql.NewList(eventType),
				Description: "Find events near a location",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 500.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					radius := p.Args["radius"].(float64)
					limit := p.Args["limit"].(int)
					evs, err := deps.Events.FindNearby(p.Context, lat, lon, radius, limit)
					if err != nil {
						return nil, err
					}
					out := make([]gqlEvent, 0, len(evs))
					for i := range evs {
						flat := flattenEvent(&evs[i].StoredEvent)
						d := evs[i].Distance
						flat.Distance = &d
						out = append(out, flat)
					}
					return out, nil
				},
			},
			"feedStats": &graphql.Field{
				Type:        statsType,
				Description: "Counters describing what the ingestor has loaded",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Events.Stats(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
