package http

import (
	"github.com/nats-io/nats.go"

	"github.com/routepulse/routepulse/internal/adapters/postgres"
	"github.com/routepulse/routepulse/internal/adapters/valkey"
	"github.com/routepulse/routepulse/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Events *usecases.EventService
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  *valkey.Cache
}
