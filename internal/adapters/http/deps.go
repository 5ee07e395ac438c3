package http

import (
	"context"
	"time"

	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/core/usecases"
	"github.com/samirrijal/wastemap/internal/mapbridge"
	"github.com/samirrijal/wastemap/internal/surface"
)

// Pinger is a dependency that can report its own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerStatus reports whether the message broker connection is up.
type BrokerStatus interface {
	IsConnected() bool
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Bridge   *mapbridge.Bridge
	Alerts   *mapbridge.AlertBoard
	Bins     *usecases.BinService
	Geocoder ports.Geocoder
	Page     surface.PageConfig

	// PingInterval is the keep-alive period on surface websockets.
	PingInterval time.Duration

	NATS  BrokerStatus
	DB    Pinger
	Cache Pinger
}
