package ports

import (
	"context"
	"time"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// BinEventPublisher publishes collection-point changes to a message broker.
type BinEventPublisher interface {
	PublishBinEvent(ctx context.Context, event *domain.BinEvent) error
}

// BinEventSubscriber delivers collection-point changes from a message broker.
type BinEventSubscriber interface {
	SubscribeBinEvents(ctx context.Context, handler func(ctx context.Context, event *domain.BinEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Geocoder resolves free text to candidate coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
}

// Accuracy is the requested precision of a position stream.
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHigh
)

// WatchOptions configures a continuous position subscription.
type WatchOptions struct {
	Accuracy    Accuracy
	MinInterval time.Duration
	MinDistance float64 // meters
}

// Subscription is a handle to a running position stream.
type Subscription interface {
	Remove()
}

// LocationProvider is the device location service.
type LocationProvider interface {
	ServicesEnabled(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (bool, error)
	WatchPosition(ctx context.Context, opts WatchOptions, onFix func(domain.PositionFix), onErr func(error)) (Subscription, error)
}

// Notifier surfaces user-facing alerts and prompts. Implementations must not block.
type Notifier interface {
	Show(alert domain.Alert)
	Dismiss(kind domain.AlertKind)
}

// LocationSink receives the full list of collection points to display.
type LocationSink interface {
	SetLocations(ctx context.Context, locs []domain.TrashLocation) error
}
