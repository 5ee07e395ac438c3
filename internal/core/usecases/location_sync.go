package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/pkg/telemetry"
)

// LocationSync keeps the map's location list equal to the bins table.
type LocationSync struct {
	bins ports.BinRepository
	sink ports.LocationSink
	log  *slog.Logger
}

// NewLocationSync creates a new LocationSync.
func NewLocationSync(bins ports.BinRepository, sink ports.LocationSink) *LocationSync {
	return &LocationSync{
		bins: bins,
		sink: sink,
		log:  slog.Default().With("component", "location_sync"),
	}
}

// Refresh reloads every bin and hands the list to the map. Reloading the
// whole list keeps ordering stable and makes duplicate events harmless.
func (s *LocationSync) Refresh(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanBinsList)
	defer span.End()

	locs, err := s.bins.List(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("list bins: %w", err)
	}
	return s.sink.SetLocations(ctx, locs)
}

// Run loads the initial list and then follows bin events from sub until
// ctx is done. sub may be nil, in which case only the initial load happens.
func (s *LocationSync) Run(ctx context.Context, sub ports.BinEventSubscriber) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	return sub.SubscribeBinEvents(ctx, func(ctx context.Context, ev *domain.BinEvent) error {
		s.log.Debug("bin event", "kind", ev.Kind, "id", ev.Location.ID)
		return s.Refresh(ctx)
	})
}
