package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/pkg/geospatial"
)

var (
	// ErrNoCoordinates means a bin was submitted before a point was picked.
	ErrNoCoordinates = errors.New("no coordinates picked")
	ErrInvalidBin    = errors.New("invalid bin")
)

// Refresher is told when the bin list has changed locally.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CreateBin is the add-bin form. Coordinates may be left nil to use the
// point most recently picked on the map.
type CreateBin struct {
	Label       string           `json:"label"`
	Status      domain.BinStatus `json:"status"`
	Coordinates *domain.GeoPoint `json:"coordinates,omitempty"`
}

// NearbyBin is a bin with its distance from a query point.
type NearbyBin struct {
	domain.TrashLocation
	Distance float64 `json:"distance"` // meters
}

// BinService handles collection-point business logic.
type BinService struct {
	bins   ports.BinRepository
	events ports.BinEventPublisher
	now    func() time.Time

	mu        sync.Mutex
	refresher Refresher
	draft     *domain.GeoPoint
}

// NewBinService creates a new BinService. events may be nil.
func NewBinService(bins ports.BinRepository, events ports.BinEventPublisher) *BinService {
	return &BinService{bins: bins, events: events, now: time.Now}
}

// SetRefresher registers who to tell after a local change.
func (s *BinService) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

// List returns every bin.
func (s *BinService) List(ctx context.Context) ([]domain.TrashLocation, error) {
	return s.bins.List(ctx)
}

// Get returns one bin.
func (s *BinService) Get(ctx context.Context, id string) (*domain.TrashLocation, error) {
	return s.bins.GetByID(ctx, id)
}

// SetDraftPoint stores the coordinates chosen in the location picker.
func (s *BinService) SetDraftPoint(p domain.GeoPoint) {
	s.mu.Lock()
	s.draft = &p
	s.mu.Unlock()
}

// DraftPoint returns the picked coordinates, if any.
func (s *BinService) DraftPoint() (domain.GeoPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.GeoPoint{}, false
	}
	return *s.draft, true
}

// Create validates and stores a new bin, then announces it.
// The draft point is consumed only when the bin was stored.
func (s *BinService) Create(ctx context.Context, in CreateBin) (*domain.TrashLocation, error) {
	loc := domain.TrashLocation{Label: strings.TrimSpace(in.Label), Status: in.Status}
	if loc.Status == "" {
		loc.Status = domain.BinEmpty
	}

	usedDraft := false
	switch {
	case in.Coordinates != nil:
		loc.Coordinates = *in.Coordinates
	default:
		p, ok := s.DraftPoint()
		if !ok {
			return nil, ErrNoCoordinates
		}
		loc.Coordinates = p
		usedDraft = true
	}

	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBin, err)
	}
	if err := s.bins.Create(ctx, &loc); err != nil {
		return nil, err
	}

	if usedDraft {
		s.mu.Lock()
		s.draft = nil
		s.mu.Unlock()
	}

	s.changed(ctx, "created", loc)
	return &loc, nil
}

// SetStatus marks a bin empty or full.
func (s *BinService) SetStatus(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error) {
	if status != domain.BinEmpty && status != domain.BinFull {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBin, domain.ErrInvalidStatus)
	}
	loc, err := s.bins.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, "updated", *loc)
	return loc, nil
}

// Nearby returns bins within radiusMeters of center, nearest first.
func (s *BinService) Nearby(ctx context.Context, center domain.GeoPoint, radiusMeters float64, limit int) ([]NearbyBin, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(center.Lat, center.Lon, radiusMeters)
	candidates, err := s.bins.FindInBounds(ctx, domain.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon})
	if err != nil {
		return nil, err
	}

	// The box is a superset of the circle.
	var out []NearbyBin
	for _, c := range candidates {
		d := geospatial.Haversine(center.Lat, center.Lon, c.Coordinates.Lat, c.Coordinates.Lon)
		if d <= radiusMeters {
			out = append(out, NearbyBin{TrashLocation: c, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// changed publishes the event and refreshes the local map. Both are best
// effort: the row is already committed.
func (s *BinService) changed(ctx context.Context, kind string, loc domain.TrashLocation) {
	if s.events != nil {
		ev := &domain.BinEvent{Kind: kind, Location: loc, Time: s.now()}
		if err := s.events.PublishBinEvent(ctx, ev); err != nil {
			slog.Warn("publish bin event failed", "kind", kind, "id", loc.ID, "error", err)
		}
	}

	s.mu.Lock()
	r := s.refresher
	s.mu.Unlock()
	if r != nil {
		if err := r.Refresh(ctx); err != nil {
			slog.Warn("refresh map locations failed", "error", err)
		}
	}
}
