package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/usecases"
)

// --- Mock BinRepository ---

type mockBinRepo struct {
	listFn         func(ctx context.Context) ([]domain.TrashLocation, error)
	getByIDFn      func(ctx context.Context, id string) (*domain.TrashLocation, error)
	createFn       func(ctx context.Context, loc *domain.TrashLocation) error
	updateStatusFn func(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error)
	findInBoundsFn func(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error)
}

func (m *mockBinRepo) List(ctx context.Context) ([]domain.TrashLocation, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockBinRepo) GetByID(ctx context.Context, id string) (*domain.TrashLocation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockBinRepo) Create(ctx context.Context, loc *domain.TrashLocation) error {
	if m.createFn != nil {
		return m.createFn(ctx, loc)
	}
	loc.ID = "generated"
	return nil
}

func (m *mockBinRepo) UpdateStatus(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return &domain.TrashLocation{ID: id, Status: status}, nil
}

func (m *mockBinRepo) FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error) {
	if m.findInBoundsFn != nil {
		return m.findInBoundsFn(ctx, b)
	}
	return nil, nil
}

// --- Mock publisher / refresher ---

type mockPublisher struct {
	events []domain.BinEvent
	err    error
}

func (m *mockPublisher) PublishBinEvent(ctx context.Context, ev *domain.BinEvent) error {
	m.events = append(m.events, *ev)
	return m.err
}

type countingRefresher struct{ n int }

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.n++
	return nil
}

// --- Tests ---

func TestBinService_CreateWithCoordinates(t *testing.T) {
	pub := &mockPublisher{}
	ref := &countingRefresher{}
	svc := usecases.NewBinService(&mockBinRepo{}, pub)
	svc.SetRefresher(ref)

	loc, err := svc.Create(context.Background(), usecases.CreateBin{
		Label:       "  Plaza Moyua  ",
		Status:      domain.BinFull,
		Coordinates: &domain.GeoPoint{Lat: 43.2627, Lon: -2.9353},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.ID != "generated" {
		t.Errorf("expected repo-assigned id, got %q", loc.ID)
	}
	if loc.Label != "Plaza Moyua" {
		t.Errorf("expected trimmed label, got %q", loc.Label)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != "created" {
		t.Fatalf("expected one created event, got %+v", pub.events)
	}
	if ref.n != 1 {
		t.Errorf("expected 1 refresh, got %d", ref.n)
	}
}

func TestBinService_CreateUsesDraftOnce(t *testing.T) {
	svc := usecases.NewBinService(&mockBinRepo{}, nil)

	if _, err := svc.Create(context.Background(), usecases.CreateBin{Label: "A"}); !errors.Is(err, usecases.ErrNoCoordinates) {
		t.Fatalf("expected ErrNoCoordinates, got %v", err)
	}

	picked := domain.GeoPoint{Lat: 43.26, Lon: -2.93}
	svc.SetDraftPoint(picked)

	loc, err := svc.Create(context.Background(), usecases.CreateBin{Label: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loc.Coordinates.Equal(picked) {
		t.Errorf("expected draft coordinates, got %v", loc.Coordinates)
	}
	if loc.Status != domain.BinEmpty {
		t.Errorf("expected default status empty, got %s", loc.Status)
	}
	if _, ok := svc.DraftPoint(); ok {
		t.Error("draft should be consumed after a successful create")
	}
}

func TestBinService_CreateFailureKeepsDraft(t *testing.T) {
	repo := &mockBinRepo{createFn: func(ctx context.Context, loc *domain.TrashLocation) error {
		return errors.New("db down")
	}}
	svc := usecases.NewBinService(repo, nil)
	svc.SetDraftPoint(domain.GeoPoint{Lat: 1, Lon: 2})

	if _, err := svc.Create(context.Background(), usecases.CreateBin{Label: "A"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := svc.DraftPoint(); !ok {
		t.Error("draft should survive a failed create")
	}
}

func TestBinService_CreateValidation(t *testing.T) {
	svc := usecases.NewBinService(&mockBinRepo{}, nil)

	_, err := svc.Create(context.Background(), usecases.CreateBin{
		Label:       "",
		Coordinates: &domain.GeoPoint{Lat: 95, Lon: 0},
	})
	if !errors.Is(err, usecases.ErrInvalidBin) {
		t.Fatalf("expected ErrInvalidBin, got %v", err)
	}
}

func TestBinService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{err: errors.New("nats down")}
	svc := usecases.NewBinService(&mockBinRepo{}, pub)

	if _, err := svc.SetStatus(context.Background(), "abc", domain.BinFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != "updated" {
		t.Fatalf("expected one updated event, got %+v", pub.events)
	}
}

func TestBinService_SetStatusRejectsUnknown(t *testing.T) {
	called := false
	repo := &mockBinRepo{updateStatusFn: func(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error) {
		called = true
		return nil, nil
	}}
	svc := usecases.NewBinService(repo, nil)

	if _, err := svc.SetStatus(context.Background(), "abc", "overflowing"); !errors.Is(err, usecases.ErrInvalidBin) {
		t.Fatalf("expected ErrInvalidBin, got %v", err)
	}
	if called {
		t.Error("repo should not be called for an invalid status")
	}
}

func TestBinService_Nearby(t *testing.T) {
	center := domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	var gotBounds domain.Bounds
	repo := &mockBinRepo{findInBoundsFn: func(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error) {
		gotBounds = b
		return []domain.TrashLocation{
			{ID: "far-corner", Coordinates: domain.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}},
			{ID: "near", Coordinates: domain.GeoPoint{Lat: 43.2632, Lon: -2.9350}},
			{ID: "here", Coordinates: center},
		}, nil
	}}
	svc := usecases.NewBinService(repo, nil)

	got, err := svc.Nearby(context.Background(), center, 500, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotBounds.Contains(center) {
		t.Errorf("bounds %+v should contain the center", gotBounds)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bins inside the radius, got %d", len(got))
	}
	if got[0].ID != "here" || got[1].ID != "near" {
		t.Errorf("expected nearest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Distance != 0 {
		t.Errorf("expected zero distance for the center, got %f", got[0].Distance)
	}
}
