package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	handler "github.com/samirrijal/wastemap/internal/adapters/http"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/core/usecases"
	"github.com/samirrijal/wastemap/internal/mapbridge"
	"github.com/samirrijal/wastemap/internal/surface"
)

// ---- Mocks ----

type mockBinRepo struct {
	mu             sync.Mutex
	bins           []domain.TrashLocation
	findInBoundsFn func(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error)
	listErr        error
}

func (m *mockBinRepo) List(ctx context.Context) ([]domain.TrashLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.TrashLocation(nil), m.bins...), nil
}

func (m *mockBinRepo) GetByID(ctx context.Context, id string) (*domain.TrashLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bins {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("bin %s: %w", id, domain.ErrNotFound)
}

func (m *mockBinRepo) Create(ctx context.Context, loc *domain.TrashLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc.ID = fmt.Sprintf("bin-%d", len(m.bins)+1)
	m.bins = append(m.bins, *loc)
	return nil
}

func (m *mockBinRepo) UpdateStatus(ctx context.Context, id string, status domain.BinStatus) (*domain.TrashLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bins {
		if m.bins[i].ID == id {
			m.bins[i].Status = status
			b := m.bins[i]
			return &b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockBinRepo) FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.TrashLocation, error) {
	if m.findInBoundsFn != nil {
		return m.findInBoundsFn(ctx, b)
	}
	return m.List(ctx)
}

type mockProvider struct{}

func (mockProvider) ServicesEnabled(context.Context) (bool, error)   { return true, nil }
func (mockProvider) RequestPermission(context.Context) (bool, error) { return true, nil }
func (mockProvider) WatchPosition(context.Context, ports.WatchOptions, func(domain.PositionFix), func(error)) (ports.Subscription, error) {
	return noopSub{}, nil
}

type noopSub struct{}

func (noopSub) Remove() {}

type mockGeocoder struct {
	searchFn func(ctx context.Context, q string) ([]domain.SearchResult, error)
}

func (m *mockGeocoder) Search(ctx context.Context, q string) ([]domain.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeBroker struct{ up bool }

func (b fakeBroker) IsConnected() bool { return b.up }

// ---- Harness ----

var (
	bilbao = domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	plaza  = domain.TrashLocation{ID: "bin-a", Label: "Plaza Moyua", Status: domain.BinEmpty, Coordinates: domain.GeoPoint{Lat: 43.2627, Lon: -2.9353}}
	campus = domain.TrashLocation{ID: "bin-b", Label: "Campus", Status: domain.BinFull, Coordinates: domain.GeoPoint{Lat: 43.2700, Lon: -2.9400}}
)

type testEnv struct {
	t      *testing.T
	app    *fiber.App
	deps   *handler.Dependencies
	repo   *mockBinRepo
	geo    *mockGeocoder
	clk    *clock.Mock
	bridge *mapbridge.Bridge
	surf   *surface.Headless
}

func newEnv(t *testing.T, opts ...func(*handler.Dependencies)) *testEnv {
	t.Helper()
	e := &testEnv{
		t:    t,
		repo: &mockBinRepo{bins: []domain.TrashLocation{plaza, campus}},
		geo:  &mockGeocoder{},
		clk:  clock.NewMock(),
	}
	alerts := mapbridge.NewAlertBoard()
	props := mapbridge.Props{DefaultCenter: bilbao}
	e.bridge = mapbridge.New(props, mapbridge.Callbacks{}, mapbridge.Deps{
		Provider: mockProvider{},
		Geocoder: e.geo,
		Notifier: alerts,
		Clock:    e.clk,
	})
	if err := e.bridge.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	t.Cleanup(e.bridge.Unmount)

	bins := usecases.NewBinService(e.repo, nil)
	locSync := usecases.NewLocationSync(e.repo, e.bridge)
	bins.SetRefresher(locSync)
	if err := locSync.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	e.deps = &handler.Dependencies{
		Bridge:   e.bridge,
		Alerts:   alerts,
		Bins:     bins,
		Geocoder: e.geo,
		Page:     surface.PageConfig{Title: "Test map"},
		DB:       fakePinger{},
	}
	for _, o := range opts {
		o(e.deps)
	}

	e.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(e.app, e.deps)
	return e
}

// connect attaches a headless surface and waits for the ready handshake.
func (e *testEnv) connect() {
	e.t.Helper()
	e.surf = surface.NewHeadless(domain.Theme{}, bilbao, e.clk)
	e.surf.Connect(e.bridge.Channel())
	e.surf.Ready()
	e.eventually(func() bool {
		snap, err := e.bridge.Snapshot(context.Background())
		return err == nil && snap.SurfaceReady
	})
}

func (e *testEnv) eventually(cond func() bool) {
	e.t.Helper()
	require.Eventually(e.t, cond, time.Second, 5*time.Millisecond)
}

func (e *testEnv) do(method, path, body string) (int, []byte) {
	e.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}
