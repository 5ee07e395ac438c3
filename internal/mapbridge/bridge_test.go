package mapbridge_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/gps"
	"github.com/samirrijal/wastemap/internal/mapbridge"
	"github.com/samirrijal/wastemap/internal/markers"
	"github.com/samirrijal/wastemap/internal/surface"
)

// --- mocks ---

type mockProvider struct {
	enabled atomic.Bool
	sub     mockSub
	asked   atomic.Bool
	gate    chan struct{} // holds RequestPermission open when set
	mu      sync.Mutex
	onFix   func(domain.PositionFix)
}

type mockSub struct{ removed atomic.Int32 }

func (s *mockSub) Remove() { s.removed.Add(1) }

func (m *mockProvider) ServicesEnabled(context.Context) (bool, error) { return m.enabled.Load(), nil }

func (m *mockProvider) RequestPermission(context.Context) (bool, error) {
	m.asked.Store(true)
	if m.gate != nil {
		<-m.gate
	}
	return true, nil
}

func (m *mockProvider) WatchPosition(_ context.Context, _ ports.WatchOptions, onFix func(domain.PositionFix), _ func(error)) (ports.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFix = onFix
	return &m.sub, nil
}

func (m *mockProvider) fix(p domain.GeoPoint) {
	m.mu.Lock()
	fn := m.onFix
	m.mu.Unlock()
	fn(domain.PositionFix{Point: p})
}

type mockGeocoder struct {
	searchFn func(ctx context.Context, q string) ([]domain.SearchResult, error)
}

func (m *mockGeocoder) Search(ctx context.Context, q string) ([]domain.SearchResult, error) {
	if m.searchFn == nil {
		return nil, nil
	}
	return m.searchFn(ctx, q)
}

// --- harness ---

var (
	marrakesh  = domain.GeoPoint{Lat: 31.6295, Lon: -7.9811}
	cityCenter = domain.TrashLocation{Label: "City Center", Status: domain.BinEmpty, Coordinates: domain.GeoPoint{Lat: 31.6295, Lon: -7.9811}}
	trainStn   = domain.TrashLocation{Label: "Train Station", Status: domain.BinFull, Coordinates: domain.GeoPoint{Lat: 31.6295, Lon: -7.9821}}
)

type harness struct {
	t        *testing.T
	clk      *clock.Mock
	provider *mockProvider
	geocoder *mockGeocoder
	alerts   *mapbridge.AlertBoard
	b        *mapbridge.Bridge
	surf     *surface.Headless

	mu       sync.Mutex
	picked   []domain.GeoPoint
	selected []domain.TrashLocation
}

func newHarness(t *testing.T, props mapbridge.Props) *harness {
	t.Helper()
	return newHarnessWith(t, props, true)
}

func newHarnessWith(t *testing.T, props mapbridge.Props, servicesOn bool) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clk:      clock.NewMock(),
		provider: &mockProvider{},
		geocoder: &mockGeocoder{},
		alerts:   mapbridge.NewAlertBoard(),
	}
	h.provider.enabled.Store(servicesOn)
	h.b = mapbridge.New(props, mapbridge.Callbacks{
		OnLocationSelect: func(p domain.GeoPoint) {
			h.mu.Lock()
			h.picked = append(h.picked, p)
			h.mu.Unlock()
		},
		OnTrashSelect: func(l domain.TrashLocation) {
			h.mu.Lock()
			h.selected = append(h.selected, l)
			h.mu.Unlock()
		},
	}, mapbridge.Deps{
		Provider: h.provider,
		Geocoder: h.geocoder,
		Notifier: h.alerts,
		Clock:    h.clk,
	})
	h.surf = surface.NewHeadless(props.Theme(), props.DefaultCenter, h.clk)
	require.NoError(t, h.b.Mount(context.Background()))
	t.Cleanup(h.b.Unmount)
	return h
}

func (h *harness) connect() {
	h.surf.Connect(h.b.Channel())
	h.surf.Ready()
	h.eventually(func() bool { return h.snapshot().SurfaceReady })
}

func (h *harness) snapshot() mapbridge.Snapshot {
	s, err := h.b.Snapshot(context.Background())
	require.NoError(h.t, err)
	return s
}

func (h *harness) eventually(cond func() bool, msg ...any) {
	h.t.Helper()
	require.Eventually(h.t, cond, time.Second, 5*time.Millisecond, msg...)
}

func (h *harness) markerCount() int { return len(h.surf.Snapshot().Keys) }

func countType(types []bridge.Type, t bridge.Type) int {
	n := 0
	for _, x := range types {
		if x == t {
			n++
		}
	}
	return n
}

// --- tests ---

func TestBridge_BuffersUntilSurfaceReady(t *testing.T) {
	sel := cityCenter
	h := newHarness(t, mapbridge.Props{
		Locations:        []domain.TrashLocation{cityCenter, trainStn},
		SelectedLocation: &sel,
		DefaultCenter:    marrakesh,
	})

	h.surf.Connect(h.b.Channel())
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.surf.Snapshot().Received, "nothing before surfaceReady")

	h.surf.Ready()
	h.eventually(func() bool { return h.markerCount() == 2 })

	h.eventually(func() bool { return h.surf.Snapshot().Flying })
	h.clk.Add(markers.FlyDuration)
	h.eventually(func() bool { return len(h.surf.Snapshot().OpenPopups) == 1 })
	assert.Equal(t, []string{cityCenter.MarkerKey()}, h.surf.Snapshot().OpenPopups)
}

func TestBridge_ManyRerendersSendOneUpdate(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	h.connect()
	h.eventually(func() bool { return countType(h.surf.Snapshot().Received, bridge.TypeUpdateLocations) == 1 })

	require.NoError(t, h.b.UpdateProps(context.Background(), func(p *mapbridge.Props) {
		p.Locations = []domain.TrashLocation{cityCenter}
	}))
	require.NoError(t, h.b.SetProps(context.Background(), mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter, trainStn},
	}))
	h.eventually(func() bool { return h.markerCount() == 2 })

	// Re-rendering with an identical list sends nothing.
	require.NoError(t, h.b.SetProps(context.Background(), mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter, trainStn},
	}))
	time.Sleep(20 * time.Millisecond)

	snap := h.surf.Snapshot()
	assert.Equal(t, 3, countType(snap.Received, bridge.TypeUpdateLocations), "initial, one per changed list, none for the repeat")

	var fullFill string
	for _, mk := range snap.Markers {
		if mk.Location.Label == "Train Station" {
			fullFill = mk.Style.Fill
		}
	}
	assert.Equal(t, domain.Theme{}.MarkerStyle(domain.BinFull).Fill, fullFill)
}

func TestBridge_PickHandoff(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	h.connect()

	got := make(chan domain.GeoPoint, 2)
	require.NoError(t, h.b.BeginPick(context.Background(), func(p domain.GeoPoint) { got <- p }))
	h.eventually(func() bool { return h.surf.Snapshot().Selecting })
	assert.Len(t, h.alerts.Active(), 1, "selection banner")

	tap := domain.GeoPoint{Lat: 31.64, Lon: -7.99}
	h.surf.TapMap(tap)
	select {
	case p := <-got:
		assert.Equal(t, tap, p)
	case <-time.After(time.Second):
		t.Fatal("pick callback not invoked")
	}
	h.eventually(func() bool { return !h.surf.Snapshot().Selecting })
	assert.False(t, h.snapshot().Picking)
	assert.Empty(t, h.alerts.Active())

	h.surf.TapMap(domain.GeoPoint{Lat: 1, Lon: 1})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, got, 0, "second tap is ignored")
	h.mu.Lock()
	assert.Empty(t, h.picked, "taps outside selection mode do not reach OnLocationSelect")
	h.mu.Unlock()
}

func TestBridge_SelectingPropForwardsTaps(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh, IsSelectingLocation: true})
	h.connect()
	h.eventually(func() bool { return h.surf.Snapshot().Selecting })

	h.surf.TapMap(marrakesh)
	h.eventually(func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.picked) == 1
	})
}

func TestBridge_MarkerTapResolvesLocation(t *testing.T) {
	h := newHarness(t, mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter, trainStn},
	})
	h.connect()
	h.eventually(func() bool { return h.markerCount() == 2 })

	require.NoError(t, h.surf.TapMarker(trainStn.MarkerKey()))
	h.eventually(func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.selected) == 1
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "Train Station", h.selected[0].Label)
}

func TestBridge_GPSFlowAndCenterOnMe(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	h.connect()
	h.eventually(func() bool { return h.snapshot().GPS.State == gps.Tracking })

	me := domain.GeoPoint{Lat: 31.63, Lon: -8.0}
	h.provider.fix(me)
	h.eventually(func() bool { return h.surf.Snapshot().User != nil })
	assert.Equal(t, me, *h.surf.Snapshot().User)

	require.NoError(t, h.b.CenterOnMe(context.Background()))
	h.eventually(func() bool { return h.surf.Snapshot().View.Zoom == markers.CenterZoom })
	assert.Equal(t, me, h.surf.Snapshot().View.Center)
}

func TestBridge_ServicesDisabledPromptRoundTrip(t *testing.T) {
	h := newHarnessWith(t, mapbridge.Props{DefaultCenter: marrakesh}, false)
	h.eventually(func() bool { return h.snapshot().GPS.State == gps.ServicesDisabled })
	require.Len(t, h.alerts.Active(), 1)
	assert.Equal(t, domain.AlertEnableServices, h.alerts.Active()[0].Kind)
	assert.True(t, h.alerts.Active()[0].Blocking)

	require.NoError(t, h.b.RespondPrompt(context.Background(), domain.AlertEnableServices, gps.ActionEnable))
	assert.Equal(t, gps.AwaitingEnable, h.snapshot().GPS.State)
	assert.Empty(t, h.alerts.Active())

	h.provider.enabled.Store(true)
	h.clk.Add(time.Second)
	h.eventually(func() bool { return h.snapshot().GPS.State == gps.Tracking })
}

func TestBridge_SearchSelectNavigates(t *testing.T) {
	h := newHarness(t, mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter},
	})
	h.geocoder.searchFn = func(context.Context, string) ([]domain.SearchResult, error) {
		return []domain.SearchResult{{Label: "Place de la Kissaria", Coordinates: cityCenter.Coordinates}}, nil
	}
	h.connect()
	h.eventually(func() bool { return h.markerCount() == 1 })

	require.NoError(t, h.b.SetSearchQuery(context.Background(), "kissaria"))
	h.clk.Add(500 * time.Millisecond)
	h.eventually(func() bool { return len(h.snapshot().Search.Results) == 1 })

	r, err := h.b.SelectSearchResult(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Place de la Kissaria", r.Label)
	assert.Empty(t, h.snapshot().Search.Query)

	h.eventually(func() bool { return h.surf.Snapshot().Flying })
	h.clk.Add(markers.FlyDuration)
	h.eventually(func() bool { return len(h.surf.Snapshot().OpenPopups) == 1 })
}

func TestBridge_SurfaceErrorRetryReloads(t *testing.T) {
	h := newHarness(t, mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter},
	})
	h.connect()
	h.eventually(func() bool { return h.markerCount() == 1 })

	h.surf.ReportError("tile layer failed")
	h.eventually(func() bool { return len(h.alerts.Active()) == 1 })
	assert.Equal(t, domain.AlertSurfaceError, h.alerts.Active()[0].Kind)
	assert.Equal(t, "tile layer failed", h.snapshot().SurfaceError)

	require.NoError(t, h.b.RespondPrompt(context.Background(), domain.AlertSurfaceError, mapbridge.ActionRetry))
	h.eventually(func() bool { return h.surf.Snapshot().Reloads == 1 })

	// The reloaded page announces itself again and gets its markers back.
	h.eventually(func() bool { return h.markerCount() == 1 })
	assert.Empty(t, h.alerts.Active())
	assert.Empty(t, h.snapshot().SurfaceError)
}

func TestBridge_ReconnectResyncs(t *testing.T) {
	h := newHarness(t, mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter, trainStn},
	})
	h.connect()
	h.eventually(func() bool { return h.markerCount() == 2 })
	h.surf.Disconnect()

	fresh := surface.NewHeadless(domain.Theme{}, marrakesh, h.clk)
	fresh.Connect(h.b.Channel())
	fresh.Ready()
	h.eventually(func() bool { return len(fresh.Snapshot().Keys) == 2 })
}

func TestBridge_UnknownPrompt(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	err := h.b.RespondPrompt(context.Background(), domain.AlertKind("nope"), "ok")
	assert.ErrorIs(t, err, mapbridge.ErrUnknownPrompt)
}

func TestBridge_UnmountReleasesResources(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	h.connect()
	h.eventually(func() bool { return h.snapshot().GPS.State == gps.Tracking })

	h.b.Unmount()

	assert.Equal(t, int32(1), h.provider.sub.removed.Load())
	assert.ErrorIs(t, h.b.CenterOnMe(context.Background()), mapbridge.ErrNotMounted)
	assert.ErrorIs(t, h.b.Mount(context.Background()), mapbridge.ErrNotMounted)
}

func TestBridge_UnmountWhilePermissionPendingReleasesSubscription(t *testing.T) {
	p := &mockProvider{gate: make(chan struct{})}
	p.enabled.Store(true)
	b := mapbridge.New(mapbridge.Props{DefaultCenter: marrakesh}, mapbridge.Callbacks{}, mapbridge.Deps{
		Provider: p,
		Geocoder: &mockGeocoder{},
		Clock:    clock.NewMock(),
	})
	require.NoError(t, b.Mount(context.Background()))
	require.Eventually(t, p.asked.Load, time.Second, time.Millisecond)

	b.Unmount()
	close(p.gate)

	require.Eventually(t, func() bool { return p.sub.removed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBridge_SelectNewlyAddedLocationOpensPopup(t *testing.T) {
	h := newHarness(t, mapbridge.Props{
		DefaultCenter: marrakesh,
		Locations:     []domain.TrashLocation{cityCenter},
	})
	h.connect()
	h.eventually(func() bool { return h.markerCount() == 1 })

	sel := trainStn
	require.NoError(t, h.b.SetProps(context.Background(), mapbridge.Props{
		DefaultCenter:    marrakesh,
		Locations:        []domain.TrashLocation{cityCenter, trainStn},
		SelectedLocation: &sel,
	}))
	h.eventually(func() bool { return h.surf.Snapshot().Flying })
	assert.Equal(t, 2, h.markerCount())

	h.clk.Add(markers.FlyDuration)
	h.eventually(func() bool { return len(h.surf.Snapshot().OpenPopups) == 1 })
	assert.Equal(t, []string{trainStn.MarkerKey()}, h.surf.Snapshot().OpenPopups)
}

func TestBridge_MountTwice(t *testing.T) {
	h := newHarness(t, mapbridge.Props{DefaultCenter: marrakesh})
	assert.ErrorIs(t, h.b.Mount(context.Background()), mapbridge.ErrAlreadyMounted)
}
