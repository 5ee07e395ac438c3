// Package surface holds the map surface side of the bridge: the embedded
// Leaflet page served to browsers and WebViews, and a headless Go model of
// the same page used by tests and simulators.
package surface

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/markers"
)

// Host is the channel end a surface talks to.
type Host interface {
	Attach(bridge.Transport)
	Detach(bridge.Transport)
	Deliver(from bridge.Transport, data []byte)
}

// Viewport is the visible map region.
type Viewport struct {
	Center domain.GeoPoint
	Zoom   int
}

// Headless renders host messages into in-memory state the way the embedded
// page renders them into Leaflet layers.
type Headless struct {
	clk    clock.Clock
	theme  domain.Theme
	center domain.GeoPoint

	mu        sync.Mutex
	host      Host
	layer     *markers.Layer
	view      Viewport
	user      *domain.GeoPoint
	selecting bool
	pick      *domain.GeoPoint
	flight    *clock.Timer
	reloads   int
	received  []bridge.Type
}

func NewHeadless(theme domain.Theme, center domain.GeoPoint, clk clock.Clock) *Headless {
	if clk == nil {
		clk = clock.New()
	}
	h := &Headless{clk: clk, theme: theme, center: center}
	h.reset()
	return h
}

func (h *Headless) reset() {
	if h.flight != nil {
		h.flight.Stop()
		h.flight = nil
	}
	h.layer = markers.NewLayer(h.theme)
	h.view = Viewport{Center: h.center, Zoom: markers.DefaultZoom}
	h.user = nil
	h.selecting = false
	h.pick = nil
}

// Connect attaches the surface to host. The surface is not ready until
// Ready is called.
func (h *Headless) Connect(host Host) {
	h.mu.Lock()
	h.host = host
	h.mu.Unlock()
	host.Attach(h)
}

// Disconnect detaches from the host, as when the page goes away.
func (h *Headless) Disconnect() {
	h.mu.Lock()
	host := h.host
	h.host = nil
	h.mu.Unlock()
	if host != nil {
		host.Detach(h)
	}
}

// Ready announces that the page finished loading.
func (h *Headless) Ready() { h.emit(bridge.SurfaceReady{}) }

// TapMap simulates a tap on empty map.
func (h *Headless) TapMap(p domain.GeoPoint) {
	h.mu.Lock()
	if h.selecting {
		pt := p
		h.pick = &pt
	}
	h.mu.Unlock()
	h.emit(bridge.MapTapped{Lat: p.Lat, Lon: p.Lon})
}

// TapMarker simulates a tap on the marker stored under key.
func (h *Headless) TapMarker(key string) error {
	h.mu.Lock()
	m, ok := h.layer.Get(key)
	if ok {
		h.layer.OpenPopup(key)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no marker %q", key)
	}
	msg := bridge.MarkerTapped{Lat: m.Location.Coordinates.Lat, Lon: m.Location.Coordinates.Lon}
	if m.Location.ID != "" {
		msg.Key = key
	}
	h.emit(msg)
	return nil
}

// ReportError simulates a rendering failure inside the page.
func (h *Headless) ReportError(msg string) {
	h.emit(bridge.SurfaceError{Message: msg})
}

// SendRaw delivers an arbitrary frame to the host.
func (h *Headless) SendRaw(frame []byte) {
	h.mu.Lock()
	host := h.host
	h.mu.Unlock()
	if host != nil {
		host.Deliver(h, frame)
	}
}

func (h *Headless) emit(m bridge.Message) {
	data, err := bridge.Encode(m)
	if err != nil {
		return
	}
	h.SendRaw(data)
}

// WriteFrame implements bridge.Transport.
func (h *Headless) WriteFrame(_ context.Context, frame []byte) error {
	m, err := bridge.Decode(frame)
	if err != nil {
		h.ReportError(err.Error())
		return nil
	}

	h.mu.Lock()
	h.received = append(h.received, m.MessageType())
	reloaded := false
	switch m := m.(type) {
	case bridge.UpdateLocations:
		h.layer.Apply(m.Locations)
	case bridge.UpdateUserPosition:
		p := m.Position
		h.user = &p
	case bridge.CenterOnPosition:
		h.view = Viewport{Center: m.Position, Zoom: markers.CenterZoom}
	case bridge.NavigateToLocation:
		h.navigate(m.Location)
	case bridge.SetSelectionMode:
		h.selecting = m.Enabled
		if !m.Enabled {
			h.pick = nil
		}
	case bridge.ReloadSurface:
		h.reset()
		h.reloads++
		reloaded = true
	}
	h.mu.Unlock()

	if reloaded {
		h.Ready()
	}
	return nil
}

// navigate flies to the target and opens its popup when the flight lands.
// Unknown targets are ignored. Caller holds mu.
func (h *Headless) navigate(target domain.TrashLocation) {
	key, ok := h.layer.Lookup(target)
	if !ok {
		return
	}
	if h.flight != nil {
		h.flight.Stop()
	}
	h.view = Viewport{Center: target.Coordinates, Zoom: markers.NavigateZoom}
	h.flight = h.clk.AfterFunc(markers.FlyDuration, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.layer.OpenPopup(key)
		h.flight = nil
	})
}

// Snapshot is a copy of the rendered state.
type Snapshot struct {
	Markers    []markers.Marker
	Keys       []string
	OpenPopups []string
	View       Viewport
	User       *domain.GeoPoint
	Selecting  bool
	Pick       *domain.GeoPoint
	Flying     bool
	Reloads    int
	Received   []bridge.Type
}

func (h *Headless) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Snapshot{
		Keys:       h.layer.Keys(),
		OpenPopups: h.layer.OpenPopups(),
		View:       h.view,
		Selecting:  h.selecting,
		Flying:     h.flight != nil,
		Reloads:    h.reloads,
		Received:   append([]bridge.Type(nil), h.received...),
	}
	for _, k := range s.Keys {
		m, _ := h.layer.Get(k)
		s.Markers = append(s.Markers, m)
	}
	if h.user != nil {
		u := *h.user
		s.User = &u
	}
	if h.pick != nil {
		p := *h.pick
		s.Pick = &p
	}
	return s
}
