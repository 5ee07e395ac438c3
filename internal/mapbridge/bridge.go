// Package mapbridge is the map screen component: it owns the surface
// channel and wires marker sync, place search, GPS tracking and location
// picking into one lifecycle.
package mapbridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/geocode"
	"github.com/samirrijal/wastemap/internal/gps"
	"github.com/samirrijal/wastemap/internal/markers"
	"github.com/samirrijal/wastemap/internal/pick"
	"github.com/samirrijal/wastemap/internal/pkg/eventloop"
)

var (
	ErrAlreadyMounted = errors.New("map bridge already mounted")
	ErrNotMounted     = errors.New("map bridge not mounted")
	ErrUnknownPrompt  = errors.New("unknown prompt")
)

// Action ids for the surface error prompt.
const (
	ActionRetry   = "retry"
	ActionDismiss = "dismiss"
	ActionCancel  = "cancel"
)

// Props is the input contract of the map component.
type Props struct {
	Locations           []domain.TrashLocation `json:"locations"`
	SelectedLocation    *domain.TrashLocation  `json:"selected_location,omitempty"`
	DefaultCenter       domain.GeoPoint        `json:"default_center"`
	IsDarkMode          bool                   `json:"is_dark_mode"`
	IsSelectingLocation bool                   `json:"is_selecting_location"`
}

// Theme derives the read-only theme from the props.
func (p Props) Theme() domain.Theme { return domain.Theme{Dark: p.IsDarkMode} }

// Callbacks are invoked on the event loop. They must not call back into the
// Bridge synchronously.
type Callbacks struct {
	OnLocationSelect func(domain.GeoPoint)
	OnTrashSelect    func(domain.TrashLocation)
}

// Deps are the collaborators the bridge needs.
type Deps struct {
	Provider ports.LocationProvider
	Geocoder ports.Geocoder
	Notifier ports.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger

	GPS           gps.Config
	Debounce      time.Duration
	SearchTimeout time.Duration
	QueueSize     int
}

// Bridge is safe for concurrent use: every method hops onto the event loop.
type Bridge struct {
	loop    *eventloop.Loop
	ch      *bridge.Channel
	markers *markers.Publisher
	search  *geocode.Search
	tracker *gps.Tracker
	pick    *pick.Handoff
	notify  ports.Notifier
	clk     clock.Clock
	log     *slog.Logger

	// Loop-confined.
	props     Props
	callbacks Callbacks
	mounted   bool
	unmounted bool
	lastError string
	lastTap   *domain.TrashLocation
}

func New(props Props, callbacks Callbacks, deps Deps) *Bridge {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewAlertBoard()
	}
	log := deps.Logger.With("component", "mapbridge")
	loop := eventloop.New(256)
	ch := bridge.NewChannel(loop, deps.QueueSize, deps.Logger)

	b := &Bridge{
		loop:      loop,
		ch:        ch,
		notify:    deps.Notifier,
		clk:       deps.Clock,
		log:       log,
		props:     props,
		callbacks: callbacks,
	}
	b.markers = markers.NewPublisher(loop, ch, deps.Logger)
	b.search = geocode.NewSearch(loop, deps.Geocoder, ch, deps.Notifier,
		geocode.WithSearchClock(deps.Clock),
		geocode.WithDebounce(deps.Debounce),
		geocode.WithRequestTimeout(deps.SearchTimeout),
		geocode.WithSearchLogger(deps.Logger),
	)
	b.tracker = gps.New(loop, deps.Provider, ch, deps.Notifier,
		gps.WithClock(deps.Clock),
		gps.WithConfig(deps.GPS),
		gps.WithLogger(deps.Logger),
	)
	b.pick = pick.NewHandoff(ch, deps.Notifier, deps.Clock.Now, deps.Logger)
	return b
}

// Channel is the host end that surface transports attach to.
func (b *Bridge) Channel() *bridge.Channel { return b.ch }

// Mount starts the loop, registers the inbound handler and kicks off GPS.
// State for the surface is buffered until it reports ready.
func (b *Bridge) Mount(ctx context.Context) error {
	b.loop.Start()
	var err error
	if derr := b.loop.Do(ctx, func() {
		switch {
		case b.unmounted:
			err = ErrNotMounted
			return
		case b.mounted:
			err = ErrAlreadyMounted
			return
		}
		if err = b.ch.OnReceive(b.handle); err != nil {
			return
		}
		b.mounted = true
		b.tracker.Start(context.WithoutCancel(ctx))
		b.search.Start(context.WithoutCancel(ctx))
		b.applyProps(Props{}, b.props)
		b.log.Info("map bridge mounted")
	}); derr != nil {
		if errors.Is(derr, eventloop.ErrStopped) {
			return ErrNotMounted
		}
		return derr
	}
	return err
}

// Unmount stops GPS and search, drops the handler and shuts the loop down.
func (b *Bridge) Unmount() {
	_ = b.loop.Do(context.Background(), func() {
		if !b.mounted {
			b.unmounted = true
			return
		}
		b.tracker.Stop()
		b.search.Stop()
		b.pick.CancelPick()
		b.ch.ClearHandler()
		b.mounted = false
		b.unmounted = true
		b.log.Info("map bridge unmounted")
	})
	b.ch.Close()
	b.loop.Stop()
}

func (b *Bridge) do(ctx context.Context, fn func() error) error {
	var err error
	if derr := b.loop.Do(ctx, func() {
		if !b.mounted {
			err = ErrNotMounted
			return
		}
		err = fn()
	}); derr != nil {
		if errors.Is(derr, eventloop.ErrStopped) {
			return ErrNotMounted
		}
		return derr
	}
	return err
}

// SetProps replaces the props. A changed location list produces exactly one
// updateLocations no matter how many SetProps calls land in one loop turn.
func (b *Bridge) SetProps(ctx context.Context, p Props) error {
	return b.do(ctx, func() error {
		prev := b.props
		b.props = p
		b.applyProps(prev, p)
		return nil
	})
}

// UpdateProps edits the current props in place.
func (b *Bridge) UpdateProps(ctx context.Context, edit func(*Props)) error {
	return b.do(ctx, func() error {
		prev := b.props
		next := prev
		next.Locations = append([]domain.TrashLocation(nil), prev.Locations...)
		edit(&next)
		b.props = next
		b.applyProps(prev, next)
		return nil
	})
}

// SetLocations replaces only the location list.
func (b *Bridge) SetLocations(ctx context.Context, locs []domain.TrashLocation) error {
	return b.UpdateProps(ctx, func(p *Props) {
		p.Locations = append(p.Locations[:0], locs...)
	})
}

// SetCallbacks replaces the callbacks.
func (b *Bridge) SetCallbacks(ctx context.Context, cb Callbacks) error {
	return b.do(ctx, func() error {
		b.callbacks = cb
		return nil
	})
}

// Props returns the current props.
func (b *Bridge) Props(ctx context.Context) (Props, error) {
	var p Props
	err := b.do(ctx, func() error {
		p = b.props
		p.Locations = append([]domain.TrashLocation(nil), b.props.Locations...)
		return nil
	})
	return p, err
}

func (b *Bridge) applyProps(prev, next Props) {
	b.markers.SetLocations(next.Locations)

	if next.SelectedLocation != nil && !sameSelection(prev.SelectedLocation, next.SelectedLocation) {
		b.markers.Flush()
		b.ch.Send(bridge.NavigateToLocation{Location: *next.SelectedLocation})
	}
	if prev.IsSelectingLocation != next.IsSelectingLocation {
		b.syncSelection()
	}
	if b.ch.Ready() && prev.IsDarkMode != next.IsDarkMode {
		// The page bakes the palette and tiles in at load time.
		b.ch.Send(bridge.ReloadSurface{})
	}
}

func sameSelection(a, b *domain.TrashLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.MarkerKey() == b.MarkerKey() && a.Coordinates.Equal(b.Coordinates)
}

func (b *Bridge) syncSelection() {
	b.ch.Send(bridge.SetSelectionMode{Enabled: b.props.IsSelectingLocation || b.pick.Active()})
}

// BeginPick routes the next map tap to cb.
func (b *Bridge) BeginPick(ctx context.Context, cb pick.Callback) error {
	return b.do(ctx, func() error {
		b.pick.BeginPick(cb)
		return nil
	})
}

// CancelPick leaves selection mode without delivering a coordinate.
func (b *Bridge) CancelPick(ctx context.Context) error {
	return b.do(ctx, func() error {
		b.cancelPick()
		return nil
	})
}

func (b *Bridge) cancelPick() {
	if !b.pick.Active() {
		return
	}
	b.pick.CancelPick()
	if b.props.IsSelectingLocation {
		b.syncSelection()
	}
}

// CenterOnMe recentres on the user or restarts the location flow.
func (b *Bridge) CenterOnMe(ctx context.Context) error {
	return b.do(ctx, func() error {
		b.tracker.CenterOnMe()
		return nil
	})
}

// SetSearchQuery feeds the search box.
func (b *Bridge) SetSearchQuery(ctx context.Context, q string) error {
	return b.do(ctx, func() error {
		b.search.SetQuery(q)
		return nil
	})
}

// SelectSearchResult picks result i of the current list.
func (b *Bridge) SelectSearchResult(ctx context.Context, i int) (domain.SearchResult, error) {
	var r domain.SearchResult
	err := b.do(ctx, func() error {
		var err error
		r, err = b.search.Select(i)
		return err
	})
	return r, err
}

// RespondPrompt routes the user's answer to an alert.
func (b *Bridge) RespondPrompt(ctx context.Context, kind domain.AlertKind, action string) error {
	return b.do(ctx, func() error {
		switch {
		case b.tracker.Respond(kind, action):
		case b.search.Respond(kind, action):
		case kind == domain.AlertSurfaceError:
			b.notify.Dismiss(kind)
			if action == ActionRetry {
				b.retrySurface()
			}
		case kind == domain.AlertSelectionBanner:
			if action == ActionCancel {
				b.cancelPick()
			}
		default:
			return ErrUnknownPrompt
		}
		return nil
	})
}

// RetrySurface asks the surface to reload itself.
func (b *Bridge) RetrySurface(ctx context.Context) error {
	return b.do(ctx, func() error {
		b.notify.Dismiss(domain.AlertSurfaceError)
		b.retrySurface()
		return nil
	})
}

func (b *Bridge) retrySurface() {
	if !b.ch.Ready() {
		b.log.Warn("surface not connected, cannot reload")
		return
	}
	b.lastError = ""
	b.ch.Send(bridge.ReloadSurface{})
}

// Snapshot is a view of the component for status endpoints and tests.
type Snapshot struct {
	Mounted      bool          `json:"mounted"`
	SurfaceReady bool          `json:"surface_ready"`
	Locations    int           `json:"locations"`
	Picking      bool          `json:"picking"`
	GPS          gps.Session   `json:"gps"`
	Search       geocode.State `json:"search"`
	SurfaceError string        `json:"surface_error,omitempty"`
	// LastTapped is the most recent marker the user tapped.
	LastTapped *domain.TrashLocation `json:"last_tapped,omitempty"`
}

func (b *Bridge) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := b.do(ctx, func() error {
		s = Snapshot{
			Mounted:      b.mounted,
			SurfaceReady: b.ch.Ready(),
			Locations:    len(b.markers.Locations()),
			Picking:      b.pick.Active(),
			GPS:          b.tracker.Session(),
			Search:       b.search.State(),
			SurfaceError: b.lastError,
			LastTapped:   b.lastTap,
		}
		return nil
	})
	return s, err
}

func (b *Bridge) handle(m bridge.Message) {
	switch m := m.(type) {
	case bridge.SurfaceReady:
		b.log.Info("surface ready")
		if b.lastError != "" {
			b.lastError = ""
			b.notify.Dismiss(domain.AlertSurfaceError)
		}
	case bridge.MapTapped:
		p := domain.GeoPoint{Lat: m.Lat, Lon: m.Lon}
		if b.pick.HandleMapTapped(p) {
			if b.props.IsSelectingLocation {
				b.syncSelection()
			}
			return
		}
		if b.props.IsSelectingLocation && b.callbacks.OnLocationSelect != nil {
			b.callbacks.OnLocationSelect(p)
		}
	case bridge.MarkerTapped:
		loc, ok := b.markers.Resolve(m.Key, domain.GeoPoint{Lat: m.Lat, Lon: m.Lon})
		if !ok {
			b.log.Debug("tap on unknown marker", "lat", m.Lat, "lon", m.Lon, "key", m.Key)
			return
		}
		b.lastTap = &loc
		if b.callbacks.OnTrashSelect != nil {
			b.callbacks.OnTrashSelect(loc)
		}
	case bridge.SurfaceError:
		b.log.Warn("surface reported an error", "message", m.Message)
		b.lastError = m.Message
		b.notify.Show(domain.Alert{
			Kind:    domain.AlertSurfaceError,
			Title:   "Map Error",
			Message: "The map could not be displayed: " + m.Message,
			Actions: []domain.AlertAction{
				{ID: ActionRetry, Label: "Reload Map"},
				{ID: ActionDismiss, Label: "Dismiss", Cancel: true},
			},
			Time: b.clk.Now(),
		})
	}
}
