// Package simdevice is a scripted stand-in for a phone's location service.
// It can be used in-process as a ports.LocationProvider or served over NATS
// for a map host running with gps.source=nats.
package simdevice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

// ErrServicesOff is reported to an active watch when services are switched off.
var ErrServicesOff = errors.New("location services turned off")

// Device walks a closed route, emitting one fix per step.
type Device struct {
	clk  clock.Clock
	step time.Duration

	mu       sync.Mutex
	enabled  bool
	grant    bool
	route    []domain.GeoPoint
	pos      int
	watchers map[*watch]struct{}
}

// Option configures a Device.
type Option func(*Device)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(d *Device) { d.clk = c } }

// WithStep sets the time between fixes.
func WithStep(step time.Duration) Option { return func(d *Device) { d.step = step } }

// New creates a device positioned at the first route point. An empty route
// is replaced by a single point at the origin.
func New(route []domain.GeoPoint, enabled, grant bool, opts ...Option) *Device {
	if len(route) == 0 {
		route = []domain.GeoPoint{{}}
	}
	d := &Device{
		clk:      clock.New(),
		step:     time.Second,
		enabled:  enabled,
		grant:    grant,
		route:    append([]domain.GeoPoint(nil), route...),
		watchers: make(map[*watch]struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetServicesEnabled toggles the device-wide location switch. Turning it off
// fails every running watch.
func (d *Device) SetServicesEnabled(on bool) {
	d.mu.Lock()
	d.enabled = on
	var failed []*watch
	if !on {
		for w := range d.watchers {
			failed = append(failed, w)
		}
	}
	d.mu.Unlock()

	for _, w := range failed {
		w.onErr(ErrServicesOff)
	}
}

// SetGrant decides how the next permission prompt is answered.
func (d *Device) SetGrant(grant bool) {
	d.mu.Lock()
	d.grant = grant
	d.mu.Unlock()
}

// Position is the current point on the route.
func (d *Device) Position() domain.GeoPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route[d.pos]
}

func (d *Device) ServicesEnabled(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled, nil
}

func (d *Device) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grant, nil
}

// WatchPosition emits the current point immediately and then advances one
// route point per step.
func (d *Device) WatchPosition(_ context.Context, _ ports.WatchOptions, onFix func(domain.PositionFix), onErr func(error)) (ports.Subscription, error) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return nil, ErrServicesOff
	}
	w := &watch{dev: d, onFix: onFix, onErr: onErr, done: make(chan struct{})}
	d.watchers[w] = struct{}{}
	first := d.route[d.pos]
	d.mu.Unlock()

	onFix(domain.PositionFix{Point: first, Accuracy: 5, Time: d.clk.Now()})

	ticker := d.clk.Ticker(d.step)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				if p, ok := d.advance(); ok {
					w.fix(domain.PositionFix{Point: p, Accuracy: 5, Time: d.clk.Now()})
				}
			}
		}
	}()
	return w, nil
}

func (d *Device) advance() (domain.GeoPoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return domain.GeoPoint{}, false
	}
	d.pos = (d.pos + 1) % len(d.route)
	return d.route[d.pos], true
}

type watch struct {
	dev   *Device
	onFix func(domain.PositionFix)
	onErr func(error)
	done  chan struct{}
	once  sync.Once
}

func (w *watch) fix(f domain.PositionFix) {
	select {
	case <-w.done:
	default:
		w.onFix(f)
	}
}

func (w *watch) Remove() {
	w.once.Do(func() {
		w.dev.mu.Lock()
		delete(w.dev.watchers, w)
		w.dev.mu.Unlock()
		close(w.done)
	})
}
