package gps

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/pkg/eventloop"
	"github.com/samirrijal/wastemap/internal/pkg/geospatial"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
)

// Sender is the outbound half of the bridge channel.
type Sender interface {
	Send(bridge.Message)
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithClock(c clock.Clock) Option { return func(t *Tracker) { t.clk = c } }

func WithConfig(c Config) Option { return func(t *Tracker) { t.cfg = c } }

func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.log = l } }

// OnStateChange registers fn to run on the loop after every transition.
func OnStateChange(fn func(from, to State)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker is the GPS state machine. Every exported method must be called on
// the event loop; provider calls run on their own goroutines and post their
// results back.
type Tracker struct {
	loop     *eventloop.Loop
	provider ports.LocationProvider
	out      Sender
	notify   ports.Notifier
	clk      clock.Clock
	cfg      Config
	log      *slog.Logger
	onChange func(from, to State)

	ctx    context.Context
	cancel context.CancelFunc
	state  State
	// epoch invalidates results of async steps started before the last
	// flow change.
	epoch uint64

	servicesEnabled   bool
	permissionGranted bool
	last              *domain.PositionFix
	sentAt            time.Time
	sentPoint         *domain.GeoPoint
	sub               ports.Subscription

	ticker   *clock.Ticker
	tickStop chan struct{}
	timeout  *clock.Timer
	deadline time.Time
}

func New(loop *eventloop.Loop, provider ports.LocationProvider, out Sender, notify ports.Notifier, opts ...Option) *Tracker {
	t := &Tracker{
		loop:     loop,
		provider: provider,
		out:      out,
		notify:   notify,
		clk:      clock.New(),
		cfg:      DefaultConfig(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	t.cfg = t.cfg.withDefaults()
	t.log = t.log.With("component", "gps")
	return t
}

// Start checks location services and, when possible, starts tracking.
func (t *Tracker) Start(ctx context.Context) {
	if t.ctx != nil {
		return
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.check()
}

// Stop cancels the subscription and every timer. The tracker cannot be
// restarted.
func (t *Tracker) Stop() {
	if t.state == Stopped {
		return
	}
	t.stopPolling()
	if t.sub != nil {
		t.sub.Remove()
		t.sub = nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.epoch++
	t.transition(Stopped)
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Session returns a snapshot of the tracker.
func (t *Tracker) Session() Session {
	s := Session{
		State:             t.state,
		StateName:         t.state.String(),
		ServicesEnabled:   t.servicesEnabled,
		PermissionGranted: t.permissionGranted,
		Subscribed:        t.sub != nil,
	}
	if t.last != nil {
		p := t.last.Point
		s.LastKnown = &p
	}
	if !t.deadline.IsZero() {
		d := t.deadline
		s.PollDeadline = &d
	}
	return s
}

// LastKnown returns the most recent fix, if any.
func (t *Tracker) LastKnown() (domain.GeoPoint, bool) {
	if t.last == nil {
		return domain.GeoPoint{}, false
	}
	return t.last.Point, true
}

// CenterOnMe recentres the map on the cached position while tracking, and
// otherwise restarts the enable and permission flow.
func (t *Tracker) CenterOnMe() {
	switch t.state {
	case Tracking:
		if t.last == nil {
			t.log.Debug("center requested before first fix")
			return
		}
		t.out.Send(bridge.CenterOnPosition{Position: t.last.Point})
	case ServicesDisabled:
		t.check()
	default:
		t.log.Debug("center requested while flow in progress", "state", t.state)
	}
}

// AcknowledgeEnable is the user's answer to the enable prompt: start polling
// until services come on or the deadline passes.
func (t *Tracker) AcknowledgeEnable() {
	if t.state != ServicesDisabled || t.ctx == nil {
		return
	}
	t.transition(AwaitingEnable)
	epoch := t.begin()
	t.deadline = t.clk.Now().Add(t.cfg.PollTimeout)

	t.ticker = t.clk.Ticker(t.cfg.PollInterval)
	t.tickStop = make(chan struct{})
	go func(ticks <-chan time.Time, stop <-chan struct{}) {
		for {
			select {
			case <-ticks:
				t.loop.Post(func() { t.pollTick(epoch) })
			case <-stop:
				return
			}
		}
	}(t.ticker.C, t.tickStop)

	t.timeout = t.clk.AfterFunc(t.cfg.PollTimeout, func() {
		t.loop.Post(func() { t.pollExpired(epoch) })
	})
}

// Respond routes the user's answer to one of the tracker's prompts. It
// reports whether the alert kind belongs to the tracker.
func (t *Tracker) Respond(kind domain.AlertKind, action string) bool {
	switch kind {
	case domain.AlertEnableServices:
		t.notify.Dismiss(kind)
		if action == ActionEnable {
			t.AcknowledgeEnable()
		}
	case domain.AlertEnableTimedOut, domain.AlertLocationError:
		t.notify.Dismiss(kind)
		if action == ActionRetry {
			t.CenterOnMe()
		}
	case domain.AlertPermissionNeeded:
		t.notify.Dismiss(kind)
	default:
		return false
	}
	return true
}

func (t *Tracker) begin() uint64 {
	t.epoch++
	return t.epoch
}

func (t *Tracker) transition(to State) {
	from := t.state
	if from == to {
		return
	}
	t.state = to
	metrics.GPSStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	t.log.Info("gps state changed", "from", from, "to", to)
	if t.onChange != nil {
		t.onChange(from, to)
	}
}

func (t *Tracker) alert(a domain.Alert) {
	a.Time = t.clk.Now()
	t.notify.Show(a)
}

func (t *Tracker) check() {
	epoch := t.begin()
	ctx := t.ctx
	go func() {
		enabled, err := t.provider.ServicesEnabled(ctx)
		t.loop.Post(func() { t.onServicesChecked(epoch, enabled, err) })
	}()
}

func (t *Tracker) onServicesChecked(epoch uint64, enabled bool, err error) {
	if epoch != t.epoch || t.state == Stopped {
		return
	}
	switch {
	case err != nil:
		t.log.Warn("location services check failed", "error", err)
		t.servicesEnabled = false
		t.transition(ServicesDisabled)
		t.alert(locationErrorAlert(err))
	case !enabled:
		t.servicesEnabled = false
		t.transition(ServicesDisabled)
		t.alert(enableServicesAlert())
	default:
		t.servicesEnabled = true
		t.requestPermission()
	}
}

func (t *Tracker) pollTick(epoch uint64) {
	if epoch != t.epoch || t.state != AwaitingEnable {
		return
	}
	if !t.clk.Now().Before(t.deadline) {
		t.pollExpired(epoch)
		return
	}
	ctx := t.ctx
	go func() {
		enabled, err := t.provider.ServicesEnabled(ctx)
		t.loop.Post(func() { t.onPolled(epoch, enabled, err) })
	}()
}

func (t *Tracker) onPolled(epoch uint64, enabled bool, err error) {
	if epoch != t.epoch || t.state != AwaitingEnable {
		return
	}
	if err != nil {
		t.log.Debug("location services poll failed", "error", err)
		return
	}
	if !enabled {
		return
	}
	t.stopPolling()
	t.servicesEnabled = true
	t.requestPermission()
}

func (t *Tracker) pollExpired(epoch uint64) {
	if epoch != t.epoch || t.state != AwaitingEnable {
		return
	}
	t.stopPolling()
	metrics.GPSEnablePollTimeouts.Inc()
	t.transition(ServicesDisabled)
	t.alert(enableTimedOutAlert())
}

func (t *Tracker) stopPolling() {
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.tickStop)
		t.ticker = nil
	}
	if t.timeout != nil {
		t.timeout.Stop()
		t.timeout = nil
	}
	t.deadline = time.Time{}
}

type permissionResult struct {
	granted bool
	sub     ports.Subscription
	err     error
}

func (t *Tracker) requestPermission() {
	t.transition(PermissionPending)
	epoch := t.begin()
	ctx := t.ctx
	opts := t.cfg.Watch
	go func() {
		granted, err := t.provider.RequestPermission(ctx)
		if err != nil || !granted {
			t.loop.Post(func() { t.onPermission(epoch, permissionResult{granted: granted, err: err}) })
			return
		}
		sub, err := t.provider.WatchPosition(ctx, opts,
			func(fix domain.PositionFix) {
				t.loop.Post(func() { t.onFix(epoch, fix) })
			},
			func(err error) {
				t.loop.Post(func() { t.onWatchError(epoch, err) })
			},
		)
		if err != nil {
			if sub != nil {
				sub.Remove()
			}
			t.loop.Post(func() { t.onPermission(epoch, permissionResult{granted: true, err: err}) })
			return
		}
		held := &heldSub{Subscription: sub}
		if ctx.Err() != nil {
			held.Remove()
			return
		}
		taken := make(chan struct{})
		if !t.loop.Post(func() {
			defer close(taken)
			t.onPermission(epoch, permissionResult{granted: true, sub: held})
		}) {
			held.Remove()
			return
		}
		// A stopped loop discards queued tasks, so the handoff may never run.
		select {
		case <-taken:
		case <-ctx.Done():
			held.Remove()
		}
	}()
}

// heldSub is a subscription in flight from the permission goroutine to the
// loop. Either side may release it; only the first Remove reaches the provider.
type heldSub struct {
	ports.Subscription
	once sync.Once
}

func (s *heldSub) Remove() {
	if s.Subscription != nil {
		s.once.Do(s.Subscription.Remove)
	}
}

func (t *Tracker) onPermission(epoch uint64, r permissionResult) {
	if epoch != t.epoch || t.state != PermissionPending {
		if r.sub != nil {
			r.sub.Remove()
		}
		return
	}
	t.permissionGranted = r.granted
	switch {
	case !r.granted && r.err != nil:
		t.log.Warn("permission request failed", "error", r.err)
		t.transition(ServicesDisabled)
		t.alert(locationErrorAlert(r.err))
	case !r.granted:
		t.transition(ServicesDisabled)
		t.alert(permissionNeededAlert())
	case r.err != nil:
		t.log.Warn("position subscription failed", "error", r.err)
		t.transition(ServicesDisabled)
		t.alert(locationErrorAlert(r.err))
	default:
		t.enterTracking(r.sub)
	}
}

func (t *Tracker) enterTracking(sub ports.Subscription) {
	if !t.servicesEnabled || !t.permissionGranted {
		sub.Remove()
		return
	}
	t.sub = sub
	t.transition(Tracking)
	if t.last != nil {
		t.forward(*t.last)
	}
}

func (t *Tracker) onFix(epoch uint64, fix domain.PositionFix) {
	if epoch != t.epoch || (t.state != Tracking && t.state != PermissionPending) {
		return
	}
	if !fix.Point.Valid() {
		t.log.Warn("dropping invalid fix", "point", fix.Point)
		return
	}
	t.last = &fix
	if t.state != Tracking || !t.shouldForward(fix.Point) {
		return
	}
	t.forward(fix)
}

// shouldForward drops jitter from providers that ignore the watch options.
func (t *Tracker) shouldForward(p domain.GeoPoint) bool {
	if t.sentPoint == nil {
		return true
	}
	if t.clk.Now().Sub(t.sentAt) >= t.cfg.Watch.MinInterval {
		return true
	}
	return geospatial.Haversine(t.sentPoint.Lat, t.sentPoint.Lon, p.Lat, p.Lon) >= t.cfg.Watch.MinDistance
}

func (t *Tracker) forward(fix domain.PositionFix) {
	p := fix.Point
	t.sentPoint = &p
	t.sentAt = t.clk.Now()
	metrics.GPSFixesForwarded.Inc()
	t.out.Send(bridge.UpdateUserPosition{Position: p})
}

func (t *Tracker) onWatchError(epoch uint64, err error) {
	if epoch != t.epoch || t.state != Tracking {
		return
	}
	t.log.Warn("position stream error", "error", err)
	t.alert(locationErrorAlert(err))
}
