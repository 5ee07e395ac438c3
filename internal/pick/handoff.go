package pick

import (
	"log/slog"
	"time"

	"github.com/samirrijal/wastemap/internal/bridge"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

// Sender is the outbound half of the bridge channel.
type Sender interface {
	Send(bridge.Message)
}

var selectionBanner = domain.Alert{
	Kind:    domain.AlertSelectionBanner,
	Title:   "Select a location",
	Message: "Tap on the map to choose the bin's position.",
	Actions: []domain.AlertAction{{ID: "cancel", Label: "Cancel", Cancel: true}},
}

// Handoff runs selection mode around a Slot. Every method must be called on
// the event loop.
type Handoff struct {
	slot   Slot
	out    Sender
	notify ports.Notifier
	now    func() time.Time
	log    *slog.Logger
}

func NewHandoff(out Sender, notify ports.Notifier, now func() time.Time, log *slog.Logger) *Handoff {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handoff{out: out, notify: notify, now: now, log: log.With("component", "pick")}
}

// BeginPick arms selection mode. A pick already in progress is replaced and
// its callback never runs.
func (h *Handoff) BeginPick(cb Callback) {
	if cb == nil {
		return
	}
	replaced := h.slot.Active()
	h.slot.Begin(cb)
	if replaced {
		h.log.Debug("pending pick replaced")
		return
	}
	h.out.Send(bridge.SetSelectionMode{Enabled: true})
	banner := selectionBanner
	banner.Time = h.now()
	h.notify.Show(banner)
}

// HandleMapTapped delivers the tap to the pending callback, if any. It
// reports whether the tap was consumed.
func (h *Handoff) HandleMapTapped(p domain.GeoPoint) bool {
	cb, ok := h.slot.Take()
	if !ok {
		h.log.Debug("map tap outside selection mode ignored", "point", p)
		return false
	}
	h.leaveSelection()
	cb(p)
	return true
}

// CancelPick leaves selection mode without invoking the callback.
func (h *Handoff) CancelPick() {
	if !h.slot.Active() {
		return
	}
	h.slot.Cancel()
	h.leaveSelection()
}

// Active reports whether selection mode is on.
func (h *Handoff) Active() bool {
	return h.slot.Active()
}

func (h *Handoff) leaveSelection() {
	h.out.Send(bridge.SetSelectionMode{Enabled: false})
	h.notify.Dismiss(domain.AlertSelectionBanner)
}
