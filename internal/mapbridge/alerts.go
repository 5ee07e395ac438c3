package mapbridge

import (
	"sort"
	"sync"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// AlertBoard is an in-memory Notifier. A native shell polls it (or is told
// through OnChange) and renders whatever is active.
type AlertBoard struct {
	mu       sync.Mutex
	active   map[domain.AlertKind]domain.Alert
	onChange func([]domain.Alert)
}

func NewAlertBoard() *AlertBoard {
	return &AlertBoard{active: make(map[domain.AlertKind]domain.Alert)}
}

// OnChange registers fn to be called with the active set after every change.
// fn must not block.
func (a *AlertBoard) OnChange(fn func([]domain.Alert)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Show replaces any alert of the same kind.
func (a *AlertBoard) Show(alert domain.Alert) {
	a.mu.Lock()
	a.active[alert.Kind] = alert
	fn, list := a.onChange, a.listLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(list)
	}
}

func (a *AlertBoard) Dismiss(kind domain.AlertKind) {
	a.mu.Lock()
	if _, ok := a.active[kind]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.active, kind)
	fn, list := a.onChange, a.listLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(list)
	}
}

// Active returns the alerts on screen, oldest first.
func (a *AlertBoard) Active() []domain.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listLocked()
}

func (a *AlertBoard) listLocked() []domain.Alert {
	out := make([]domain.Alert, 0, len(a.active))
	for _, al := range a.active {
		out = append(out, al)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}
