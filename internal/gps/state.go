// Package gps tracks the device position and forwards it to the map surface,
// walking the user through enabling location services and granting
// permission when needed.
package gps

import (
	"time"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

// State is a tracker state.
type State int

const (
	Unchecked State = iota
	ServicesDisabled
	AwaitingEnable
	PermissionPending
	Tracking
	Stopped
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case ServicesDisabled:
		return "services_disabled"
	case AwaitingEnable:
		return "awaiting_enable"
	case PermissionPending:
		return "permission_pending"
	case Tracking:
		return "tracking"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is a read-only view of the tracker for status endpoints and tests.
type Session struct {
	State             State            `json:"-"`
	StateName         string           `json:"state"`
	ServicesEnabled   bool             `json:"services_enabled"`
	PermissionGranted bool             `json:"permission_granted"`
	LastKnown         *domain.GeoPoint `json:"last_known,omitempty"`
	Subscribed        bool             `json:"subscribed"`
	PollDeadline      *time.Time       `json:"poll_deadline,omitempty"`
}

// Config controls polling and the position stream.
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Watch        ports.WatchOptions
}

// DefaultConfig polls once a second for thirty seconds and asks for high
// accuracy fixes every 10 s or 10 m.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		PollTimeout:  30 * time.Second,
		Watch: ports.WatchOptions{
			Accuracy:    ports.AccuracyHigh,
			MinInterval: 10 * time.Second,
			MinDistance: 10,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.Watch.MinInterval <= 0 {
		c.Watch.MinInterval = d.Watch.MinInterval
	}
	if c.Watch.MinDistance <= 0 {
		c.Watch.MinDistance = d.Watch.MinDistance
	}
	return c
}

// Prompt actions understood by Respond.
const (
	ActionEnable = "enable"
	ActionRetry  = "retry"
	ActionCancel = "cancel"
	ActionOK     = "ok"
)

func enableServicesAlert() domain.Alert {
	return domain.Alert{
		Kind:    domain.AlertEnableServices,
		Title:   "Enable Location Services",
		Message: "Please open Quick Settings or Control Center and tap the Location icon to enable GPS.",
		Actions: []domain.AlertAction{
			{ID: ActionEnable, Label: "OK, I'll Enable"},
			{ID: ActionCancel, Label: "Cancel", Cancel: true},
		},
		Blocking: true,
	}
}

func permissionNeededAlert() domain.Alert {
	return domain.Alert{
		Kind:    domain.AlertPermissionNeeded,
		Title:   "Permission Needed",
		Message: "Location permission is required to show your position on the map.",
		Actions: []domain.AlertAction{{ID: ActionOK, Label: "OK"}},
	}
}

func enableTimedOutAlert() domain.Alert {
	return domain.Alert{
		Kind:    domain.AlertEnableTimedOut,
		Title:   "Location Services Still Off",
		Message: "We stopped waiting for location services. Tap the location button to try again.",
		Actions: []domain.AlertAction{{ID: ActionRetry, Label: "Try Again"}, {ID: ActionCancel, Label: "Cancel", Cancel: true}},
	}
}

func locationErrorAlert(err error) domain.Alert {
	return domain.Alert{
		Kind:    domain.AlertLocationError,
		Title:   "Location Unavailable",
		Message: "Your position could not be determined: " + err.Error(),
		Actions: []domain.AlertAction{{ID: ActionRetry, Label: "Retry"}, {ID: ActionCancel, Label: "Dismiss", Cancel: true}},
	}
}
