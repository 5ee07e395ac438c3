package domain

import "time"

// AlertKind identifies a user-facing prompt so that a response can be routed back.
type AlertKind string

const (
	AlertEnableServices   AlertKind = "enable_location_services"
	AlertPermissionNeeded AlertKind = "permission_needed"
	AlertLocationError    AlertKind = "location_error"
	AlertEnableTimedOut   AlertKind = "enable_timed_out"
	AlertSearchFailed     AlertKind = "search_failed"
	AlertSurfaceError     AlertKind = "surface_error"
	AlertSelectionBanner  AlertKind = "selection_banner"
)

// AlertAction is a button offered with an alert.
type AlertAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Cancel bool   `json:"cancel,omitempty"`
}

// Alert is a user-visible message, optionally blocking until answered.
type Alert struct {
	Kind     AlertKind     `json:"kind"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Actions  []AlertAction `json:"actions,omitempty"`
	Blocking bool          `json:"blocking"`
	Time     time.Time     `json:"time"`
}
