package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BinStatus is the fill state of a collection point.
type BinStatus string

const (
	BinEmpty BinStatus = "empty"
	BinFull  BinStatus = "full"
)

var (
	ErrInvalidStatus = errors.New("invalid bin status")
	ErrNotFound      = errors.New("not found")
)

// ParseBinStatus accepts "empty"/"full" in any case.
func ParseBinStatus(s string) (BinStatus, error) {
	switch BinStatus(strings.ToLower(strings.TrimSpace(s))) {
	case BinEmpty:
		return BinEmpty, nil
	case BinFull:
		return BinFull, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// TrashLocation is a waste-collection point shown as a marker on the map.
// The bridge never mutates it; it only renders it.
type TrashLocation struct {
	ID          string    `json:"id,omitempty"`
	Label       string    `json:"label"`
	Status      BinStatus `json:"status"`
	Coordinates GeoPoint  `json:"coordinates"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// MarkerKey is the identity used for marker diffing and tap resolution.
// Rows that predate explicit IDs fall back to the coordinate pair.
func (l TrashLocation) MarkerKey() string {
	if l.ID != "" {
		return "id:" + l.ID
	}
	return CoordinateKey(l.Coordinates)
}

// CoordinateKey renders a point with full float precision so that two keys are
// equal exactly when the coordinates are equal.
func CoordinateKey(p GeoPoint) string {
	return "coord:" + strconv.FormatFloat(p.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'g', -1, 64)
}

// Validate checks the fields required to render and persist a location.
func (l TrashLocation) Validate() error {
	var errs []string
	if strings.TrimSpace(l.Label) == "" {
		errs = append(errs, "label is required")
	}
	if l.Status != BinEmpty && l.Status != BinFull {
		errs = append(errs, fmt.Sprintf("status must be %q or %q", BinEmpty, BinFull))
	}
	if !l.Coordinates.Valid() {
		errs = append(errs, "coordinates out of range")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid location: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SearchResult is one geocoding hit.
type SearchResult struct {
	Label       string   `json:"label"`
	Coordinates GeoPoint `json:"coordinates"`
}

// PositionFix is a single reading from the device location service.
type PositionFix struct {
	Point    GeoPoint  `json:"point"`
	Accuracy float64   `json:"accuracy,omitempty"` // meters
	Time     time.Time `json:"time"`
}

// BinEvent is broadcast when the set of collection points changes.
type BinEvent struct {
	Kind     string        `json:"kind"` // "created" | "updated" | "deleted"
	Location TrashLocation `json:"location"`
	Time     time.Time     `json:"time"`
}
