// Package bridge carries typed messages between the map host and the embedded
// map surface over an asynchronous text channel.
//
// Every frame is a flat JSON object with a "type" discriminant. There is no
// envelope id, no correlation and no acknowledgement.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// Type is the message discriminant.
type Type string

// Host to surface.
const (
	TypeUpdateLocations    Type = "updateLocations"
	TypeUpdateUserPosition Type = "updateUserPosition"
	TypeCenterOnPosition   Type = "centerOnPosition"
	TypeNavigateToLocation Type = "navigateToLocation"
	TypeSetSelectionMode   Type = "setSelectionMode"
	TypeReloadSurface      Type = "reloadSurface"
)

// Surface to host.
const (
	TypeSurfaceReady Type = "surfaceReady"
	TypeMapTapped    Type = "mapTapped"
	TypeMarkerTapped Type = "markerTapped"
	TypeSurfaceError Type = "surfaceError"

	// typeLegacyMapClick is what older surface builds emit for a tap.
	typeLegacyMapClick Type = "mapClick"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is one of the concrete message structs below.
type Message interface {
	MessageType() Type
}

type UpdateLocations struct {
	Locations []domain.TrashLocation `json:"locations"`
}

type UpdateUserPosition struct {
	Position domain.GeoPoint `json:"position"`
}

type CenterOnPosition struct {
	Position domain.GeoPoint `json:"position"`
}

type NavigateToLocation struct {
	Location domain.TrashLocation `json:"location"`
}

type SetSelectionMode struct {
	Enabled bool `json:"enabled"`
}

type ReloadSurface struct{}

type SurfaceReady struct{}

type MapTapped struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type MarkerTapped struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	// Key is the marker identity when the surface knows it; empty for
	// coordinate-only markers.
	Key string `json:"key,omitempty"`
}

type SurfaceError struct {
	Message string `json:"message"`
}

func (UpdateLocations) MessageType() Type    { return TypeUpdateLocations }
func (UpdateUserPosition) MessageType() Type { return TypeUpdateUserPosition }
func (CenterOnPosition) MessageType() Type   { return TypeCenterOnPosition }
func (NavigateToLocation) MessageType() Type { return TypeNavigateToLocation }
func (SetSelectionMode) MessageType() Type   { return TypeSetSelectionMode }
func (ReloadSurface) MessageType() Type      { return TypeReloadSurface }
func (SurfaceReady) MessageType() Type       { return TypeSurfaceReady }
func (MapTapped) MessageType() Type          { return TypeMapTapped }
func (MarkerTapped) MessageType() Type       { return TypeMarkerTapped }
func (SurfaceError) MessageType() Type       { return TypeSurfaceError }

// Encode serializes m into a single flat JSON object.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	head, _ := json.Marshal(string(m.MessageType()))

	var buf bytes.Buffer
	buf.Grow(len(body) + len(head) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(head)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type peek struct {
	Type Type `json:"type"`
}

// tapWire accepts both "lon" and the legacy "lng" spelling.
type tapWire struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
	Lng *float64 `json:"lng"`
	Key string   `json:"key"`
}

func (w tapWire) point() (float64, float64, error) {
	lon := w.Lon
	if lon == nil {
		lon = w.Lng
	}
	if w.Lat == nil || lon == nil {
		return 0, 0, fmt.Errorf("%w: lat and lon are required", ErrMalformed)
	}
	p := domain.GeoPoint{Lat: *w.Lat, Lon: *lon}
	if !p.Valid() {
		return 0, 0, fmt.Errorf("%w: coordinates out of range", ErrMalformed)
	}
	return p.Lat, p.Lon, nil
}

// Decode parses one frame. It never panics: malformed input yields an error
// wrapping ErrMalformed or ErrUnknownType.
func Decode(data []byte) (Message, error) {
	var p peek
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch p.Type {
	case TypeSurfaceReady:
		return SurfaceReady{}, nil
	case TypeReloadSurface:
		return ReloadSurface{}, nil
	case TypeMapTapped, typeLegacyMapClick:
		var w tapWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		lat, lon, err := w.point()
		if err != nil {
			return nil, err
		}
		return MapTapped{Lat: lat, Lon: lon}, nil
	case TypeMarkerTapped:
		var w tapWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		lat, lon, err := w.point()
		if err != nil {
			return nil, err
		}
		return MarkerTapped{Lat: lat, Lon: lon, Key: w.Key}, nil
	case TypeSurfaceError:
		var m SurfaceError
		return decodeInto(data, m)
	case TypeUpdateLocations:
		var m UpdateLocations
		return decodeInto(data, m)
	case TypeUpdateUserPosition:
		var m UpdateUserPosition
		return decodeInto(data, m)
	case TypeCenterOnPosition:
		var m CenterOnPosition
		return decodeInto(data, m)
	case TypeNavigateToLocation:
		var m NavigateToLocation
		return decodeInto(data, m)
	case TypeSetSelectionMode:
		var m SetSelectionMode
		return decodeInto(data, m)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}

func decodeInto[M Message](data []byte, m M) (Message, error) {
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, m.MessageType(), err)
	}
	return m, nil
}

// Inbound reports whether t travels surface to host.
func Inbound(t Type) bool {
	switch t {
	case TypeSurfaceReady, TypeMapTapped, TypeMarkerTapped, TypeSurfaceError:
		return true
	}
	return false
}
