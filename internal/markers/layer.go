package markers

import (
	"sort"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// Marker is one rendered point on the surface.
type Marker struct {
	Location  domain.TrashLocation
	Style     domain.MarkerStyle
	PopupOpen bool
}

// Layer is the surface-side marker set. It is not safe for concurrent use;
// the surface owns it from a single goroutine.
type Layer struct {
	theme   domain.Theme
	markers map[string]*Marker
}

func NewLayer(theme domain.Theme) *Layer {
	return &Layer{theme: theme, markers: make(map[string]*Marker)}
}

// Apply brings the layer in line with locs and returns what changed.
func (l *Layer) Apply(locs []domain.TrashLocation) Changes {
	c := Diff(l.rendered(), locs)
	for _, k := range c.Remove {
		delete(l.markers, k)
	}
	for _, loc := range c.Restyle {
		m := l.markers[loc.MarkerKey()]
		m.Location = loc
		m.Style = l.theme.MarkerStyle(loc.Status)
	}
	for _, loc := range c.Add {
		l.markers[loc.MarkerKey()] = &Marker{Location: loc, Style: l.theme.MarkerStyle(loc.Status)}
	}
	return c
}

func (l *Layer) rendered() map[string]domain.TrashLocation {
	out := make(map[string]domain.TrashLocation, len(l.markers))
	for k, m := range l.markers {
		out[k] = m.Location
	}
	return out
}

// SetTheme restyles every marker for a new palette.
func (l *Layer) SetTheme(theme domain.Theme) {
	l.theme = theme
	for _, m := range l.markers {
		m.Style = theme.MarkerStyle(m.Location.Status)
	}
}

// Len returns the number of rendered markers.
func (l *Layer) Len() int { return len(l.markers) }

// Keys returns the rendered marker keys in sorted order.
func (l *Layer) Keys() []string {
	keys := make([]string, 0, len(l.markers))
	for k := range l.markers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a copy of the marker stored under key.
func (l *Layer) Get(key string) (Marker, bool) {
	m, ok := l.markers[key]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Lookup finds the marker a navigation target refers to: by key first, then
// by exact coordinates for targets that carry no id.
func (l *Layer) Lookup(target domain.TrashLocation) (string, bool) {
	if _, ok := l.markers[target.MarkerKey()]; ok {
		return target.MarkerKey(), true
	}
	for _, k := range l.Keys() {
		if l.markers[k].Location.Coordinates.Equal(target.Coordinates) {
			return k, true
		}
	}
	return "", false
}

// OpenPopup opens key's popup and closes any other. It reports whether the
// marker exists.
func (l *Layer) OpenPopup(key string) bool {
	m, ok := l.markers[key]
	if !ok {
		return false
	}
	for _, other := range l.markers {
		other.PopupOpen = false
	}
	m.PopupOpen = true
	return true
}

// OpenPopups returns the keys whose popup is open.
func (l *Layer) OpenPopups() []string {
	var out []string
	for _, k := range l.Keys() {
		if l.markers[k].PopupOpen {
			out = append(out, k)
		}
	}
	return out
}
