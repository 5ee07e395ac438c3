// Package markers keeps the surface's marker layer in step with the host's
// list of collection points.
package markers

import (
	"time"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// Viewport constants shared by the headless surface and the embedded page.
const (
	DefaultZoom  = 14
	NavigateZoom = 16
	CenterZoom   = 17
	FlyDuration  = time.Second
)

// Changes is the work needed to turn one rendered set into the next.
type Changes struct {
	Add     []domain.TrashLocation
	Remove  []string
	Restyle []domain.TrashLocation
}

// Empty reports whether applying c would be a no-op.
func (c Changes) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0 && len(c.Restyle) == 0
}

// Dedupe drops every location whose marker key was already seen. The first
// occurrence wins, matching tap resolution.
func Dedupe(locs []domain.TrashLocation) []domain.TrashLocation {
	seen := make(map[string]struct{}, len(locs))
	out := make([]domain.TrashLocation, 0, len(locs))
	for _, l := range locs {
		k := l.MarkerKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Diff compares the rendered set (by marker key) with next.
// Markers present in both with identical label, status and position are left
// alone; the rest of the shared markers are restyled in place.
func Diff(rendered map[string]domain.TrashLocation, next []domain.TrashLocation) Changes {
	next = Dedupe(next)
	var c Changes
	keep := make(map[string]struct{}, len(next))
	for _, l := range next {
		k := l.MarkerKey()
		keep[k] = struct{}{}
		cur, ok := rendered[k]
		switch {
		case !ok:
			c.Add = append(c.Add, l)
		case !sameMarker(cur, l):
			c.Restyle = append(c.Restyle, l)
		}
	}
	for k := range rendered {
		if _, ok := keep[k]; !ok {
			c.Remove = append(c.Remove, k)
		}
	}
	return c
}

func sameMarker(a, b domain.TrashLocation) bool {
	return a.Label == b.Label && a.Status == b.Status && a.Coordinates.Equal(b.Coordinates)
}

// SameList reports whether a and b would render identically, in order.
func SameList(a, b []domain.TrashLocation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].MarkerKey() != b[i].MarkerKey() || !sameMarker(a[i], b[i]) {
			return false
		}
	}
	return true
}
