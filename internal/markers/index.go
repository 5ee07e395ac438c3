package markers

import "github.com/samirrijal/wastemap/internal/core/domain"

// Index resolves marker taps back to the host's locations.
type Index struct {
	byKey   map[string]domain.TrashLocation
	ordered []domain.TrashLocation
}

func NewIndex(locs []domain.TrashLocation) *Index {
	idx := &Index{
		byKey:   make(map[string]domain.TrashLocation, len(locs)),
		ordered: append([]domain.TrashLocation(nil), locs...),
	}
	for _, l := range locs {
		k := l.MarkerKey()
		if _, ok := idx.byKey[k]; !ok {
			idx.byKey[k] = l
		}
	}
	return idx
}

// Resolve finds the location for a tap. A non-empty key is authoritative;
// otherwise the first location at exactly p wins.
func (i *Index) Resolve(key string, p domain.GeoPoint) (domain.TrashLocation, bool) {
	if i == nil {
		return domain.TrashLocation{}, false
	}
	if key != "" {
		l, ok := i.byKey[key]
		return l, ok
	}
	for _, l := range i.ordered {
		if l.Coordinates.Equal(p) {
			return l, true
		}
	}
	return domain.TrashLocation{}, false
}

// Len returns the number of indexed locations.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.ordered)
}
