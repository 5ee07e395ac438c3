package simdevice

import (
	"math"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/pkg/geospatial"
)

// Loop returns n points on a circle of radiusMeters around center, walked
// clockwise starting due north.
func Loop(center domain.GeoPoint, radiusMeters float64, n int) []domain.GeoPoint {
	if n < 1 {
		n = 1
	}
	out := make([]domain.GeoPoint, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(n)
		lat, lon := geospatial.Offset(center.Lat, center.Lon, radiusMeters*math.Cos(a), radiusMeters*math.Sin(a))
		out[i] = domain.GeoPoint{Lat: lat, Lon: lon}
	}
	return out
}
