// Package geospatial has the small amount of spherical geometry the map
// needs. Distances are in meters on a spherical earth.
package geospatial

import "math"

const (
	earthRadiusMeters = 6_371_000.0
	// metersPerDegree is the length of one degree of latitude.
	metersPerDegree = earthRadiusMeters * math.Pi / 180
)

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dLat := p2 - p1
	dLon := radians(lon2 - lon1)

	h := sq(math.Sin(dLat/2)) + math.Cos(p1)*math.Cos(p2)*sq(math.Sin(dLon/2))
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset moves a point north and east by the given number of meters using a
// local flat approximation, accurate to well under a meter at city scale.
func Offset(lat, lon, north, east float64) (float64, float64) {
	return lat + north/metersPerDegree, lon + east/(metersPerDegree*math.Cos(radians(lat)))
}

// BoundingBox returns the box enclosing a circle of radiusMeters around a
// point. It is a prefilter; callers confirm with Haversine.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	minLat, minLon = Offset(lat, lon, -radiusMeters, -radiusMeters)
	maxLat, maxLon = Offset(lat, lon, radiusMeters, radiusMeters)
	return minLat, minLon, maxLat, maxLon
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func sq(x float64) float64 { return x * x }
