package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/wastemap/internal/core/domain"
)

// binsFeatureCollection renders bins as GeoJSON points. Properties carry the
// marker fill so that any GeoJSON viewer shows the same colours as the map.
func binsFeatureCollection(bins []domain.TrashLocation, theme domain.Theme) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range bins {
		f := geojson.NewFeature(orb.Point{b.Coordinates.Lon, b.Coordinates.Lat})
		if b.ID != "" {
			f.ID = b.ID
		}
		style := theme.MarkerStyle(b.Status)
		f.Properties["label"] = b.Label
		f.Properties["status"] = string(b.Status)
		f.Properties["marker-color"] = style.Fill
		fc.Append(f)
	}
	return fc
}

// BinsGeoJSONHandler exports every bin as a GeoJSON FeatureCollection.
// ?dark=true selects the dark palette.
func BinsGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bins, err := deps.Bins.List(c.UserContext())
		if err != nil {
			return binError(c, err)
		}
		data, err := binsFeatureCollection(bins, domain.Theme{Dark: c.QueryBool("dark")}).MarshalJSON()
		if err != nil {
			return errInternal(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}
