package telemetry

// Span and attribute names used for instrumentation.
const (
	SpanGeocodeSearch   = "geocode.search"
	SpanBinsList        = "bins.list"
	AttrGeocodeQuery    = "geocode.query"
	AttrGeocodeResults  = "geocode.results"
	AttrGeocodeCacheHit = "geocode.cache_hit"
)
