package geocode

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
	"github.com/samirrijal/wastemap/internal/pkg/telemetry"
)

// Cached is a read-through cache in front of another geocoder.
type Cached struct {
	next  ports.Geocoder
	cache ports.CacheService
	ttl   int // seconds
}

func NewCached(next ports.Geocoder, cache ports.CacheService, ttlSeconds int) *Cached {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &Cached{next: next, cache: cache, ttl: ttlSeconds}
}

// CacheKey normalises q so that case and spacing variants share an entry.
func CacheKey(q string) string {
	return "geocode:search:" + strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (c *Cached) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	key := CacheKey(query)
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil && data != nil {
			var results []domain.SearchResult
			if err := json.Unmarshal(data, &results); err == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				trace.SpanFromContext(ctx).SetAttributes(attribute.Bool(telemetry.AttrGeocodeCacheHit, true))
				return results, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	results, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	// Empty answers are cached too; they are as expensive to ask for.
	if c.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			_ = c.cache.Set(ctx, key, data, c.ttl)
		}
	}
	return results, nil
}
