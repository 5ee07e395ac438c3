// Package geocode resolves free-text place queries and drives the debounced
// search box of the map screen.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/pkg/metrics"
	"github.com/samirrijal/wastemap/internal/pkg/telemetry"
)

var ErrUpstream = errors.New("geocoding service error")

// NominatimConfig points the client at an OSM Nominatim instance.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Limit     int
	Timeout   time.Duration
}

// Nominatim implements ports.Geocoder against the OSM search API.
type Nominatim struct {
	client *fasthttp.Client
	cfg    NominatimConfig
}

func NewNominatim(cfg NominatimConfig) *Nominatim {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wastemap/1.0"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Nominatim{
		client: &fasthttp.Client{
			Name:                cfg.UserAgent,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		cfg: cfg,
	}
}

// nominatimPlace is the subset of a search hit we read. Coordinates arrive
// as strings.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search queries /search and converts the hits. Hits with unparsable
// coordinates are skipped.
func (n *Nominatim) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGeocodeSearch,
		trace.WithAttributes(attribute.String(telemetry.AttrGeocodeQuery, query)),
	)
	defer span.End()

	start := time.Now()
	results, err := n.search(ctx, query)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int(telemetry.AttrGeocodeResults, len(results)))
	}
	metrics.GeocodeRequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return results, err
}

func (n *Nominatim) searchURL(query string) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(n.cfg.Limit))
	return n.cfg.BaseURL + "/search?" + q.Encode()
}

type response struct {
	status int
	body   []byte
	err    error
}

func (n *Nominatim) search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// fasthttp has no context support; the request runs on its own
	// goroutine so that cancellation returns immediately.
	done := make(chan response, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(n.searchURL(query))
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.SetUserAgent(n.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		err := n.client.DoDeadline(req, resp, deadline)
		done <- response{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
			err:    err,
		}
	}()

	var r response
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, r.err)
	}
	if r.status != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, r.status)
	}
	return parsePlaces(r.body)
}

func parsePlaces(body []byte) ([]domain.SearchResult, error) {
	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	out := make([]domain.SearchResult, 0, len(places))
	for _, p := range places {
		lat, err1 := strconv.ParseFloat(p.Lat, 64)
		lon, err2 := strconv.ParseFloat(p.Lon, 64)
		pt := domain.GeoPoint{Lat: lat, Lon: lon}
		if err1 != nil || err2 != nil || !pt.Valid() {
			continue
		}
		out = append(out, domain.SearchResult{Label: p.DisplayName, Coordinates: pt})
	}
	return out, nil
}
