package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/usecases"
)

func TestListBins_Pagination(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("GET", "/v1/bins?offset=1&limit=1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result struct {
		Data       []domain.TrashLocation `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 2 || result.Pagination.Offset != 1 {
		t.Errorf("unexpected pagination %+v", result.Pagination)
	}
	if len(result.Data) != 1 || result.Data[0].ID != "bin-b" {
		t.Errorf("expected the second bin, got %+v", result.Data)
	}
}

func TestListBins_LinkHeaders(t *testing.T) {
	e := newEnv(t)

	resp, err := e.app.Test(httptest.NewRequest("GET", "/v1/bins?offset=0&limit=1", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) || strings.Contains(link, `rel="prev"`) {
		t.Errorf("unexpected Link header %q", link)
	}
}

func TestListBins_ETag(t *testing.T) {
	e := newEnv(t)

	resp, err := e.app.Test(httptest.NewRequest("GET", "/v1/bins", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=10" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}

	req := httptest.NewRequest("GET", "/v1/bins", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = e.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestListBins_RepoErrorIsHidden(t *testing.T) {
	e := newEnv(t)
	e.repo.listErr = errors.New("connection refused")

	status, body := e.do("GET", "/v1/bins", "")
	if status != 500 {
		t.Fatalf("expected 500, got %d", status)
	}
	if strings.Contains(string(body), "connection refused") {
		t.Error("internal error details must not leak")
	}
}

func TestGetBin(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("GET", "/v1/bins/bin-a", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if b := decode[domain.TrashLocation](t, body); b.Label != "Plaza Moyua" {
		t.Errorf("expected Plaza Moyua, got %q", b.Label)
	}

	status, _ = e.do("GET", "/v1/bins/missing", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestNearbyBins(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("GET", "/v1/bins/nearby?lat=43.2627&lon=-2.9353&radius=300", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	got := decode[[]usecases.NearbyBin](t, body)
	if len(got) != 1 || got[0].ID != "bin-a" {
		t.Fatalf("expected only bin-a within 300 m, got %+v", got)
	}
}

func TestNearbyBins_Validation(t *testing.T) {
	e := newEnv(t)

	for _, q := range []string{
		"/v1/bins/nearby",
		"/v1/bins/nearby?lat=43&lon=-2&radius=0",
		"/v1/bins/nearby?lat=95&lon=0",
	} {
		if status, _ := e.do("GET", q, ""); status != 400 {
			t.Errorf("%s: expected 400, got %d", q, status)
		}
	}
}

func TestCreateBin_RefreshesMap(t *testing.T) {
	e := newEnv(t)
	e.connect()

	status, body := e.do("POST", "/v1/bins", `{"label":"Riverside","status":"FULL","coordinates":{"lat":43.26,"lon":-2.94}}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	created := decode[domain.TrashLocation](t, body)
	if created.Status != domain.BinFull {
		t.Errorf("expected status normalised to full, got %q", created.Status)
	}

	e.eventually(func() bool { return len(e.surf.Snapshot().Keys) == 3 })
}

func TestCreateBin_Validation(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do("POST", "/v1/bins", `{"label":"X","status":"overflowing","coordinates":{"lat":1,"lon":1}}`)
	if status != 400 {
		t.Fatalf("bad status: expected 400, got %d", status)
	}
	status, _ = e.do("POST", "/v1/bins", `{"label":"","coordinates":{"lat":1,"lon":1}}`)
	if status != 400 {
		t.Fatalf("empty label: expected 400, got %d", status)
	}
	status, _ = e.do("POST", "/v1/bins", `{"label":"No point"}`)
	if status != 409 {
		t.Fatalf("no coordinates: expected 409, got %d", status)
	}
}

func TestAddBinFlow_PickThenSubmit(t *testing.T) {
	e := newEnv(t)
	e.connect()

	status, _ := e.do("POST", "/v1/bins/pick", "")
	if status != 202 {
		t.Fatalf("expected 202, got %d", status)
	}
	e.eventually(func() bool { return e.surf.Snapshot().Selecting })

	tapped := domain.GeoPoint{Lat: 43.2611, Lon: -2.9322}
	e.surf.TapMap(tapped)
	e.eventually(func() bool {
		status, _ := e.do("GET", "/v1/bins/draft", "")
		return status == 200
	})
	e.eventually(func() bool { return !e.surf.Snapshot().Selecting })

	status, body := e.do("POST", "/v1/bins", `{"label":"Picked"}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	if b := decode[domain.TrashLocation](t, body); !b.Coordinates.Equal(tapped) {
		t.Errorf("expected picked coordinates %v, got %v", tapped, b.Coordinates)
	}

	status, _ = e.do("GET", "/v1/bins/draft", "")
	if status != 404 {
		t.Fatalf("draft should be consumed, got %d", status)
	}
}

func TestUpdateBinStatus(t *testing.T) {
	e := newEnv(t)

	status, body := e.do("PATCH", "/v1/bins/bin-a", `{"status":"full"}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if b := decode[domain.TrashLocation](t, body); b.Status != domain.BinFull {
		t.Errorf("expected full, got %q", b.Status)
	}

	props, err := e.bridge.Props(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if props.Locations[0].Status != domain.BinFull {
		t.Error("map locations should be refreshed after a status change")
	}

	status, _ = e.do("PATCH", "/v1/bins/missing", `{"status":"full"}`)
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestBinsGeoJSON(t *testing.T) {
	e := newEnv(t)

	resp, err := e.app.Test(httptest.NewRequest("GET", "/v1/bins.geojson?dark=true", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected collection %+v", fc)
	}
	f := fc.Features[1]
	if f.ID != "bin-b" {
		t.Errorf("expected id bin-b, got %q", f.ID)
	}
	// GeoJSON is lon, lat.
	if f.Geometry.Coordinates[0] != campus.Coordinates.Lon || f.Geometry.Coordinates[1] != campus.Coordinates.Lat {
		t.Errorf("unexpected coordinates %v", f.Geometry.Coordinates)
	}
	if f.Properties["marker-color"] != "#F44336" {
		t.Errorf("expected dark full colour, got %v", f.Properties["marker-color"])
	}
}
