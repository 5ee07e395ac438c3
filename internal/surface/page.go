package surface

import (
	_ "embed"
	"html/template"
	"io"
	"strings"

	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/markers"
)

//go:embed assets/map.html
var pageHTML string

//go:embed assets/map.js
var pageJS string

var pageTmpl = template.Must(template.New("map").Parse(pageHTML))

const (
	tileURLPattern = "https://{s}.basemaps.cartocdn.com/%s/{z}/{x}/{y}{r}.png"
	attribution    = "&copy; OpenStreetMap contributors &copy; CARTO"
)

// PageConfig is what the embedded page needs to boot.
type PageConfig struct {
	Title   string
	Theme   domain.Theme
	Center  domain.GeoPoint
	WSPath  string
	TileURL string // optional; %s is replaced by the theme's tile style
}

type pageZoom struct {
	Default  int `json:"default"`
	Navigate int `json:"navigate"`
	Center   int `json:"center"`
}

type pagePalette struct {
	Empty domain.MarkerStyle `json:"empty"`
	Full  domain.MarkerStyle `json:"full"`
}

type pageBoot struct {
	Center      domain.GeoPoint `json:"center"`
	Zoom        pageZoom        `json:"zoom"`
	FlySeconds  float64         `json:"flySeconds"`
	TileURL     string          `json:"tileURL"`
	Attribution string          `json:"attribution"`
	WSPath      string          `json:"wsPath"`
	Palette     pagePalette     `json:"palette"`
}

// RenderPage writes the map page for cfg.
func RenderPage(w io.Writer, cfg PageConfig) error {
	if cfg.Title == "" {
		cfg.Title = "Bin map"
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws/surface"
	}
	tiles := cfg.TileURL
	if tiles == "" {
		tiles = tileURLPattern
	}
	boot := pageBoot{
		Center:      cfg.Center,
		Zoom:        pageZoom{Default: markers.DefaultZoom, Navigate: markers.NavigateZoom, Center: markers.CenterZoom},
		FlySeconds:  markers.FlyDuration.Seconds(),
		TileURL:     fmtTiles(tiles, cfg.Theme.TileStyle()),
		Attribution: attribution,
		WSPath:      cfg.WSPath,
		Palette: pagePalette{
			Empty: cfg.Theme.MarkerStyle(domain.BinEmpty),
			Full:  cfg.Theme.MarkerStyle(domain.BinFull),
		},
	}
	return pageTmpl.Execute(w, struct {
		Title      string
		Background template.CSS
		Config     pageBoot
		Script     template.JS
	}{
		Title:      cfg.Title,
		Background: template.CSS(cfg.Theme.Background()),
		Config:     boot,
		Script:     template.JS(pageJS),
	})
}

// fmtTiles substitutes the tile style into pattern. Leaflet's own {z}/{x}/{y}
// placeholders are left alone.
func fmtTiles(pattern, style string) string {
	return strings.Replace(pattern, "%s", style, 1)
}
