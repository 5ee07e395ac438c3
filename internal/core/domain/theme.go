package domain

// Theme is the read-only visual configuration handed to the map bridge.
type Theme struct {
	Dark bool
}

// MarkerStyle is the visual state of a marker, a pure function of status.
type MarkerStyle struct {
	Fill        string  `json:"fill"`
	FillOpacity float64 `json:"fill_opacity"`
}

const (
	colorEmptyLight = "#34A853"
	colorEmptyDark  = "#4CAF50"
	colorFullLight  = "#EA4335"
	colorFullDark   = "#F44336"
)

// MarkerStyle maps EMPTY to the primary colour and FULL to the error colour.
func (t Theme) MarkerStyle(status BinStatus) MarkerStyle {
	opacity := 0.2
	if t.Dark {
		opacity = 0.3
	}
	switch status {
	case BinFull:
		if t.Dark {
			return MarkerStyle{Fill: colorFullDark, FillOpacity: opacity}
		}
		return MarkerStyle{Fill: colorFullLight, FillOpacity: opacity}
	default:
		if t.Dark {
			return MarkerStyle{Fill: colorEmptyDark, FillOpacity: opacity}
		}
		return MarkerStyle{Fill: colorEmptyLight, FillOpacity: opacity}
	}
}

// TileStyle selects the basemap variant.
func (t Theme) TileStyle() string {
	if t.Dark {
		return "dark_all"
	}
	return "voyager"
}

// Background is the page colour behind the tiles.
func (t Theme) Background() string {
	if t.Dark {
		return "#121212"
	}
	return "#FFFFFF"
}
