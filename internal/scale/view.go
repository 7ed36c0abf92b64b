package scale

import "math"

const (
	MinZoom = 0.1
	MaxZoom = 8.0
)

// ViewState is the live pan/zoom record. It is mutated in place by the
// interaction layer and read by the Engine on every query, never replaced.
type ViewState struct {
	ZoomX      float64 `json:"zoomX"`
	ZoomY      float64 `json:"zoomY"`
	OffsetX    float64 `json:"offsetX"`    // virtual scroll position in pixels
	OffsetRows float64 `json:"offsetRows"` // vertical pan in price rows
	InvertPanX bool    `json:"invertPanX"`
	InvertPanY bool    `json:"invertPanY"`
}

// NewViewState returns a view at the given zoom with no scroll.
func NewViewState(zoomX, zoomY float64) *ViewState {
	return &ViewState{ZoomX: ClampZoom(zoomX), ZoomY: ClampZoom(zoomY)}
}

// ClampZoom bounds z to [MinZoom, MaxZoom]; non-finite values reset to 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 1
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// Clamp re-applies the zoom bounds and drops non-finite offsets.
func (v *ViewState) Clamp() {
	v.ZoomX = ClampZoom(v.ZoomX)
	v.ZoomY = ClampZoom(v.ZoomY)
	if math.IsNaN(v.OffsetX) || math.IsInf(v.OffsetX, 0) {
		v.OffsetX = 0
	}
	if math.IsNaN(v.OffsetRows) || math.IsInf(v.OffsetRows, 0) {
		v.OffsetRows = 0
	}
}

// Margin reserves pixels around the main plot.
type Margin struct {
	Top    float64 `json:"top" yaml:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Left   float64 `json:"left" yaml:"left"`
	Right  float64 `json:"right" yaml:"right"`
}

// PaneKind identifies an auxiliary pane below the main chart.
type PaneKind int

const (
	PaneCVD PaneKind = iota
	PaneOpenInterest
	PaneFunding
)

func (k PaneKind) String() string {
	switch k {
	case PaneCVD:
		return "cvd"
	case PaneOpenInterest:
		return "oi"
	case PaneFunding:
		return "funding"
	}
	return "unknown"
}

// Pane is an enabled auxiliary pane and its share of the available height.
type Pane struct {
	Kind  PaneKind
	Ratio float64
}

// Sizes are the zoom-1 pixel sizes every derived width and height scales from.
type Sizes struct {
	RowPx          float64
	CandleWidth    float64
	BoxWidth       float64
	ImbalanceWidth float64
	CompactSpacing float64
	Gutter         float64
}

// DefaultSizes are tuned for a 1080p canvas.
func DefaultSizes() Sizes {
	return Sizes{
		RowPx:          18,
		CandleWidth:    6,
		BoxWidth:       44,
		ImbalanceWidth: 3,
		CompactSpacing: 12,
		Gutter:         4,
	}
}

// TextThresholds gate drawing of per-cell text.
type TextThresholds struct {
	MinZoomX float64 `json:"minZoomX" yaml:"min_zoom_x"`
	MinRowPx float64 `json:"minRowPx" yaml:"min_row_px"`
	MinBoxPx float64 `json:"minBoxPx" yaml:"min_box_px"`
}

// DefaultTextThresholds hide text once cells get too small to read.
func DefaultTextThresholds() TextThresholds {
	return TextThresholds{MinZoomX: 0.6, MinRowPx: 11, MinBoxPx: 28}
}
