package chart

import (
	"fmt"
	"math"

	"footprint-chart/internal/profile"
	"footprint-chart/internal/scale"
	"footprint-chart/internal/timeframe"
)

// FootprintStyle selects how a footprint cell is drawn.
type FootprintStyle string

const (
	StyleBidAsk FootprintStyle = "bidask" // sell | buy split around the candle
	StyleDelta  FootprintStyle = "delta"  // one signed bar per level
)

const (
	maxTotalPaneRatio = 0.8
	minPaneRatio      = 0.1
	maxPaneRatio      = 0.6
)

// Theme carries the renderer's colors. The chart only forwards it.
type Theme struct {
	Background string `json:"background,omitempty" yaml:"background"`
	Grid       string `json:"grid,omitempty" yaml:"grid"`
	Text       string `json:"text,omitempty" yaml:"text"`
	Up         string `json:"up,omitempty" yaml:"up"`
	Down       string `json:"down,omitempty" yaml:"down"`
	Buy        string `json:"buy,omitempty" yaml:"buy"`
	Sell       string `json:"sell,omitempty" yaml:"sell"`
	POC        string `json:"poc,omitempty" yaml:"poc"`
	ValueArea  string `json:"valueArea,omitempty" yaml:"value_area"`
	Crosshair  string `json:"crosshair,omitempty" yaml:"crosshair"`
}

// merge overlays the non-empty colors of o.
func (t Theme) merge(o Theme) Theme {
	pick := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	pick(&t.Background, o.Background)
	pick(&t.Grid, o.Grid)
	pick(&t.Text, o.Text)
	pick(&t.Up, o.Up)
	pick(&t.Down, o.Down)
	pick(&t.Buy, o.Buy)
	pick(&t.Sell, o.Sell)
	pick(&t.POC, o.POC)
	pick(&t.ValueArea, o.ValueArea)
	pick(&t.Crosshair, o.Crosshair)
	return t
}

// PaneOption toggles one auxiliary pane and sets its share of the available height.
type PaneOption struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Ratio   float64 `json:"ratio" yaml:"ratio"`
}

type PaneOptions struct {
	CVD          PaneOption `json:"cvd" yaml:"cvd"`
	OpenInterest PaneOption `json:"oi" yaml:"oi"`
	Funding      PaneOption `json:"funding" yaml:"funding"`
}

func (p *PaneOptions) get(kind scale.PaneKind) *PaneOption {
	switch kind {
	case scale.PaneCVD:
		return &p.CVD
	case scale.PaneOpenInterest:
		return &p.OpenInterest
	case scale.PaneFunding:
		return &p.Funding
	}
	return nil
}

// enabled lists the enabled panes top to bottom.
func (p PaneOptions) enabled() []scale.Pane {
	var out []scale.Pane
	for _, k := range []scale.PaneKind{scale.PaneCVD, scale.PaneOpenInterest, scale.PaneFunding} {
		if o := p.get(k); o.Enabled {
			out = append(out, scale.Pane{Kind: k, Ratio: o.Ratio})
		}
	}
	return out
}

// TableOptions toggles the statistics rows under each bar.
type TableOptions struct {
	Volume  bool `json:"volume" yaml:"volume"`
	Delta   bool `json:"delta" yaml:"delta"`
	BuySell bool `json:"buySell" yaml:"buy_sell"`
	CVD     bool `json:"cvd" yaml:"cvd"`
}

// Options enumerates every recognized chart option. Zero TickSize means auto-detect.
type Options struct {
	Width               float64              `json:"width" yaml:"width"`
	Height              float64              `json:"height" yaml:"height"`
	TickSize            float64              `json:"tickSize" yaml:"tick_size"`
	ZoomX               float64              `json:"zoomX" yaml:"zoom_x"`
	ZoomY               float64              `json:"zoomY" yaml:"zoom_y"`
	Margin              scale.Margin         `json:"margin" yaml:"margin"`
	Theme               Theme                `json:"theme" yaml:"theme"`
	FootprintStyle      FootprintStyle       `json:"footprintStyle" yaml:"footprint_style"`
	ShowVolumeFootprint bool                 `json:"showVolumeFootprint" yaml:"show_volume_footprint"`
	Panes               PaneOptions          `json:"panes" yaml:"panes"`
	Table               TableOptions         `json:"table" yaml:"table"`
	ShowDOM             bool                 `json:"showDom" yaml:"show_dom"`
	PanInvertX          bool                 `json:"panInvertX" yaml:"pan_invert_x"`
	PanInvertY          bool                 `json:"panInvertY" yaml:"pan_invert_y"`
	BaseRowPx           float64              `json:"baseRowPx" yaml:"base_row_px"`
	Text                scale.TextThresholds `json:"text" yaml:"text"`
	ImbalanceRatio      float64              `json:"imbalanceRatio" yaml:"imbalance_ratio"`
	Timeframe           string               `json:"timeframe" yaml:"timeframe"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Width:    1200,
		Height:   720,
		TickSize: 0,
		ZoomX:    1,
		ZoomY:    1,
		Margin:   scale.Margin{Top: 10, Bottom: 28, Left: 0, Right: 72},
		Theme: Theme{
			Background: "#0b0e14",
			Grid:       "#1c2230",
			Text:       "#c7ccd6",
			Up:         "#26a69a",
			Down:       "#ef5350",
			Buy:        "#2e7d6f",
			Sell:       "#a83a3a",
			POC:        "#f5c542",
			ValueArea:  "#3b4a6b",
			Crosshair:  "#8a93a6",
		},
		FootprintStyle:      StyleBidAsk,
		ShowVolumeFootprint: true,
		Panes: PaneOptions{
			CVD:          PaneOption{Enabled: true, Ratio: 0.15},
			OpenInterest: PaneOption{Enabled: false, Ratio: 0.12},
			Funding:      PaneOption{Enabled: false, Ratio: 0.1},
		},
		Table:          TableOptions{Volume: true, Delta: true, BuySell: false, CVD: true},
		ShowDOM:        true,
		BaseRowPx:      scale.DefaultSizes().RowPx,
		Text:           scale.DefaultTextThresholds(),
		ImbalanceRatio: profile.DefaultImbalanceRatio,
		Timeframe:      timeframe.Base.Name,
	}
}

// Sanitize returns o with every invalid field replaced by a safe value, and a
// note per correction for the caller to log.
func (o Options) Sanitize() (Options, []string) {
	def := DefaultOptions()
	var notes []string
	fix := func(field string, got, want any) {
		notes = append(notes, fmt.Sprintf("%s: %v -> %v", field, got, want))
	}

	if !positive(o.Width) {
		fix("width", o.Width, def.Width)
		o.Width = def.Width
	}
	if !positive(o.Height) {
		fix("height", o.Height, def.Height)
		o.Height = def.Height
	}
	if math.IsNaN(o.TickSize) || math.IsInf(o.TickSize, 0) || o.TickSize < 0 {
		fix("tickSize", o.TickSize, 0)
		o.TickSize = 0
	}
	if z := scale.ClampZoom(o.ZoomX); z != o.ZoomX {
		fix("zoomX", o.ZoomX, z)
		o.ZoomX = z
	}
	if z := scale.ClampZoom(o.ZoomY); z != o.ZoomY {
		fix("zoomY", o.ZoomY, z)
		o.ZoomY = z
	}
	for _, m := range []*float64{&o.Margin.Top, &o.Margin.Bottom, &o.Margin.Left, &o.Margin.Right} {
		if math.IsNaN(*m) || math.IsInf(*m, 0) || *m < 0 {
			fix("margin", *m, 0)
			*m = 0
		}
	}
	if o.Margin.Left+o.Margin.Right >= o.Width || o.Margin.Top+o.Margin.Bottom >= o.Height {
		fix("margin", o.Margin, def.Margin)
		o.Margin = def.Margin
	}
	switch o.FootprintStyle {
	case StyleBidAsk, StyleDelta:
	default:
		fix("footprintStyle", o.FootprintStyle, StyleBidAsk)
		o.FootprintStyle = StyleBidAsk
	}

	total := 0.0
	for _, k := range []scale.PaneKind{scale.PaneCVD, scale.PaneOpenInterest, scale.PaneFunding} {
		p := o.Panes.get(k)
		if r := clampRatio(p.Ratio); r != p.Ratio {
			fix("panes."+k.String(), p.Ratio, r)
			p.Ratio = r
		}
		if p.Enabled {
			total += p.Ratio
		}
	}
	if total > maxTotalPaneRatio {
		f := maxTotalPaneRatio / total
		for _, k := range []scale.PaneKind{scale.PaneCVD, scale.PaneOpenInterest, scale.PaneFunding} {
			if p := o.Panes.get(k); p.Enabled {
				p.Ratio *= f
			}
		}
		fix("panes", total, maxTotalPaneRatio)
	}

	if !positive(o.BaseRowPx) {
		fix("baseRowPx", o.BaseRowPx, def.BaseRowPx)
		o.BaseRowPx = def.BaseRowPx
	}
	if !positive(o.ImbalanceRatio) {
		fix("imbalanceRatio", o.ImbalanceRatio, def.ImbalanceRatio)
		o.ImbalanceRatio = def.ImbalanceRatio
	}
	if !timeframe.IsValid(o.Timeframe) {
		fix("timeframe", o.Timeframe, def.Timeframe)
		o.Timeframe = def.Timeframe
	}
	return o, notes
}

func clampRatio(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return minPaneRatio
	}
	return math.Min(maxPaneRatio, math.Max(minPaneRatio, r))
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// sizes maps the options onto the scale base sizes.
func (o Options) sizes() scale.Sizes {
	s := scale.DefaultSizes()
	s.RowPx = o.BaseRowPx
	return s
}

// PaneOptionPatch is a partial PaneOption.
type PaneOptionPatch struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Ratio   *float64 `json:"ratio,omitempty"`
}

func (p *PaneOptionPatch) apply(o *PaneOption) {
	if p == nil {
		return
	}
	if p.Enabled != nil {
		o.Enabled = *p.Enabled
	}
	if p.Ratio != nil {
		o.Ratio = *p.Ratio
	}
}

type PaneOptionsPatch struct {
	CVD          *PaneOptionPatch `json:"cvd,omitempty"`
	OpenInterest *PaneOptionPatch `json:"oi,omitempty"`
	Funding      *PaneOptionPatch `json:"funding,omitempty"`
}

type TableOptionsPatch struct {
	Volume  *bool `json:"volume,omitempty"`
	Delta   *bool `json:"delta,omitempty"`
	BuySell *bool `json:"buySell,omitempty"`
	CVD     *bool `json:"cvd,omitempty"`
}

// OptionsPatch is a partial Options: nil fields keep their current value.
// Theme merges color by color; Margin and Text replace as a whole.
type OptionsPatch struct {
	Width               *float64              `json:"width,omitempty"`
	Height              *float64              `json:"height,omitempty"`
	TickSize            *float64              `json:"tickSize,omitempty"`
	ZoomX               *float64              `json:"zoomX,omitempty"`
	ZoomY               *float64              `json:"zoomY,omitempty"`
	Margin              *scale.Margin         `json:"margin,omitempty"`
	Theme               *Theme                `json:"theme,omitempty"`
	FootprintStyle      *FootprintStyle       `json:"footprintStyle,omitempty"`
	ShowVolumeFootprint *bool                 `json:"showVolumeFootprint,omitempty"`
	Panes               *PaneOptionsPatch     `json:"panes,omitempty"`
	Table               *TableOptionsPatch    `json:"table,omitempty"`
	ShowDOM             *bool                 `json:"showDom,omitempty"`
	PanInvertX          *bool                 `json:"panInvertX,omitempty"`
	PanInvertY          *bool                 `json:"panInvertY,omitempty"`
	BaseRowPx           *float64              `json:"baseRowPx,omitempty"`
	Text                *scale.TextThresholds `json:"text,omitempty"`
	ImbalanceRatio      *float64              `json:"imbalanceRatio,omitempty"`
	Timeframe           *string               `json:"timeframe,omitempty"`
}

// Apply merges p over o.
func (p OptionsPatch) Apply(o Options) Options {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setB := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&o.Width, p.Width)
	setF(&o.Height, p.Height)
	setF(&o.TickSize, p.TickSize)
	setF(&o.ZoomX, p.ZoomX)
	setF(&o.ZoomY, p.ZoomY)
	if p.Margin != nil {
		o.Margin = *p.Margin
	}
	if p.Theme != nil {
		o.Theme = o.Theme.merge(*p.Theme)
	}
	if p.FootprintStyle != nil {
		o.FootprintStyle = *p.FootprintStyle
	}
	setB(&o.ShowVolumeFootprint, p.ShowVolumeFootprint)
	if p.Panes != nil {
		p.Panes.CVD.apply(&o.Panes.CVD)
		p.Panes.OpenInterest.apply(&o.Panes.OpenInterest)
		p.Panes.Funding.apply(&o.Panes.Funding)
	}
	if p.Table != nil {
		setB(&o.Table.Volume, p.Table.Volume)
		setB(&o.Table.Delta, p.Table.Delta)
		setB(&o.Table.BuySell, p.Table.BuySell)
		setB(&o.Table.CVD, p.Table.CVD)
	}
	setB(&o.ShowDOM, p.ShowDOM)
	setB(&o.PanInvertX, p.PanInvertX)
	setB(&o.PanInvertY, p.PanInvertY)
	setF(&o.BaseRowPx, p.BaseRowPx)
	if p.Text != nil {
		o.Text = *p.Text
	}
	setF(&o.ImbalanceRatio, p.ImbalanceRatio)
	if p.Timeframe != nil {
		o.Timeframe = *p.Timeframe
	}
	return o
}
