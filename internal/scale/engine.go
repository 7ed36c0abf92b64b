package scale

import (
	"math"

	"footprint-chart/internal/model"
)

// =============================================================================
// SCALE ENGINE: coordinate spaces
// =============================================================================
//
// Three spaces: data index (bar position), price, screen pixels.
//
// HORIZONTAL
//   spacing    = per-bar slot width, linear in zoomX (compact or footprint regime)
//   slot       = floor(offsetX / spacing)            (may be negative)
//   xShift     = offsetX - slot*spacing              in [0, spacing)
//   startIndex = max(0, slot)
//   endIndex   = min(n, startIndex + ceil(contentWidth/spacing) + 2)
//   x(i)       = left + (i - slot)*spacing + spacing/2 - xShift
//
//   xShift keeps panning pixel-smooth instead of snapping to bar boundaries;
//   the +2 slack keeps the partially visible bars at both edges.
//
// VERTICAL
//   ladderTop  = first tick strictly above max(high) over ALL bars, + 10 ticks
//   row(p)     = (ladderTop - p)/tick + offsetRows
//   price(r)   = ladderTop - (r - offsetRows)*tick
//   y(r)       = top + r*rowHeightPx,  rowHeightPx = baseRowPx*zoomY
//
//   ladderTop scans the whole dataset, so it is memoized. The cell is only
//   cleared by Invalidate/Refresh; a stale value after a tick-size change
//   shifts every vertical coordinate.
//
// =============================================================================

const (
	DefaultTickSize   = 1.0
	LadderMarginTicks = 10
	visibleSlack      = 2
)

// Config is everything the Engine derives geometry from besides the ViewState.
type Config struct {
	Width         float64
	Height        float64
	Margin        Margin
	ShowFootprint bool
	TickSize      float64
	Sizes         Sizes
	Text          TextThresholds
	Panes         []Pane
}

func (c Config) sanitized() Config {
	if !finitePositive(c.TickSize) {
		c.TickSize = DefaultTickSize
	}
	c.Width = finiteNonNegative(c.Width)
	c.Height = finiteNonNegative(c.Height)
	c.Margin = Margin{
		Top:    finiteNonNegative(c.Margin.Top),
		Bottom: finiteNonNegative(c.Margin.Bottom),
		Left:   finiteNonNegative(c.Margin.Left),
		Right:  finiteNonNegative(c.Margin.Right),
	}

	d := DefaultSizes()
	fill := func(v *float64, def float64) {
		if !finitePositive(*v) {
			*v = def
		}
	}
	fill(&c.Sizes.RowPx, d.RowPx)
	fill(&c.Sizes.CandleWidth, d.CandleWidth)
	fill(&c.Sizes.BoxWidth, d.BoxWidth)
	fill(&c.Sizes.ImbalanceWidth, d.ImbalanceWidth)
	fill(&c.Sizes.CompactSpacing, d.CompactSpacing)
	fill(&c.Sizes.Gutter, d.Gutter)

	c.Text.MinZoomX = finiteNonNegative(c.Text.MinZoomX)
	c.Text.MinRowPx = finiteNonNegative(c.Text.MinRowPx)
	c.Text.MinBoxPx = finiteNonNegative(c.Text.MinBoxPx)

	panes := make([]Pane, 0, len(c.Panes))
	for _, p := range c.Panes {
		p.Ratio = math.Min(1, finiteNonNegative(p.Ratio))
		panes = append(panes, p)
	}
	c.Panes = panes
	return c
}

// Engine maps between data index, price and screen pixels.
// It borrows the bar slice and the ViewState; Refresh re-points it when they change.
type Engine struct {
	bars []model.Bar
	view *ViewState
	cfg  Config

	ladderTop   float64
	ladderValid bool
}

// NewEngine builds an engine over bars. A nil view gets a fresh zoom-1 ViewState.
func NewEngine(bars []model.Bar, view *ViewState, cfg Config) *Engine {
	if view == nil {
		view = NewViewState(1, 1)
	}
	return &Engine{bars: bars, view: view, cfg: cfg.sanitized()}
}

// Refresh re-points the engine at new inputs and drops every memoized value.
func (e *Engine) Refresh(bars []model.Bar, cfg Config) {
	e.bars = bars
	e.cfg = cfg.sanitized()
	e.Invalidate()
}

// Invalidate drops the memoized ladderTop.
func (e *Engine) Invalidate() {
	e.ladderValid = false
}

func (e *Engine) View() *ViewState  { return e.view }
func (e *Engine) Config() Config    { return e.cfg }
func (e *Engine) Bars() []model.Bar { return e.bars }
func (e *Engine) TickSize() float64 { return e.cfg.TickSize }

// ─── horizontal ───

// Spacing is the width of one bar slot at zoomX for the given display regime.
func Spacing(s Sizes, showFootprint bool, zoomX float64) float64 {
	if showFootprint {
		return (2*s.BoxWidth + s.CandleWidth + 2*s.ImbalanceWidth + 2*s.Gutter) * zoomX
	}
	return s.CompactSpacing * zoomX
}

func (e *Engine) Spacing() float64 {
	return Spacing(e.cfg.Sizes, e.cfg.ShowFootprint, e.view.ZoomX)
}

func (e *Engine) CandleWidth() float64    { return e.cfg.Sizes.CandleWidth * e.view.ZoomX }
func (e *Engine) BoxWidth() float64       { return e.cfg.Sizes.BoxWidth * e.view.ZoomX }
func (e *Engine) ImbalanceWidth() float64 { return e.cfg.Sizes.ImbalanceWidth * e.view.ZoomX }

// ContentWidth is the plot width between the left margin and the price axis.
func (e *Engine) ContentWidth() float64 {
	return math.Max(0, e.cfg.Width-e.cfg.Margin.Left-e.cfg.Margin.Right)
}

// Range is the window of bars to draw.
type Range struct {
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	XShift     float64 `json:"xShift"`
	Slot       int     `json:"slot"` // unclamped floor(offsetX/spacing)
}

// Len is the number of bars in the window.
func (r Range) Len() int { return max(0, r.EndIndex-r.StartIndex) }

func (e *Engine) scroll() (slot int, shift, spacing float64) {
	spacing = e.Spacing()
	if !finitePositive(spacing) {
		return 0, 0, 0
	}
	s := math.Floor(e.view.OffsetX / spacing)
	shift = e.view.OffsetX - s*spacing
	if shift < 0 || shift >= spacing {
		shift = 0
	}
	return int(s), shift, spacing
}

// VisibleRange returns the bars intersecting the plot, with two bars of slack.
func (e *Engine) VisibleRange() Range {
	n := len(e.bars)
	slot, shift, spacing := e.scroll()
	if n == 0 || spacing == 0 {
		return Range{}
	}
	start := max(0, slot)
	end := min(n, start+int(math.Ceil(e.ContentWidth()/spacing))+visibleSlack)
	if end < start {
		end = start
	}
	return Range{StartIndex: start, EndIndex: end, XShift: shift, Slot: slot}
}

// IndexToX is the screen X of the centre of bar i.
func (e *Engine) IndexToX(i int) float64 {
	slot, shift, spacing := e.scroll()
	return e.cfg.Margin.Left + float64(i-slot)*spacing + spacing/2 - shift
}

// ScreenXToDataIndex returns the bar whose slot contains x. The result is not
// clamped to the data; callers check it against the bar count.
func (e *Engine) ScreenXToDataIndex(x float64) int {
	slot, shift, spacing := e.scroll()
	if spacing == 0 {
		return 0
	}
	return slot + int(math.Floor((x-e.cfg.Margin.Left+shift)/spacing))
}

// ScreenXToExactDataIndex is the exact inverse of IndexToX, fractional.
func (e *Engine) ScreenXToExactDataIndex(x float64) float64 {
	slot, shift, spacing := e.scroll()
	if spacing == 0 {
		return 0
	}
	return float64(slot) + (x-e.cfg.Margin.Left+shift-spacing/2)/spacing
}

// PriceAxisLeft is the X where the right-hand price axis starts.
func (e *Engine) PriceAxisLeft() float64 { return e.cfg.Width - e.cfg.Margin.Right }

// ─── vertical ───

func (e *Engine) ChartTop() float64 { return e.cfg.Margin.Top }

// AvailableHeight is the canvas height minus top and bottom margins,
// shared by the main chart and the auxiliary panes.
func (e *Engine) AvailableHeight() float64 {
	return math.Max(0, e.cfg.Height-e.cfg.Margin.Top-e.cfg.Margin.Bottom)
}

func (e *Engine) panesHeight() float64 {
	avail := e.AvailableHeight()
	var h float64
	for _, p := range e.cfg.Panes {
		h += p.Ratio * avail
	}
	return math.Min(h, avail)
}

// ChartHeight is the main plot height once auxiliary panes took their share.
func (e *Engine) ChartHeight() float64 {
	return math.Max(0, e.AvailableHeight()-e.panesHeight())
}

func (e *Engine) ChartBottom() float64 { return e.ChartTop() + e.ChartHeight() }

// TimeAxisTop is the Y where the bottom time axis starts.
func (e *Engine) TimeAxisTop() float64 { return e.cfg.Height - e.cfg.Margin.Bottom }

// PaneBox is the pixel band of one auxiliary pane.
type PaneBox struct {
	Kind   PaneKind `json:"kind"`
	Top    float64  `json:"top"`
	Height float64  `json:"height"`
}

// Bottom is the Y of the pane's lower edge.
func (b PaneBox) Bottom() float64 { return b.Top + b.Height }

// Panes lays the enabled panes out top to bottom under the main chart.
func (e *Engine) Panes() []PaneBox {
	avail := e.AvailableHeight()
	y := e.ChartBottom()
	out := make([]PaneBox, 0, len(e.cfg.Panes))
	for _, p := range e.cfg.Panes {
		h := p.Ratio * avail
		out = append(out, PaneBox{Kind: p.Kind, Top: y, Height: h})
		y += h
	}
	return out
}

// Pane returns the box of the given pane when it is enabled.
func (e *Engine) Pane(kind PaneKind) (PaneBox, bool) {
	for _, b := range e.Panes() {
		if b.Kind == kind {
			return b, true
		}
	}
	return PaneBox{}, false
}

// PaneValueToY maps v from [lo, hi] into the pane band, hi at the top.
func PaneValueToY(b PaneBox, v, lo, hi float64) float64 {
	if !(hi > lo) {
		return b.Top + b.Height/2
	}
	return b.Top + (hi-v)/(hi-lo)*b.Height
}

func (e *Engine) RowHeightPx() float64 { return e.cfg.Sizes.RowPx * e.view.ZoomY }

// ShouldShowCellText is the declutter gate for every text-drawing routine.
// It depends on live zoom and must be re-evaluated per frame.
func (e *Engine) ShouldShowCellText() bool {
	t := e.cfg.Text
	return e.view.ZoomX >= t.MinZoomX &&
		e.RowHeightPx() >= t.MinRowPx &&
		e.BoxWidth() >= t.MinBoxPx
}

// LadderTop is the reference price of row 0 before vertical pan.
// With no bars it returns a finite sentinel ten ticks above zero.
func (e *Engine) LadderTop() float64 {
	if !e.ladderValid {
		e.ladderTop = e.computeLadderTop()
		e.ladderValid = true
	}
	return e.ladderTop
}

func (e *Engine) computeLadderTop() float64 {
	tick := e.cfg.TickSize
	found := false
	maxPrice := 0.0
	for _, b := range e.bars {
		p := b.MaxPrice()
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		if !found || p > maxPrice {
			maxPrice = p
			found = true
		}
	}
	if !found {
		return model.AddTicks(0, tick, LadderMarginTicks)
	}
	return model.AddTicks(model.TickAbove(maxPrice, tick), tick, LadderMarginTicks)
}

func (e *Engine) PriceToRowIndex(price float64) float64 {
	return (e.LadderTop()-price)/e.cfg.TickSize + e.view.OffsetRows
}

func (e *Engine) RowIndexToPrice(row float64) float64 {
	return e.LadderTop() - (row-e.view.OffsetRows)*e.cfg.TickSize
}

func (e *Engine) RowToY(row float64) float64 {
	return e.cfg.Margin.Top + row*e.RowHeightPx()
}

func (e *Engine) YToRow(y float64) float64 {
	return (y - e.cfg.Margin.Top) / e.RowHeightPx()
}

func (e *Engine) PriceToY(price float64) float64 {
	return e.RowToY(e.PriceToRowIndex(price))
}

// ScreenYToPrice is the exact inverse of PriceToY for the same ViewState snapshot.
func (e *Engine) ScreenYToPrice(y float64) float64 {
	return e.RowIndexToPrice(e.YToRow(y))
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func finiteNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
