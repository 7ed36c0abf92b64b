package interaction

import "math"

// Rect is the measurement rectangle in screen coordinates.
type Rect struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
	Done  bool  `json:"done"`
}

// MeasureResult is the financial reading of a Rect under the current view.
type MeasureResult struct {
	Rect       Rect    `json:"rect"`
	StartPrice float64 `json:"startPrice"`
	EndPrice   float64 `json:"endPrice"`
	PriceDelta float64 `json:"priceDelta"`
	Percent    float64 `json:"percent"`
	StartIndex float64 `json:"startIndex"`
	EndIndex   float64 `json:"endIndex"`
	BarDelta   int     `json:"barDelta"`
	Ticks      float64 `json:"ticks,omitempty"`
}

// Measure derives prices and bar indices from the rectangle corners through
// the live scale. Nothing is cached, so the reading always matches the frame.
func (c *Controller) Measure() (MeasureResult, bool) {
	if c.measure == nil {
		return MeasureResult{}, false
	}
	r := *c.measure
	out := MeasureResult{
		Rect:       r,
		StartPrice: c.scale.ScreenYToPrice(r.Start.Y),
		EndPrice:   c.scale.ScreenYToPrice(r.End.Y),
		StartIndex: c.scale.ScreenXToExactDataIndex(r.Start.X),
		EndIndex:   c.scale.ScreenXToExactDataIndex(r.End.X),
		BarDelta:   c.scale.ScreenXToDataIndex(r.End.X) - c.scale.ScreenXToDataIndex(r.Start.X),
	}
	out.PriceDelta = out.EndPrice - out.StartPrice
	if out.StartPrice != 0 {
		out.Percent = out.PriceDelta / math.Abs(out.StartPrice) * 100
	}
	return out, true
}

// MeasureTicks fills Ticks for the given tick size.
func (m MeasureResult) MeasureTicks(tick float64) MeasureResult {
	if tick > 0 {
		m.Ticks = math.Round(m.PriceDelta / tick)
	}
	return m
}
