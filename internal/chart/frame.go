package chart

import (
	"math"

	"footprint-chart/internal/interaction"
	"footprint-chart/internal/model"
	"footprint-chart/internal/profile"
	"footprint-chart/internal/scale"
)

// FrameVersion is the first element of every MsgPack frame.
const FrameVersion = 1

// Frame is everything the renderer needs to draw one picture. It is a value
// snapshot: all coordinates come from one ViewState state.
type Frame struct {
	Width          float64         `json:"width"`
	Height         float64         `json:"height"`
	Timeframe      string          `json:"timeframe"`
	TickSize       float64         `json:"tickSize"`
	LadderTop      float64         `json:"ladderTop"`
	View           scale.ViewState `json:"view"`
	Range          scale.Range     `json:"range"`
	Spacing        float64         `json:"spacing"`
	CandleWidth    float64         `json:"candleWidth"`
	BoxWidth       float64         `json:"boxWidth"`
	ImbalanceWidth float64         `json:"imbalanceWidth"`
	RowHeight      float64         `json:"rowHeight"`
	ShowText       bool            `json:"showText"`
	ShowFootprint  bool            `json:"showFootprint"`
	Style          FootprintStyle  `json:"style"`
	ChartTop       float64         `json:"chartTop"`
	ChartBottom    float64         `json:"chartBottom"`
	PriceAxisLeft  float64         `json:"priceAxisLeft"`
	TimeAxisTop    float64         `json:"timeAxisTop"`
	Theme          Theme           `json:"theme"`
	Table          TableOptions    `json:"table"`

	Bars      []FrameBar                 `json:"bars"`
	Panes     []PaneSeries               `json:"panes"`
	DOM       *DOMLadder                 `json:"dom,omitempty"`
	Measure   *interaction.MeasureResult `json:"measure,omitempty"`
	Crosshair *Crosshair                 `json:"crosshair,omitempty"`
}

// FrameBar is one visible bar with its pixel geometry and profile.
type FrameBar struct {
	Index   int                `json:"index"`
	X       float64            `json:"x"`
	Time    int64              `json:"time"`
	Open    float64            `json:"open"`
	High    float64            `json:"high"`
	Low     float64            `json:"low"`
	Close   float64            `json:"close"`
	OpenY   float64            `json:"openY"`
	HighY   float64            `json:"highY"`
	LowY    float64            `json:"lowY"`
	CloseY  float64            `json:"closeY"`
	Profile profile.VolumeArea `json:"profile"`
	Levels  []FrameLevel       `json:"levels,omitempty"`
	Stats   TableRow           `json:"stats"`
}

// FrameLevel is one footprint cell.
type FrameLevel struct {
	Price     float64           `json:"price"`
	Y         float64           `json:"y"`
	Buy       float64           `json:"buy"`
	Sell      float64           `json:"sell"`
	Imbalance profile.Imbalance `json:"imbalance"`
	POC       bool              `json:"poc,omitempty"`
	InArea    bool              `json:"inArea,omitempty"`
}

// TableRow is the statistics block under a bar.
type TableRow struct {
	Volume float64 `json:"volume"`
	Delta  float64 `json:"delta"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
	CVD    float64 `json:"cvd"`
}

// PaneSeries is one auxiliary pane mapped into its pixel band.
type PaneSeries struct {
	Kind     string      `json:"kind"`
	Top      float64     `json:"top"`
	Height   float64     `json:"height"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	Behavior string      `json:"behavior,omitempty"` // open interest only
	Points   []PanePoint `json:"points"`
}

type PanePoint struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Value float64 `json:"value"`
	Y     float64 `json:"y"`
}

// DOMLadder is the depth ladder clipped to the visible price rows.
type DOMLadder struct {
	BestBid   float64  `json:"bestBid"`
	BestAsk   float64  `json:"bestAsk"`
	Spread    float64  `json:"spread"`
	Imbalance float64  `json:"imbalance"` // (bid - ask) / (bid + ask) over all rows, [-1, 1]
	LiqVel    float64  `json:"liqVel"`
	Absorb    float64  `json:"absorb"`
	Score     int      `json:"score"`
	Rows      []DOMRow `json:"rows"`
}

type DOMRow struct {
	Price float64 `json:"price"`
	Y     float64 `json:"y"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// Crosshair is the hover readout, computed with the same scale snapshot as the bars.
type Crosshair struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Price float64 `json:"price"`
	Index int     `json:"index"`
	Time  int64   `json:"time,omitempty"`
	Zone  string  `json:"zone"`
}

// Frame builds the render snapshot for the current state.
func (c *Chart) Frame() Frame {
	e := c.engine
	bars := c.agg.Bars()
	r := e.VisibleRange()

	f := Frame{
		Width:          c.opts.Width,
		Height:         c.opts.Height,
		Timeframe:      c.agg.Timeframe().Name,
		TickSize:       c.tick,
		LadderTop:      e.LadderTop(),
		View:           *c.view,
		Range:          r,
		Spacing:        e.Spacing(),
		CandleWidth:    e.CandleWidth(),
		BoxWidth:       e.BoxWidth(),
		ImbalanceWidth: e.ImbalanceWidth(),
		RowHeight:      e.RowHeightPx(),
		ShowText:       e.ShouldShowCellText(),
		ShowFootprint:  c.opts.ShowVolumeFootprint,
		Style:          c.opts.FootprintStyle,
		ChartTop:       e.ChartTop(),
		ChartBottom:    e.ChartBottom(),
		PriceAxisLeft:  e.PriceAxisLeft(),
		TimeAxisTop:    e.TimeAxisTop(),
		Theme:          c.opts.Theme,
		Table:          c.opts.Table,
		Bars:           make([]FrameBar, 0, r.Len()),
	}

	cvd := cumulativeDelta(bars, r)
	for i := r.StartIndex; i < r.EndIndex; i++ {
		f.Bars = append(f.Bars, c.frameBar(i, bars[i], cvd[i-r.StartIndex]))
	}
	f.Panes = c.paneSeries(bars, r, cvd)

	if c.opts.ShowDOM && len(c.depth) > 0 {
		f.DOM = c.domLadder()
	}
	if m, ok := c.Measure(); ok {
		f.Measure = &m
	}
	if p, ok := c.ctrl.HoverPoint(); ok {
		f.Crosshair = c.crosshair(p, bars)
	}
	return f
}

func (c *Chart) frameBar(i int, b model.Bar, cvd float64) FrameBar {
	e := c.engine
	levels := profile.SortedLevels(b.Footprint)
	area := profile.ComputeVolumeArea(levels)

	fb := FrameBar{
		Index:   i,
		X:       e.IndexToX(i),
		Time:    b.Time,
		Open:    b.Open,
		High:    b.High,
		Low:     b.Low,
		Close:   b.Close,
		OpenY:   e.PriceToY(b.Open),
		HighY:   e.PriceToY(b.High),
		LowY:    e.PriceToY(b.Low),
		CloseY:  e.PriceToY(b.Close),
		Profile: area,
		Stats: TableRow{
			Volume: area.TotalVolume,
			Delta:  area.Delta(),
			Buy:    area.BuyVolume,
			Sell:   area.SellVolume,
			CVD:    cvd,
		},
	}
	if !c.opts.ShowVolumeFootprint || len(levels) == 0 {
		return fb
	}

	imb := profile.Imbalances(levels, c.opts.ImbalanceRatio)
	fb.Levels = make([]FrameLevel, len(levels))
	for j, l := range levels {
		fb.Levels[j] = FrameLevel{
			Price:     l.Price,
			Y:         e.PriceToY(l.Price),
			Buy:       l.Buy,
			Sell:      l.Sell,
			Imbalance: imb[j],
			POC:       j == area.POCIndex,
			InArea:    area.HasValueArea && j >= area.VAHIndex && j <= area.VALIndex,
		}
	}
	return fb
}

// cumulativeDelta returns the running buy-sell sum at each visible bar,
// accumulated from the first displayed bar.
func cumulativeDelta(bars []model.Bar, r scale.Range) []float64 {
	out := make([]float64, r.Len())
	var sum float64
	for i := 0; i < min(r.EndIndex, len(bars)); i++ {
		d := bars[i].Delta()
		if !math.IsNaN(d) && !math.IsInf(d, 0) {
			sum += d
		}
		if i >= r.StartIndex {
			out[i-r.StartIndex] = sum
		}
	}
	return out
}

func (c *Chart) paneSeries(bars []model.Bar, r scale.Range, cvd []float64) []PaneSeries {
	e := c.engine
	dur := c.agg.Timeframe().Duration().Milliseconds()
	var out []PaneSeries

	for _, box := range e.Panes() {
		s := PaneSeries{Kind: box.Kind.String(), Top: box.Top, Height: box.Height}
		if box.Kind == scale.PaneOpenInterest {
			s.Behavior = c.oiBehavior
		}
		for i := r.StartIndex; i < r.EndIndex; i++ {
			var (
				v  float64
				ok = true
			)
			switch box.Kind {
			case scale.PaneCVD:
				v = cvd[i-r.StartIndex]
			case scale.PaneOpenInterest:
				var smp model.Sample
				smp, ok = sampleBefore(c.oi, bars[i].Time+dur)
				v = smp.Value
			case scale.PaneFunding:
				var smp model.Sample
				smp, ok = sampleBefore(c.funding, bars[i].Time+dur)
				v = smp.Value
			}
			if ok {
				s.Points = append(s.Points, PanePoint{Index: i, X: e.IndexToX(i), Value: v})
			}
		}

		if len(s.Points) > 0 {
			s.Min, s.Max = s.Points[0].Value, s.Points[0].Value
			for _, p := range s.Points[1:] {
				s.Min = math.Min(s.Min, p.Value)
				s.Max = math.Max(s.Max, p.Value)
			}
			for k := range s.Points {
				s.Points[k].Y = scale.PaneValueToY(box, s.Points[k].Value, s.Min, s.Max)
			}
		}
		out = append(out, s)
	}
	return out
}

func (c *Chart) domLadder() *DOMLadder {
	e := c.engine
	d := &DOMLadder{
		LiqVel: c.depthStats.LiqVel,
		Absorb: c.depthStats.Absorb,
		Score:  c.depthStats.Score,
	}
	var bidVol, askVol float64
	top, bottom := e.ChartTop(), e.ChartBottom()

	for _, l := range c.depth {
		if l.Bid > 0 {
			bidVol += l.Bid
			if d.BestBid == 0 || l.Price > d.BestBid {
				d.BestBid = l.Price
			}
		}
		if l.Ask > 0 {
			askVol += l.Ask
			if d.BestAsk == 0 || l.Price < d.BestAsk {
				d.BestAsk = l.Price
			}
		}
		y := e.PriceToY(l.Price)
		if y < top || y > bottom {
			continue
		}
		d.Rows = append(d.Rows, DOMRow{Price: l.Price, Y: y, Bid: l.Bid, Ask: l.Ask})
	}
	if d.BestBid > 0 && d.BestAsk > 0 {
		d.Spread = d.BestAsk - d.BestBid
	}
	if total := bidVol + askVol; total > 0 {
		d.Imbalance = (bidVol - askVol) / total
	}
	return d
}

func (c *Chart) crosshair(p interaction.Point, bars []model.Bar) *Crosshair {
	e := c.engine
	ch := &Crosshair{
		X:     p.X,
		Y:     p.Y,
		Price: model.Quantize(e.ScreenYToPrice(p.Y), c.tick),
		Index: e.ScreenXToDataIndex(p.X),
		Zone:  c.ctrl.Classify(p).String(),
	}
	if ch.Index >= 0 && ch.Index < len(bars) {
		ch.Time = bars[ch.Index].Time
	}
	return ch
}

// AppendMsgPack encodes f as positional MsgPack arrays:
//
//	[version, timeframe, tick, ladderTop, start, end, xShift, spacing, rowHeight,
//	 candleWidth, boxWidth, showText, showFootprint,
//	 bars, panes, dom|nil, measure|nil, crosshair|nil]
//
// bar:      [index, x, time, o, h, l, c, oy, hy, ly, cy, poc, vah, val, hasArea,
//	            volume, delta, cvd, levels]
// level:    [price, y, buy, sell, flags]  flags: 1 buy imbalance, 2 sell imbalance, 4 poc, 8 in area
// pane:     [kind, top, height, min, max, behavior, [[x, y, value]...]]
// dom:      [bestBid, bestAsk, spread, imbalance, liqVel, absorb, score, [[price, y, bid, ask]...]]
// measure:  [x0, y0, x1, y1, startPrice, endPrice, delta, percent, barDelta, ticks, done]
// crosshair:[x, y, price, index, time]
func (f Frame) AppendMsgPack(b []byte) []byte {
	b = model.AppendArrayHeader(b, 18)
	b = model.AppendInt64(b, FrameVersion)
	b = model.AppendString(b, f.Timeframe)
	b = model.AppendFloat64(b, f.TickSize)
	b = model.AppendFloat64(b, f.LadderTop)
	b = model.AppendInt64(b, int64(f.Range.StartIndex))
	b = model.AppendInt64(b, int64(f.Range.EndIndex))
	b = model.AppendFloat64(b, f.Range.XShift)
	b = model.AppendFloat64(b, f.Spacing)
	b = model.AppendFloat64(b, f.RowHeight)
	b = model.AppendFloat64(b, f.CandleWidth)
	b = model.AppendFloat64(b, f.BoxWidth)
	b = model.AppendBool(b, f.ShowText)
	b = model.AppendBool(b, f.ShowFootprint)

	b = model.AppendArrayHeader(b, len(f.Bars))
	for _, bar := range f.Bars {
		b = appendBar(b, bar)
	}

	b = model.AppendArrayHeader(b, len(f.Panes))
	for _, p := range f.Panes {
		b = model.AppendArrayHeader(b, 7)
		b = model.AppendString(b, p.Kind)
		b = model.AppendFloat64(b, p.Top)
		b = model.AppendFloat64(b, p.Height)
		b = model.AppendFloat64(b, p.Min)
		b = model.AppendFloat64(b, p.Max)
		b = model.AppendString(b, p.Behavior)
		b = model.AppendArrayHeader(b, len(p.Points))
		for _, pt := range p.Points {
			b = model.AppendArrayHeader(b, 3)
			b = model.AppendFloat64(b, pt.X)
			b = model.AppendFloat64(b, pt.Y)
			b = model.AppendFloat64(b, pt.Value)
		}
	}

	if f.DOM == nil {
		b = model.AppendNil(b)
	} else {
		b = model.AppendArrayHeader(b, 8)
		b = model.AppendFloat64(b, f.DOM.BestBid)
		b = model.AppendFloat64(b, f.DOM.BestAsk)
		b = model.AppendFloat64(b, f.DOM.Spread)
		b = model.AppendFloat64(b, f.DOM.Imbalance)
		b = model.AppendFloat64(b, f.DOM.LiqVel)
		b = model.AppendFloat64(b, f.DOM.Absorb)
		b = model.AppendInt64(b, int64(f.DOM.Score))
		b = model.AppendArrayHeader(b, len(f.DOM.Rows))
		for _, r := range f.DOM.Rows {
			b = model.AppendArrayHeader(b, 4)
			b = model.AppendFloat64(b, r.Price)
			b = model.AppendFloat64(b, r.Y)
			b = model.AppendFloat64(b, r.Bid)
			b = model.AppendFloat64(b, r.Ask)
		}
	}

	if f.Measure == nil {
		b = model.AppendNil(b)
	} else {
		m := f.Measure
		b = model.AppendArrayHeader(b, 11)
		b = model.AppendFloat64(b, m.Rect.Start.X)
		b = model.AppendFloat64(b, m.Rect.Start.Y)
		b = model.AppendFloat64(b, m.Rect.End.X)
		b = model.AppendFloat64(b, m.Rect.End.Y)
		b = model.AppendFloat64(b, m.StartPrice)
		b = model.AppendFloat64(b, m.EndPrice)
		b = model.AppendFloat64(b, m.PriceDelta)
		b = model.AppendFloat64(b, m.Percent)
		b = model.AppendInt64(b, int64(m.BarDelta))
		b = model.AppendFloat64(b, m.Ticks)
		b = model.AppendBool(b, m.Rect.Done)
	}

	if f.Crosshair == nil {
		b = model.AppendNil(b)
	} else {
		ch := f.Crosshair
		b = model.AppendArrayHeader(b, 5)
		b = model.AppendFloat64(b, ch.X)
		b = model.AppendFloat64(b, ch.Y)
		b = model.AppendFloat64(b, ch.Price)
		b = model.AppendInt64(b, int64(ch.Index))
		b = model.AppendInt64(b, ch.Time)
	}
	return b
}

func appendBar(b []byte, bar FrameBar) []byte {
	b = model.AppendArrayHeader(b, 19)
	b = model.AppendInt64(b, int64(bar.Index))
	b = model.AppendFloat64(b, bar.X)
	b = model.AppendInt64(b, bar.Time)
	b = model.AppendFloat64(b, bar.Open)
	b = model.AppendFloat64(b, bar.High)
	b = model.AppendFloat64(b, bar.Low)
	b = model.AppendFloat64(b, bar.Close)
	b = model.AppendFloat64(b, bar.OpenY)
	b = model.AppendFloat64(b, bar.HighY)
	b = model.AppendFloat64(b, bar.LowY)
	b = model.AppendFloat64(b, bar.CloseY)
	b = model.AppendInt64(b, int64(bar.Profile.POCIndex))
	b = model.AppendInt64(b, int64(bar.Profile.VAHIndex))
	b = model.AppendInt64(b, int64(bar.Profile.VALIndex))
	b = model.AppendBool(b, bar.Profile.HasValueArea)
	b = model.AppendFloat64(b, bar.Stats.Volume)
	b = model.AppendFloat64(b, bar.Stats.Delta)
	b = model.AppendFloat64(b, bar.Stats.CVD)

	b = model.AppendArrayHeader(b, len(bar.Levels))
	for _, l := range bar.Levels {
		var flags int64
		if l.Imbalance.BuyImbalance {
			flags |= 1
		}
		if l.Imbalance.SellImbalance {
			flags |= 2
		}
		if l.POC {
			flags |= 4
		}
		if l.InArea {
			flags |= 8
		}
		b = model.AppendArrayHeader(b, 5)
		b = model.AppendFloat64(b, l.Price)
		b = model.AppendFloat64(b, l.Y)
		b = model.AppendFloat64(b, l.Buy)
		b = model.AppendFloat64(b, l.Sell)
		b = model.AppendInt64(b, flags)
	}
	return b
}
