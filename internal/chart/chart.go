package chart

import (
	"math"
	"slices"
	"sort"

	"go.uber.org/zap"

	"footprint-chart/internal/interaction"
	"footprint-chart/internal/model"
	"footprint-chart/internal/scale"
	"footprint-chart/internal/timeframe"
)

const (
	// RightPadSlots keeps the latest bar this many slots away from the price axis after a reset.
	RightPadSlots = 3
	// MaxSamples bounds each auxiliary series.
	MaxSamples = 20_000
)

// Reason tells subscribers why the chart changed.
type Reason string

const (
	ReasonData       Reason = "data"
	ReasonTimeframe  Reason = "timeframe"
	ReasonOptions    Reason = "options"
	ReasonReset      Reason = "reset"
	ReasonPan        Reason = "pan"
	ReasonZoom       Reason = "zoom"
	ReasonMeasure    Reason = "measure"
	ReasonHover      Reason = "hover"
	ReasonPaneResize Reason = "pane-resize"
	ReasonDepth      Reason = "depth"
	ReasonSeries     Reason = "series"
)

var interactionReasons = map[interaction.Change]Reason{
	interaction.ChangePan:        ReasonPan,
	interaction.ChangeZoom:       ReasonZoom,
	interaction.ChangeMeasure:    ReasonMeasure,
	interaction.ChangeHover:      ReasonHover,
	interaction.ChangePaneResize: ReasonPaneResize,
}

// Chart is the orchestrator: it owns the base bars, the ViewState and the
// auxiliary series, and keeps the scale engine pointed at the displayed bars.
// A Chart is not safe for concurrent use.
type Chart struct {
	log  *zap.Logger
	opts Options
	tick float64
	// tickKnown is false while tick is only the default fallback.
	tickKnown bool

	// raw mirrors the aggregator's base bars before quantizing, so a tick
	// change can always rebuild from the traded prices.
	raw    []model.Bar
	agg    *timeframe.Aggregator
	view   *scale.ViewState
	engine *scale.Engine
	ctrl   *interaction.Controller

	oi         []model.Sample
	oiBehavior string
	funding    []model.Sample
	depth      []model.DepthLevel
	depthStats DepthStats

	subs    map[int]func(Reason)
	nextSub int
}

// ChartOption customizes a Chart at construction.
type ChartOption func(*Chart)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) ChartOption {
	return func(c *Chart) {
		if l != nil {
			c.log = l
		}
	}
}

// New builds an empty chart. Invalid options are corrected and logged.
func New(opts Options, fns ...ChartOption) *Chart {
	c := &Chart{
		log:  zap.NewNop(),
		agg:  timeframe.NewAggregator(),
		subs: make(map[int]func(Reason)),
	}
	for _, fn := range fns {
		fn(c)
	}

	c.opts = c.sanitize(opts)
	c.resolveTick(nil)
	_ = c.agg.SetTimeframe(c.opts.Timeframe)

	c.view = scale.NewViewState(c.opts.ZoomX, c.opts.ZoomY)
	c.view.InvertPanX, c.view.InvertPanY = c.opts.PanInvertX, c.opts.PanInvertY
	c.engine = scale.NewEngine(c.agg.Bars(), c.view, c.scaleConfig())
	c.ctrl = interaction.NewController(c.engine, interaction.Callbacks{
		OnViewChanged: func(ch interaction.Change) { c.emit(interactionReasons[ch]) },
		OnPaneResize:  c.resizePane,
	})
	return c
}

func (c *Chart) sanitize(o Options) Options {
	out, notes := o.Sanitize()
	for _, n := range notes {
		c.log.Warn("chart option corrected", zap.String("change", n))
	}
	return out
}

// resolveTick picks the configured tick, else the one detected from bars.
// Without either the previous tick stays, or the default on a fresh chart.
func (c *Chart) resolveTick(bars []model.Bar) {
	if c.opts.TickSize > 0 {
		c.tick, c.tickKnown = c.opts.TickSize, true
		return
	}
	if t := model.DetectTickSize(bars); t > 0 {
		c.tick, c.tickKnown = t, true
		return
	}
	if c.tick <= 0 {
		c.tick = scale.DefaultTickSize
	}
}

func (c *Chart) scaleConfig() scale.Config {
	return scale.Config{
		Width:         c.opts.Width,
		Height:        c.opts.Height,
		Margin:        c.opts.Margin,
		ShowFootprint: c.opts.ShowVolumeFootprint,
		TickSize:      c.tick,
		Sizes:         c.opts.sizes(),
		Text:          c.opts.Text,
		Panes:         c.opts.Panes.enabled(),
	}
}

// refresh re-points the engine at the displayed bars and drops its caches.
func (c *Chart) refresh() {
	c.engine.Refresh(c.agg.Bars(), c.scaleConfig())
}

// Subscribe registers fn for every change. The returned func unsubscribes.
func (c *Chart) Subscribe(fn func(Reason)) func() {
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() { delete(c.subs, id) }
}

func (c *Chart) emit(r Reason) {
	if r == "" {
		return
	}
	for _, fn := range c.subs {
		fn(r)
	}
}

// ─── ingestion ───

func (c *Chart) normalize(b model.Bar) model.Bar {
	return b.Normalize(c.tick)
}

// SetData replaces every bar and frames the latest one.
func (c *Chart) SetData(bars []model.Bar) {
	raw := make([]model.Bar, len(bars))
	for i, b := range bars {
		raw[i] = b.Normalize(0)
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Time < raw[j].Time })
	c.raw = raw
	c.resolveTick(raw)
	c.requantize()
	c.refresh()
	c.log.Debug("chart data set", zap.Int("bars", len(raw)), zap.Float64("tick", c.tick))
	c.resetView()
	c.emit(ReasonData)
}

// AppendBar adds a new base bar.
func (c *Chart) AppendBar(b model.Bar) {
	c.mutate(func() {
		rb := b.Normalize(0)
		c.raw = append(c.raw, rb)
		if !c.learnTick(rb) {
			c.agg.AppendBar(c.normalize(rb))
		}
	})
}

// UpdateLastBar replaces the open base bar, or appends when b starts a new minute.
func (c *Chart) UpdateLastBar(b model.Bar) {
	c.mutate(func() {
		rb := b.Normalize(0)
		if n := len(c.raw); n > 0 && c.raw[n-1].Time == rb.Time {
			c.raw[n-1] = rb
		} else {
			c.raw = append(c.raw, rb)
		}
		if !c.learnTick(rb) {
			c.agg.UpdateLastBar(c.normalize(rb))
		}
	})
}

// learnTick keeps detecting from live bars until a tick is found, then
// rebuilds the base on the new grid. It reports whether the base was rebuilt.
func (c *Chart) learnTick(b model.Bar) bool {
	if c.tickKnown {
		return false
	}
	old := c.tick
	c.resolveTick([]model.Bar{b})
	if c.tick == old {
		return false
	}
	c.requantize()
	c.log.Info("tick size detected", zap.Float64("tick", c.tick))
	return true
}

// Retain drops the oldest base bars so at most n remain. The view keeps
// showing the same bars.
func (c *Chart) Retain(n int) {
	if n <= 0 || len(c.raw) <= n {
		return
	}
	before := len(c.agg.Bars())
	c.raw = slices.Clone(c.raw[len(c.raw)-n:])
	c.agg.Trim(n)
	c.refresh()
	if dropped := before - len(c.agg.Bars()); dropped > 0 {
		c.view.OffsetX -= float64(dropped) * c.engine.Spacing()
	}
	c.emit(ReasonData)
}

// mutate applies a base write and keeps the view glued to the right edge
// when the latest bar was on screen before the write.
func (c *Chart) mutate(write func()) {
	before := len(c.agg.Bars())
	r := c.engine.VisibleRange()
	atEdge := before == 0 || r.EndIndex >= before

	write()
	c.refresh()

	after := len(c.agg.Bars())
	if before == 0 && after > 0 {
		c.resetView()
	} else if atEdge && after > before && !c.ctrl.Dragging() {
		c.view.OffsetX += float64(after-before) * c.engine.Spacing()
	}
	c.emit(ReasonData)
}

// Bars returns the displayed (timeframe-aggregated) bars. Callers must not modify them.
func (c *Chart) Bars() []model.Bar { return c.agg.Bars() }

// BaseBars returns the one-minute bars.
func (c *Chart) BaseBars() []model.Bar { return c.agg.Base() }

// LastBar returns the newest base bar.
func (c *Chart) LastBar() (model.Bar, bool) { return c.agg.Last() }

// ─── timeframe ───

// SetTimeframe switches the displayed timeframe and frames the latest bar.
func (c *Chart) SetTimeframe(name string) error {
	if err := c.agg.SetTimeframe(name); err != nil {
		return err
	}
	c.opts.Timeframe = name
	c.refresh()
	c.log.Debug("timeframe switched", zap.String("timeframe", name), zap.Int("bars", len(c.agg.Bars())))
	c.resetView()
	c.emit(ReasonTimeframe)
	return nil
}

// Timeframe returns the displayed timeframe.
func (c *Chart) Timeframe() timeframe.Timeframe { return c.agg.Timeframe() }

// ─── options ───

// Options returns the current options.
func (c *Chart) Options() Options { return c.opts }

// TickSize returns the tick in effect: configured, detected, or the default.
func (c *Chart) TickSize() float64 { return c.tick }

// TickKnown reports whether TickSize was configured or detected rather than
// the default fallback.
func (c *Chart) TickKnown() bool { return c.tickKnown }

// UpdateOptions merges p into the current options.
func (c *Chart) UpdateOptions(p OptionsPatch) {
	old := c.opts
	c.opts = c.sanitize(p.Apply(old))
	o := c.opts

	prevTick := c.tick
	c.resolveTick(c.raw)
	if c.tick != prevTick {
		c.requantize()
	}

	if p.ZoomX != nil {
		ratio := o.ZoomX / c.view.ZoomX
		c.view.ZoomX = o.ZoomX
		c.view.OffsetX *= ratio
	}
	if p.ZoomY != nil {
		c.view.ZoomY = o.ZoomY
	}
	if o.ShowVolumeFootprint != old.ShowVolumeFootprint {
		oldSp := scale.Spacing(old.sizes(), old.ShowVolumeFootprint, c.view.ZoomX)
		newSp := scale.Spacing(o.sizes(), o.ShowVolumeFootprint, c.view.ZoomX)
		if oldSp > 0 {
			c.view.OffsetX *= newSp / oldSp
		}
	}
	c.view.InvertPanX, c.view.InvertPanY = o.PanInvertX, o.PanInvertY

	reset := false
	if o.Timeframe != old.Timeframe {
		if err := c.agg.SetTimeframe(o.Timeframe); err == nil {
			reset = true
		}
	}

	c.refresh()
	c.ctrl.ClearMeasurement()
	if reset {
		c.resetView()
	}
	c.emit(ReasonOptions)
}

// requantize rebuilds the base from the raw bars on the current tick.
func (c *Chart) requantize() {
	norm := make([]model.Bar, len(c.raw))
	for i, b := range c.raw {
		norm[i] = c.normalize(b)
	}
	c.agg.SetBaseData(norm)
	c.log.Debug("bars requantized", zap.Float64("tick", c.tick))
}

func (c *Chart) resizePane(kind scale.PaneKind, ratio float64) {
	p := c.opts.Panes.get(kind)
	if p == nil {
		return
	}
	p.Ratio = ratio
	c.opts, _ = c.opts.Sanitize()
	c.refresh()
}

// ─── view ───

// ResetView restores the initial zoom and frames the latest bar.
func (c *Chart) ResetView() {
	c.resetView()
	c.emit(ReasonReset)
}

func (c *Chart) resetView() {
	c.ctrl.ClearMeasurement()
	c.view.ZoomX, c.view.ZoomY = c.opts.ZoomX, c.opts.ZoomY

	bars := c.agg.Bars()
	if len(bars) == 0 {
		c.view.OffsetX, c.view.OffsetRows = 0, 0
		return
	}
	sp := c.engine.Spacing()
	c.view.OffsetX = float64(len(bars)+RightPadSlots)*sp - c.engine.ContentWidth()

	// centre the latest close vertically
	c.view.OffsetRows = 0
	last := bars[len(bars)-1]
	mid := c.engine.ChartTop() + c.engine.ChartHeight()/2
	c.view.OffsetRows = c.engine.YToRow(mid) - c.engine.PriceToRowIndex(last.Close)
}

// View returns a copy of the live ViewState.
func (c *Chart) View() scale.ViewState { return *c.view }

// Scale exposes the engine for read-only geometry queries.
func (c *Chart) Scale() *scale.Engine { return c.engine }

// VisibleRange is the window of displayed bars on screen.
func (c *Chart) VisibleRange() scale.Range { return c.engine.VisibleRange() }

// ─── input ───

func (c *Chart) Wheel(x, y, deltaY float64) {
	c.ctrl.Wheel(interaction.Point{X: x, Y: y}, deltaY)
}

func (c *Chart) PointerDown(x, y float64) { c.ctrl.PointerDown(interaction.Point{X: x, Y: y}) }
func (c *Chart) PointerMove(x, y float64) { c.ctrl.PointerMove(interaction.Point{X: x, Y: y}) }
func (c *Chart) PointerUp(x, y float64)   { c.ctrl.PointerUp(interaction.Point{X: x, Y: y}) }
func (c *Chart) PointerCancel()           { c.ctrl.PointerCancel() }
func (c *Chart) PointerLeave()            { c.ctrl.Leave() }

// Pan moves the view by a pixel delta outside of any pointer gesture.
func (c *Chart) Pan(dx, dy float64) { c.ctrl.Pan(dx, dy) }

// SetMeasureTool arms the measurement tool.
func (c *Chart) SetMeasureTool(on bool) { c.ctrl.SetMeasureTool(on) }

// Measure reads the measurement rectangle through the live scale.
func (c *Chart) Measure() (interaction.MeasureResult, bool) {
	m, ok := c.ctrl.Measure()
	if !ok {
		return m, false
	}
	return m.MeasureTicks(c.tick), true
}

// Cursor names the pointer shape at (x, y).
func (c *Chart) Cursor(x, y float64) string { return c.ctrl.Cursor(interaction.Point{X: x, Y: y}) }

// ─── auxiliary series ───

// AddOpenInterest records an open-interest sample.
func (c *Chart) AddOpenInterest(s model.Sample) {
	c.oi = addSample(c.oi, s)
	c.emit(ReasonSeries)
}

// SetOpenInterestBehavior labels the open-interest pane with the latest
// OI versus price classification.
func (c *Chart) SetOpenInterestBehavior(label string) {
	if label == c.oiBehavior {
		return
	}
	c.oiBehavior = label
	c.emit(ReasonSeries)
}

// AddFunding records a funding-rate sample.
func (c *Chart) AddFunding(s model.Sample) {
	c.funding = addSample(c.funding, s)
	c.emit(ReasonSeries)
}

// addSample keeps series sorted by time, replacing an equal timestamp.
func addSample(series []model.Sample, s model.Sample) []model.Sample {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return series
	}
	i := sort.Search(len(series), func(i int) bool { return series[i].Time >= s.Time })
	switch {
	case i < len(series) && series[i].Time == s.Time:
		series[i] = s
	case i == len(series):
		series = append(series, s)
	default:
		series = append(series, model.Sample{})
		copy(series[i+1:], series[i:])
		series[i] = s
	}
	if over := len(series) - MaxSamples; over > 0 {
		series = append(series[:0], series[over:]...)
	}
	return series
}

// sampleBefore returns the latest sample strictly before t.
func sampleBefore(series []model.Sample, t int64) (model.Sample, bool) {
	i := sort.Search(len(series), func(i int) bool { return series[i].Time >= t })
	if i == 0 {
		return model.Sample{}, false
	}
	return series[i-1], true
}

// DepthStats is the book pressure computed over the full depth snapshot.
type DepthStats struct {
	LiqVel float64 `json:"liqVel"`
	Absorb float64 `json:"absorb"`
	Score  int     `json:"score"`
}

// SetDepth replaces the depth-of-market ladder and its pressure readings.
func (c *Chart) SetDepth(levels []model.DepthLevel, stats DepthStats) {
	c.depth = append(c.depth[:0], levels...)
	c.depthStats = stats
	c.emit(ReasonDepth)
}
