package interaction

import (
	"math"

	"footprint-chart/internal/scale"
)

// =============================================================================
// INTERACTION: pointer/wheel decision logic
// =============================================================================
//
// ZONES (from the margin-derived boundaries)
//   x > width - marginRight   → price axis
//   y > height - marginBottom → time axis
//   otherwise                 → body
//
// WHEEL ZOOM, f = exp(-deltaY * WheelSensitivity)
//   price axis: zoomY *= f
//   time axis:  zoomX *= f;                      offsetX *= zoomX'/zoomX
//   body:       zoomX *= f; zoomY *= (zoomX'/zoomX)^ZoomYCoupling; offsetX *= zoomX'/zoomX
//
//   Spacing is linear in zoomX, so offsetX/spacing (the leftmost visible
//   index) survives the zoom. Zooms are clamped after every mutation.
//
// PAN (1:1)
//   offsetX    -= dx               (sign flipped when InvertPanX)
//   offsetRows += dy / rowHeightPx (sign flipped when InvertPanY)
//
// DIVIDER DRAG
//   Grabbed within DividerHitPx of a pane's top edge. The pane's bottom edge
//   is fixed during the drag; ratio = (bottom - y) / availableHeight clamped
//   to [MinPaneRatio, MaxPaneRatio] and handed to OnPaneResize. Layout is
//   never mutated here.
//
// Gestures are captured from PointerDown until PointerUp or PointerCancel.
//
// =============================================================================

const (
	WheelSensitivity = 0.001
	ZoomYCoupling    = 0.5
	DividerHitPx     = 4.0
	MinPaneRatio     = 0.1
	MaxPaneRatio     = 0.6
)

// Scale is the geometry the controller queries. *scale.Engine implements it.
type Scale interface {
	View() *scale.ViewState
	RowHeightPx() float64
	PriceAxisLeft() float64
	TimeAxisTop() float64
	AvailableHeight() float64
	Panes() []scale.PaneBox
	ScreenYToPrice(y float64) float64
	ScreenXToExactDataIndex(x float64) float64
	ScreenXToDataIndex(x float64) int
}

// Zone is the region of the canvas under the pointer.
type Zone int

const (
	ZoneBody Zone = iota
	ZonePriceAxis
	ZoneTimeAxis
)

func (z Zone) String() string {
	switch z {
	case ZonePriceAxis:
		return "price-axis"
	case ZoneTimeAxis:
		return "time-axis"
	}
	return "body"
}

// Change tells subscribers what kind of state moved.
type Change int

const (
	ChangePan Change = iota + 1
	ChangeZoom
	ChangeMeasure
	ChangeHover
	ChangePaneResize
)

func (c Change) String() string {
	switch c {
	case ChangePan:
		return "pan"
	case ChangeZoom:
		return "zoom"
	case ChangeMeasure:
		return "measure"
	case ChangeHover:
		return "hover"
	case ChangePaneResize:
		return "pane-resize"
	}
	return "none"
}

// Point is a screen position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type gesture int

const (
	gestureNone gesture = iota
	gesturePan
	gestureMeasure
	gestureDivider
)

// Callbacks connect the controller to its owner.
type Callbacks struct {
	OnViewChanged func(Change)
	OnPaneResize  func(kind scale.PaneKind, ratio float64)
}

// Controller turns raw input into ViewState mutations.
type Controller struct {
	scale Scale
	cb    Callbacks

	gesture gesture
	last    Point

	dividerKind   scale.PaneKind
	dividerBottom float64

	measureTool bool
	measure     *Rect

	hover *Point
}

// NewController binds a controller to s.
func NewController(s Scale, cb Callbacks) *Controller {
	return &Controller{scale: s, cb: cb}
}

func (c *Controller) notify(ch Change) {
	if c.cb.OnViewChanged != nil {
		c.cb.OnViewChanged(ch)
	}
}

// Classify returns the zone under p.
func (c *Controller) Classify(p Point) Zone {
	switch {
	case p.X > c.scale.PriceAxisLeft():
		return ZonePriceAxis
	case p.Y > c.scale.TimeAxisTop():
		return ZoneTimeAxis
	}
	return ZoneBody
}

// Wheel applies a zoom step at p. Positive deltaY zooms out.
func (c *Controller) Wheel(p Point, deltaY float64) {
	if math.IsNaN(deltaY) || math.IsInf(deltaY, 0) || deltaY == 0 {
		return
	}
	f := math.Exp(-deltaY * WheelSensitivity)
	v := c.scale.View()

	switch c.Classify(p) {
	case ZonePriceAxis:
		v.ZoomY = scale.ClampZoom(v.ZoomY * f)
	case ZoneTimeAxis:
		zoomX(v, f)
	default:
		ratio := zoomX(v, f)
		v.ZoomY = scale.ClampZoom(v.ZoomY * math.Pow(ratio, ZoomYCoupling))
	}
	c.dropMeasure()
	c.notify(ChangeZoom)
}

// zoomX scales zoomX by f and keeps offsetX/spacing fixed. It returns the applied ratio.
func zoomX(v *scale.ViewState, f float64) float64 {
	old := v.ZoomX
	v.ZoomX = scale.ClampZoom(old * f)
	ratio := v.ZoomX / old
	v.OffsetX *= ratio
	return ratio
}

// Pan moves the view by a pointer delta in pixels.
func (c *Controller) Pan(dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	v := c.scale.View()
	if v.InvertPanX {
		v.OffsetX += dx
	} else {
		v.OffsetX -= dx
	}
	if rh := c.scale.RowHeightPx(); rh > 0 {
		if v.InvertPanY {
			v.OffsetRows -= dy / rh
		} else {
			v.OffsetRows += dy / rh
		}
	}
	c.dropMeasure()
	c.notify(ChangePan)
}

// dividerAt returns the pane whose top edge is within DividerHitPx of p.
func (c *Controller) dividerAt(p Point) (scale.PaneBox, bool) {
	if p.X > c.scale.PriceAxisLeft() {
		return scale.PaneBox{}, false
	}
	for _, b := range c.scale.Panes() {
		if math.Abs(p.Y-b.Top) <= DividerHitPx {
			return b, true
		}
	}
	return scale.PaneBox{}, false
}

// PointerDown starts a gesture: divider drag, measurement or pan, in that order.
func (c *Controller) PointerDown(p Point) {
	c.last = p
	if b, ok := c.dividerAt(p); ok {
		c.gesture = gestureDivider
		c.dividerKind = b.Kind
		c.dividerBottom = b.Bottom()
		return
	}
	if c.measureTool && c.Classify(p) == ZoneBody {
		c.gesture = gestureMeasure
		c.measure = &Rect{Start: p, End: p}
		c.notify(ChangeMeasure)
		return
	}
	c.gesture = gesturePan
}

// PointerMove continues the active gesture, or tracks the hover point when idle.
func (c *Controller) PointerMove(p Point) {
	switch c.gesture {
	case gesturePan:
		dx, dy := p.X-c.last.X, p.Y-c.last.Y
		c.last = p
		c.Pan(dx, dy)
	case gestureMeasure:
		c.last = p
		c.measure.End = p
		c.notify(ChangeMeasure)
	case gestureDivider:
		c.last = p
		c.resizePane(p.Y)
	default:
		c.Hover(p)
	}
}

func (c *Controller) resizePane(y float64) {
	avail := c.scale.AvailableHeight()
	if avail <= 0 {
		return
	}
	ratio := (c.dividerBottom - y) / avail
	ratio = math.Min(MaxPaneRatio, math.Max(MinPaneRatio, ratio))
	if c.cb.OnPaneResize != nil {
		c.cb.OnPaneResize(c.dividerKind, ratio)
	}
	c.notify(ChangePaneResize)
}

// PointerUp ends the gesture. A measurement stays on screen until the next view change.
func (c *Controller) PointerUp(p Point) {
	if c.gesture == gestureMeasure {
		c.measure.End = p
		c.measure.Done = true
		c.notify(ChangeMeasure)
	}
	c.gesture = gestureNone
}

// PointerCancel aborts the gesture. An unfinished measurement is dropped.
func (c *Controller) PointerCancel() {
	if c.gesture == gestureMeasure {
		c.measure = nil
		c.notify(ChangeMeasure)
	}
	c.gesture = gestureNone
}

// Dragging reports whether a gesture is captured.
func (c *Controller) Dragging() bool { return c.gesture != gestureNone }

// Hover records the crosshair position.
func (c *Controller) Hover(p Point) {
	c.hover = &p
	c.notify(ChangeHover)
}

// Leave clears the crosshair.
func (c *Controller) Leave() {
	if c.hover == nil {
		return
	}
	c.hover = nil
	c.notify(ChangeHover)
}

// HoverPoint returns the crosshair position, if any.
func (c *Controller) HoverPoint() (Point, bool) {
	if c.hover == nil {
		return Point{}, false
	}
	return *c.hover, true
}

// SetMeasureTool arms or disarms the measurement tool. Disarming clears the rectangle.
func (c *Controller) SetMeasureTool(on bool) {
	c.measureTool = on
	if !on && c.measure != nil {
		c.measure = nil
		c.notify(ChangeMeasure)
	}
}

// MeasureToolActive reports whether pointer-down in the body starts a measurement.
func (c *Controller) MeasureToolActive() bool { return c.measureTool }

// ClearMeasurement drops the rectangle. The owner calls it on view changes
// the controller does not see (reset, timeframe switch, option updates).
func (c *Controller) ClearMeasurement() {
	if c.measure == nil {
		return
	}
	c.dropMeasure()
	c.notify(ChangeMeasure)
}

func (c *Controller) dropMeasure() {
	if c.gesture == gestureMeasure {
		c.gesture = gestureNone
	}
	c.measure = nil
}

// Cursor names the pointer shape for p.
func (c *Controller) Cursor(p Point) string {
	switch {
	case c.gesture == gestureDivider:
		return "ns-resize"
	case c.gesture == gesturePan:
		return "grabbing"
	}
	if _, ok := c.dividerAt(p); ok {
		return "ns-resize"
	}
	if c.measureTool && c.Classify(p) == ZoneBody {
		return "crosshair"
	}
	return "default"
}
