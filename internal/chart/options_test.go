package chart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"footprint-chart/internal/scale"
)

func TestDefaultOptionsAreClean(t *testing.T) {
	o, notes := DefaultOptions().Sanitize()
	assert.Empty(t, notes)
	assert.Equal(t, DefaultOptions(), o)
}

func TestSanitize(t *testing.T) {
	o := DefaultOptions()
	o.Width = -5
	o.Height = math.NaN()
	o.TickSize = math.Inf(1)
	o.ZoomX = 20
	o.ZoomY = 0
	o.FootprintStyle = "heatmap"
	o.BaseRowPx = 0
	o.ImbalanceRatio = -1
	o.Timeframe = "7m"
	o.Panes.CVD.Ratio = 0.9

	got, notes := o.Sanitize()
	def := DefaultOptions()

	assert.Len(t, notes, 10)
	assert.Equal(t, def.Width, got.Width)
	assert.Equal(t, def.Height, got.Height)
	assert.Equal(t, 0.0, got.TickSize)
	assert.Equal(t, scale.MaxZoom, got.ZoomX)
	assert.Equal(t, scale.MinZoom, got.ZoomY)
	assert.Equal(t, StyleBidAsk, got.FootprintStyle)
	assert.Equal(t, def.BaseRowPx, got.BaseRowPx)
	assert.Equal(t, def.ImbalanceRatio, got.ImbalanceRatio)
	assert.Equal(t, "1m", got.Timeframe)
	assert.Equal(t, maxPaneRatio, got.Panes.CVD.Ratio)
}

func TestSanitize_MarginsMustLeaveRoom(t *testing.T) {
	o := DefaultOptions()
	o.Width = 100
	o.Margin = scale.Margin{Left: 60, Right: 60}

	got, notes := o.Sanitize()
	require.NotEmpty(t, notes)
	assert.Equal(t, DefaultOptions().Margin, got.Margin)
}

func TestSanitize_ScalesEnabledPanes(t *testing.T) {
	o := DefaultOptions()
	o.Panes.CVD = PaneOption{Enabled: true, Ratio: 0.6}
	o.Panes.OpenInterest = PaneOption{Enabled: true, Ratio: 0.6}
	o.Panes.Funding = PaneOption{Enabled: false, Ratio: 0.6}

	got, _ := o.Sanitize()
	assert.InDelta(t, 0.4, got.Panes.CVD.Ratio, 1e-12)
	assert.InDelta(t, 0.4, got.Panes.OpenInterest.Ratio, 1e-12)
	assert.Equal(t, 0.6, got.Panes.Funding.Ratio, "disabled panes keep their ratio")
}

func TestOptionsPatch_Apply(t *testing.T) {
	base := DefaultOptions()
	w := 800.0
	got := OptionsPatch{
		Width: &w,
		Table: &TableOptionsPatch{CVD: ptr(false)},
		Panes: &PaneOptionsPatch{Funding: &PaneOptionPatch{Ratio: ptr(0.2)}},
	}.Apply(base)

	assert.Equal(t, 800.0, got.Width)
	assert.Equal(t, base.Height, got.Height)
	assert.False(t, got.Table.CVD)
	assert.Equal(t, base.Table.Volume, got.Table.Volume)
	assert.Equal(t, 0.2, got.Panes.Funding.Ratio)
	assert.Equal(t, base.Panes.Funding.Enabled, got.Panes.Funding.Enabled)

	assert.Equal(t, base, OptionsPatch{}.Apply(base))
}

func TestOptions_YAML(t *testing.T) {
	src := `
width: 1600
footprint_style: delta
panes:
  oi:
    enabled: true
theme:
  up: "#00ff00"
`
	o := DefaultOptions()
	require.NoError(t, yaml.Unmarshal([]byte(src), &o))
	o, notes := o.Sanitize()

	assert.Empty(t, notes)
	assert.Equal(t, 1600.0, o.Width)
	assert.Equal(t, StyleDelta, o.FootprintStyle)
	assert.True(t, o.Panes.OpenInterest.Enabled)
	assert.Equal(t, 0.12, o.Panes.OpenInterest.Ratio)
	assert.Equal(t, "#00ff00", o.Theme.Up)
	assert.Equal(t, DefaultOptions().Theme.Down, o.Theme.Down)
}
