package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/chart"
	"footprint-chart/internal/ingest"
	"footprint-chart/internal/model"
	"footprint-chart/internal/oi"
	"footprint-chart/internal/orderbook"
	"footprint-chart/internal/store"
)

const t0 = int64(1_714_557_600_000) // 2024-05-01T10:00:00Z

func testChart() *chart.Chart {
	o := chart.DefaultOptions()
	o.Width, o.Height = 1000, 600
	o.TickSize = 0.5
	return chart.New(o)
}

// testBar has volume 10+i on a 0.5 grid.
func testBar(i int) model.Bar {
	return model.Bar{
		Time: t0 + int64(i)*60_000, Open: 100, High: 101, Low: 99.5, Close: 100.5,
		Footprint: []model.FootprintLevel{
			{Price: 101, Buy: 1, Sell: 2},
			{Price: 100.5, Buy: float64(i + 1), Sell: 1},
			{Price: 100, Buy: 2, Sell: 2},
			{Price: 99.5, Buy: 1},
		},
	}
}

type fakeRecorder struct {
	mu   sync.Mutex
	bars []model.Bar
}

func (r *fakeRecorder) Record(b model.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars = append(r.bars, b)
}

// start runs s and returns a func that stops it and returns Run's error.
func start(t *testing.T, s *Service) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func baseBars(t *testing.T, s *Service) []model.Bar {
	var out []model.Bar
	require.NoError(t, s.Do(context.Background(), func(c *chart.Chart) {
		out = append(out, c.BaseBars()...)
	}))
	return out
}

func TestService_FoldsTradesIntoBars(t *testing.T) {
	trades := make(chan model.Trade, 8)
	rec := &fakeRecorder{}
	s := New(testChart(), WithTrades(trades), WithRecorder(rec))

	trades <- model.Trade{ID: 1, Price: 100, Quantity: 1, Time: t0 + 1_000}
	trades <- model.Trade{ID: 2, Price: 100.4, Quantity: 2, Time: t0 + 2_000, BuyerMaker: true}
	trades <- model.Trade{ID: 3, Price: 101, Quantity: 1, Time: t0 + 61_000}
	stop := start(t, s)

	require.Eventually(t, func() bool { return len(baseBars(t, s)) == 2 }, 5*time.Second, 10*time.Millisecond)

	bars := baseBars(t, s)
	assert.Equal(t, t0, bars[0].Time)
	assert.Equal(t, 100.4, bars[0].Close)
	assert.Equal(t, 3.0, bars[0].Volume())
	assert.Equal(t, -1.0, bars[0].Delta())
	assert.Equal(t, 101.0, bars[1].Open)
	assert.Equal(t, 101.0, s.Price())

	require.NoError(t, stop())
	require.Len(t, rec.bars, 1)
	assert.Equal(t, t0, rec.bars[0].Time)
	assert.Equal(t, 1, s.history.Size())
}

func TestService_LoadsAndSavesHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, store.CSVSaver{}.Save([]model.Bar{testBar(0), testBar(1), testBar(2)}, path))

	trades := make(chan model.Trade, 1)
	s := New(testChart(), WithTrades(trades), WithHistory(path, "", 100))
	s.now = func() time.Time { return time.UnixMilli(t0 + 3_600_000) }
	stop := start(t, s)

	require.Eventually(t, func() bool { return len(baseBars(t, s)) == 3 }, 5*time.Second, 10*time.Millisecond)

	trades <- model.Trade{ID: 1, Price: 100, Quantity: 1, Time: t0 + 600_000}
	require.Eventually(t, func() bool { return len(baseBars(t, s)) == 4 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	saved, err := store.Load(path)
	require.NoError(t, err)
	require.Len(t, saved, 4)
	assert.Equal(t, 12.0, saved[2].Volume())
	assert.Equal(t, t0+600_000, saved[3].Time)
}

func TestService_SeedsOpenBarFromRecorderFiles(t *testing.T) {
	dir := t.TempDir()
	r := store.NewRecorder(dir, nil)
	r.Record(testBar(0))
	r.Record(testBar(1))
	r.Close()

	trades := make(chan model.Trade, 1)
	s := New(testChart(), WithTrades(trades),
		WithHistory(filepath.Join(t.TempDir(), "missing.parquet"), dir, 100))
	s.now = func() time.Time { return time.UnixMilli(t0 + 65_000) }
	stop := start(t, s)

	require.Eventually(t, func() bool { return len(baseBars(t, s)) == 2 }, 5*time.Second, 10*time.Millisecond)

	trades <- model.Trade{ID: 1, Price: 100, Quantity: 3, Time: t0 + 70_000}
	require.Eventually(t, func() bool {
		bars := baseBars(t, s)
		return len(bars) == 2 && bars[1].Volume() == 14
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, 1, s.history.Size())
}

func TestService_DepthFeedsDOM(t *testing.T) {
	c := testChart()
	c.SetData([]model.Bar{testBar(0), testBar(1)})
	book := orderbook.NewBook()
	s := New(c, WithBook(book))

	s.syncDepth()
	assert.Nil(t, c.Frame().DOM)

	book.UpdateDepth(
		[]orderbook.PriceLevel{{Price: 100.2, Quantity: 2}, {Price: 100, Quantity: 1}},
		[]orderbook.PriceLevel{{Price: 100.5, Quantity: 1}},
		t0,
	)
	s.syncDepth()
	dom := c.Frame().DOM
	require.NotNil(t, dom)
	assert.Equal(t, book.Pressure().Score, dom.Score)
	assert.Equal(t, book.Pressure().Absorb, dom.Absorb)
	assert.Equal(t, book.Pressure().LiqVel, dom.LiqVel)
	assert.NotZero(t, dom.Score)
	assert.Equal(t, 100.0, dom.BestBid)
	assert.Equal(t, 100.5, dom.BestAsk)
	assert.Len(t, dom.Rows, 2)
	assert.True(t, s.dirty)
}

func TestService_SeriesFeedPanes(t *testing.T) {
	o := chart.DefaultOptions()
	o.TickSize = 0.5
	o.Panes.OpenInterest.Enabled = true
	o.Panes.Funding.Enabled = true
	c := chart.New(o)
	c.SetData([]model.Bar{testBar(0), testBar(1)})
	s := New(c)

	s.onSeries(ingest.Series{Kind: ingest.SeriesOpenInterest, Sample: model.Sample{Time: t0, Value: 5},
		Behavior: oi.BehaviorLongBuildup})
	s.onSeries(ingest.Series{Kind: ingest.SeriesFunding, Sample: model.Sample{Time: t0 + 60_000, Value: 0.0001}})

	points := map[string]int{}
	behavior := map[string]string{}
	for _, p := range c.Frame().Panes {
		points[p.Kind] = len(p.Points)
		behavior[p.Kind] = p.Behavior
	}
	assert.Equal(t, map[string]int{"cvd": 2, "oi": 2, "funding": 1}, points)
	assert.Equal(t, map[string]string{"cvd": "", "oi": "long-buildup", "funding": ""}, behavior)
}

func TestService_FramesAndStop(t *testing.T) {
	s := New(testChart())
	stop := start(t, s)

	select {
	case f := <-s.Frames():
		assert.Equal(t, "1m", f.Timeframe)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame published")
	}

	require.NoError(t, s.Do(context.Background(), func(c *chart.Chart) {
		require.NoError(t, c.SetTimeframe("5m"))
	}))
	select {
	case f := <-s.Frames():
		assert.Equal(t, "5m", f.Timeframe)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame after timeframe switch")
	}

	require.NoError(t, stop())
	assert.ErrorIs(t, s.Do(context.Background(), func(*chart.Chart) {}), ErrStopped)
}

func TestService_DetectsTickFromRawTrades(t *testing.T) {
	c := chart.New(chart.DefaultOptions())
	s := New(c)
	require.False(t, c.TickKnown())
	assert.Equal(t, 0.0, s.builder.Tick())

	for i, p := range []float64{2000.01, 2000.02, 2000.03, 2000.05, 2000.07} {
		s.onTrade(model.Trade{ID: int64(i), Price: p, Quantity: 1, Time: t0 + int64(i)*1_000})
	}

	require.True(t, c.TickKnown())
	assert.Equal(t, 0.01, c.TickSize())
	assert.Equal(t, 0.01, s.builder.Tick())

	bars := c.BaseBars()
	require.Len(t, bars, 1)
	prices := make([]float64, 0, len(bars[0].Footprint))
	for _, l := range bars[0].Footprint {
		prices = append(prices, l.Price)
	}
	assert.Equal(t, []float64{2000.07, 2000.05, 2000.03, 2000.02, 2000.01}, prices)
	assert.Equal(t, 5.0, bars[0].Volume())
}

func TestService_ChartBaseBoundedByHistory(t *testing.T) {
	c := testChart()
	s := New(c, WithHistory("", "", 3))

	for i := 0; i < 6; i++ {
		s.onTrade(model.Trade{ID: int64(i), Price: 100, Quantity: 1, Time: t0 + int64(i)*60_000})
	}

	assert.Equal(t, 3, s.history.Size())
	bars := c.BaseBars()
	require.Len(t, bars, 4)
	assert.Equal(t, t0+2*60_000, bars[0].Time)
	assert.Equal(t, t0+5*60_000, bars[3].Time)
	assert.Equal(t, 4, c.VisibleRange().EndIndex)
}
