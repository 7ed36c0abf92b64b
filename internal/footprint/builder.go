package footprint

import (
	"math"
	"sync/atomic"

	"footprint-chart/internal/model"
)

// =============================================================================
// LIVE FOOTPRINT BUILDER: Mathematical Foundation
// =============================================================================
//
// Every aggregated trade lands in exactly one one-minute bucket:
//   bucket = floor(T / 60000) * 60000
//
// Inside the bucket the trade updates:
//   OHLC:      open = first price, high/low = extremes, close = last price
//   Footprint: level(q(p)) += qty on the aggressor side, where
//              q(p) = round(p / tick) * tick
//
// Aggressor side comes from the aggTrade 'm' flag:
//   m = true   buyer was the maker, seller crossed the spread  -> Sell
//   m = false  buyer crossed the spread                        -> Buy
//
// CVD is the running Σ(buy - sell) over every accepted trade.
//
// A trade for a newer minute closes the open bar. Trades older than the open
// bar are late prints and are rejected: the closed bar was already handed off.
//
// =============================================================================

// Update is what one trade did to the live bar.
type Update struct {
	Bar    model.Bar  // the open bar after the trade
	Closed *model.Bar // the bar this trade closed, if any
	CVD    float64
}

// Builder folds trades into the open one-minute footprint bar.
// It is owned by a single goroutine; Price is safe to read from any goroutine.
type Builder struct {
	CVD       float64
	LastPrice float64
	Trades    uint64

	tick float64
	bar  model.Bar
	acc  *model.LevelAccumulator
	open bool

	price atomic.Pointer[float64]
}

// NewBuilder creates a builder quantizing to tick. A tick <= 0 keeps raw prices.
func NewBuilder(tick float64) *Builder {
	b := &Builder{tick: tick}
	initial := 0.0
	b.price.Store(&initial)
	return b
}

// SetTick changes the price grid for subsequent trades. The open bar is re-snapped.
func (b *Builder) SetTick(tick float64) {
	if tick == b.tick {
		return
	}
	b.tick = tick
	if b.open {
		b.Seed(b.current())
	}
}

func (b *Builder) Tick() float64 { return b.tick }

// Price returns the latest trade price.
// LOCK-FREE: atomic load, safe for the OI poller goroutine.
func (b *Builder) Price() float64 {
	if p := b.price.Load(); p != nil {
		return *p
	}
	return 0
}

// Seed continues bar as the open bar, e.g. the last bar loaded from history.
func (b *Builder) Seed(bar model.Bar) {
	b.bar = bar
	b.bar.Time = model.MinuteStart(bar.Time)
	b.bar.Footprint = nil
	b.acc = model.NewLevelAccumulator(len(bar.Footprint))
	for _, l := range bar.Footprint {
		l.Price = model.Quantize(l.Price, b.tick)
		b.acc.Add(l)
	}
	b.open = true
}

// Current returns the open bar.
func (b *Builder) Current() (model.Bar, bool) {
	if !b.open {
		return model.Bar{}, false
	}
	return b.current(), true
}

func (b *Builder) current() model.Bar {
	out := b.bar
	out.Footprint = b.acc.Levels()
	return out
}

// ProcessTrade applies t. It reports false for trades that change nothing:
// non-finite or non-positive price/quantity, and late prints.
func (b *Builder) ProcessTrade(t model.Trade) (Update, bool) {
	if !finitePositive(t.Price) || !finitePositive(t.Quantity) {
		return Update{}, false
	}
	minute := model.MinuteStart(t.Time)
	if b.open && minute < b.bar.Time {
		return Update{}, false
	}

	var u Update
	if !b.open || minute > b.bar.Time {
		if b.open {
			closed := b.current()
			u.Closed = &closed
		}
		b.bar = model.Bar{Time: minute, Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price}
		b.acc = model.NewLevelAccumulator(8)
		b.open = true
	}

	// ─── OHLC ───
	b.bar.High = math.Max(b.bar.High, t.Price)
	b.bar.Low = math.Min(b.bar.Low, t.Price)
	b.bar.Close = t.Price

	// ─── FOOTPRINT ───
	b.acc.Add(t.Level(model.Quantize(t.Price, b.tick)))

	// ─── CVD ───
	b.CVD += t.SignedQuantity()
	b.LastPrice = t.Price
	b.Trades++

	// ─── PRICE PUBLISH ───
	p := t.Price
	b.price.Store(&p)

	u.Bar = b.current()
	u.CVD = b.CVD
	return u, true
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
