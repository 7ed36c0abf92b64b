package model

import (
	"encoding/json"
	"math"
	"slices"
)

// FootprintLevel is the traded volume at one price inside a bar.
// Buy is aggressive (taker) buying, Sell is aggressive selling.
type FootprintLevel struct {
	Price float64 `json:"price"`
	Buy   float64 `json:"buy"`
	Sell  float64 `json:"sell"`
}

// Volume returns buy + sell.
func (l FootprintLevel) Volume() float64 { return l.Buy + l.Sell }

// Delta returns buy - sell.
func (l FootprintLevel) Delta() float64 { return l.Buy - l.Sell }

// Bar is one candle with its footprint. Time is Unix milliseconds, UTC.
type Bar struct {
	Time      int64            `json:"time"`
	Open      float64          `json:"open"`
	High      float64          `json:"high"`
	Low       float64          `json:"low"`
	Close     float64          `json:"close"`
	Footprint []FootprintLevel `json:"footprint,omitempty"`
}

// Clone returns a copy that shares no footprint storage with b.
func (b Bar) Clone() Bar {
	out := b
	if b.Footprint != nil {
		out.Footprint = slices.Clone(b.Footprint)
	}
	return out
}

// BuyVolume sums the buy side of the footprint.
func (b Bar) BuyVolume() float64 {
	var v float64
	for _, l := range b.Footprint {
		v += l.Buy
	}
	return v
}

// SellVolume sums the sell side of the footprint.
func (b Bar) SellVolume() float64 {
	var v float64
	for _, l := range b.Footprint {
		v += l.Sell
	}
	return v
}

// Volume is the total footprint volume.
func (b Bar) Volume() float64 { return b.BuyVolume() + b.SellVolume() }

// Delta is buy volume minus sell volume.
func (b Bar) Delta() float64 { return b.BuyVolume() - b.SellVolume() }

// MaxPrice is the highest price the bar touches, footprint levels included.
func (b Bar) MaxPrice() float64 {
	p := b.High
	for _, l := range b.Footprint {
		if l.Price > p {
			p = l.Price
		}
	}
	return p
}

// Normalize repairs the OHLC envelope (high >= open/close, low <= open/close),
// merges duplicate footprint prices and, when tick > 0, snaps levels to the tick grid.
func (b Bar) Normalize(tick float64) Bar {
	out := b
	out.High = math.Max(b.High, math.Max(b.Open, b.Close))
	out.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
	if len(b.Footprint) == 0 {
		out.Footprint = nil
		return out
	}
	acc := NewLevelAccumulator(len(b.Footprint))
	for _, l := range b.Footprint {
		if tick > 0 {
			l.Price = Quantize(l.Price, tick)
		}
		acc.Add(l)
	}
	out.Footprint = acc.Levels()
	return out
}

// UnmarshalJSON accepts time as an ISO-8601 string or an epoch number.
func (b *Bar) UnmarshalJSON(data []byte) error {
	type alias Bar
	var raw struct {
		alias
		Time json.RawMessage `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Bar(raw.alias)
	if len(raw.Time) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw.Time, &v); err != nil {
		return err
	}
	ms, err := ParseTime(v)
	if err != nil {
		return err
	}
	b.Time = ms
	return nil
}

// LevelAccumulator merges footprint levels by price: identical prices always sum.
// It is the single merge rule for one bar's footprint and for timeframe buckets.
type LevelAccumulator struct {
	index  map[float64]int
	levels []FootprintLevel
}

// NewLevelAccumulator sizes the accumulator for n distinct prices.
func NewLevelAccumulator(n int) *LevelAccumulator {
	return &LevelAccumulator{
		index:  make(map[float64]int, n),
		levels: make([]FootprintLevel, 0, n),
	}
}

// Add merges l into the accumulator.
func (a *LevelAccumulator) Add(l FootprintLevel) {
	if i, ok := a.index[l.Price]; ok {
		a.levels[i].Buy += l.Buy
		a.levels[i].Sell += l.Sell
		return
	}
	a.index[l.Price] = len(a.levels)
	a.levels = append(a.levels, l)
}

// AddAll merges every level of ls.
func (a *LevelAccumulator) AddAll(ls []FootprintLevel) {
	for _, l := range ls {
		a.Add(l)
	}
}

// Len is the number of distinct prices.
func (a *LevelAccumulator) Len() int { return len(a.levels) }

// Levels returns a fresh slice sorted by price, highest first.
func (a *LevelAccumulator) Levels() []FootprintLevel {
	out := slices.Clone(a.levels)
	SortLevelsDesc(out)
	return out
}

// SortLevelsDesc sorts levels in place by price, highest first.
func SortLevelsDesc(levels []FootprintLevel) {
	slices.SortStableFunc(levels, func(a, b FootprintLevel) int {
		switch {
		case a.Price > b.Price:
			return -1
		case a.Price < b.Price:
			return 1
		}
		return 0
	})
}

// MergeLevels merges any number of level lists into one price-unique list sorted high to low.
func MergeLevels(lists ...[]FootprintLevel) []FootprintLevel {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	acc := NewLevelAccumulator(n)
	for _, l := range lists {
		acc.AddAll(l)
	}
	return acc.Levels()
}

// Sample is one point of an auxiliary series (open interest, funding rate).
type Sample struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// DepthLevel is one row of the depth-of-market ladder.
type DepthLevel struct {
	Price float64 `json:"price"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}
