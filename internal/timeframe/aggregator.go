package timeframe

import (
	"math"
	"slices"

	"footprint-chart/internal/model"
)

// =============================================================================
// TIMEFRAME AGGREGATION
// =============================================================================
//
// Base bars are one-minute bars. A coarser bar is the fold of every base bar
// whose bucket key matches:
//
//   key   = floor(minute / multiple) * multiple
//   time  = first constituent time
//   open  = first constituent open
//   high  = max(high),  low = min(low)
//   close = last constituent close
//   fp    = Σ buy / Σ sell per unique price (model.LevelAccumulator), price desc
//
// Results are cached per timeframe. Every base write (set, append, replace-last)
// clears the whole cache; the next read rebuilds lazily. Output footprints are
// always freshly allocated and never alias the base bars.
//
// =============================================================================

// Aggregator owns the base bar sequence and the per-timeframe cache.
// It is not safe for concurrent use; the chart owner serializes access.
type Aggregator struct {
	base    []model.Bar
	current Timeframe
	cache   map[string][]model.Bar
}

// NewAggregator starts empty on the base timeframe.
func NewAggregator() *Aggregator {
	return &Aggregator{
		current: Base,
		cache:   make(map[string][]model.Bar),
	}
}

// SetBaseData replaces the base sequence with a private copy of bars.
func (a *Aggregator) SetBaseData(bars []model.Bar) {
	a.base = make([]model.Bar, len(bars))
	for i, b := range bars {
		a.base[i] = b.Clone()
	}
	a.invalidate()
}

// AppendBar appends a new base bar.
func (a *Aggregator) AppendBar(b model.Bar) {
	a.base = append(a.base, b.Clone())
	a.invalidate()
}

// UpdateLastBar replaces the last base bar when b carries the same time,
// otherwise appends it. It reports whether a replace happened.
func (a *Aggregator) UpdateLastBar(b model.Bar) bool {
	if n := len(a.base); n > 0 && a.base[n-1].Time == b.Time {
		a.base[n-1] = b.Clone()
		a.invalidate()
		return true
	}
	a.AppendBar(b)
	return false
}

// Trim keeps the newest n base bars and reports how many were dropped.
func (a *Aggregator) Trim(n int) int {
	if n < 0 || len(a.base) <= n {
		return 0
	}
	drop := len(a.base) - n
	a.base = slices.Clone(a.base[drop:])
	a.invalidate()
	return drop
}

func (a *Aggregator) invalidate() {
	clear(a.cache)
}

// Base returns the base sequence. Callers must not modify it.
func (a *Aggregator) Base() []model.Bar { return a.base }

// Len is the number of base bars.
func (a *Aggregator) Len() int { return len(a.base) }

// Last returns the newest base bar.
func (a *Aggregator) Last() (model.Bar, bool) {
	if len(a.base) == 0 {
		return model.Bar{}, false
	}
	return a.base[len(a.base)-1], true
}

// SetTimeframe selects the timeframe served by Bars.
func (a *Aggregator) SetTimeframe(name string) error {
	tf, err := Get(name)
	if err != nil {
		return err
	}
	a.current = tf
	return nil
}

// Timeframe returns the selected timeframe.
func (a *Aggregator) Timeframe() Timeframe { return a.current }

// Bars returns the sequence for the selected timeframe.
func (a *Aggregator) Bars() []model.Bar { return a.Aggregated(a.current) }

// Aggregated returns bars bucketed to tf. The base timeframe gets the base
// slice itself; anything coarser comes from the cache or is rebuilt. Callers
// must not modify the result.
func (a *Aggregator) Aggregated(tf Timeframe) []model.Bar {
	if tf.IsBase() {
		return a.base
	}
	if bars, ok := a.cache[tf.Name]; ok {
		return bars
	}
	bars := Aggregate(a.base, tf)
	a.cache[tf.Name] = bars
	return bars
}

type bucket struct {
	key    int64
	bar    model.Bar
	levels *model.LevelAccumulator
}

// Aggregate buckets bars by tf without caching. Empty input yields an empty result.
func Aggregate(bars []model.Bar, tf Timeframe) []model.Bar {
	if len(bars) == 0 {
		return []model.Bar{}
	}

	index := make(map[int64]int)
	buckets := make([]*bucket, 0, len(bars)/int(max(tf.Multiple, 1))+1)
	for _, b := range bars {
		key := tf.BucketStart(b.Time)
		i, ok := index[key]
		if !ok {
			index[key] = len(buckets)
			buckets = append(buckets, &bucket{
				key: key,
				bar: model.Bar{
					Time:  b.Time,
					Open:  b.Open,
					High:  b.High,
					Low:   b.Low,
					Close: b.Close,
				},
				levels: model.NewLevelAccumulator(len(b.Footprint)),
			})
			buckets[len(buckets)-1].levels.AddAll(b.Footprint)
			continue
		}
		bk := buckets[i]
		bk.bar.High = math.Max(bk.bar.High, b.High)
		bk.bar.Low = math.Min(bk.bar.Low, b.Low)
		bk.bar.Close = b.Close
		bk.levels.AddAll(b.Footprint)
	}

	slices.SortStableFunc(buckets, func(x, y *bucket) int {
		switch {
		case x.key < y.key:
			return -1
		case x.key > y.key:
			return 1
		}
		return 0
	})

	out := make([]model.Bar, len(buckets))
	for i, bk := range buckets {
		bk.bar.Footprint = bk.levels.Levels()
		if len(bk.bar.Footprint) == 0 {
			bk.bar.Footprint = nil
		}
		out[i] = bk.bar
	}
	return out
}
