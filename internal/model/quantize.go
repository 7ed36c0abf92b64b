package model

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

// Prices and tick sizes go through decimal so that 0.1-style ticks land on exact grid
// values instead of accumulating binary float error.

// Quantize snaps price to the nearest multiple of tick.
func Quantize(price, tick float64) float64 {
	if !(tick > 0) || math.IsNaN(price) || math.IsInf(price, 0) {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

// TickAbove returns the smallest multiple of tick strictly greater than price.
func TickAbove(price, tick float64) float64 {
	if !(tick > 0) || math.IsNaN(price) || math.IsInf(price, 0) {
		return price
	}
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(price).Div(t).Floor().Add(decimal.NewFromInt(1))
	return steps.Mul(t).InexactFloat64()
}

// AddTicks returns price + n*tick without float drift.
func AddTicks(price, tick float64, n int64) float64 {
	return decimal.NewFromFloat(price).Add(decimal.NewFromFloat(tick).Mul(decimal.NewFromInt(n))).InexactFloat64()
}

// DetectTickSize infers the tick from the smallest positive gap between adjacent
// footprint prices of any bar. It returns 0 when no bar has two distinct levels.
func DetectTickSize(bars []Bar) float64 {
	best := decimal.Zero
	prices := make([]decimal.Decimal, 0, 64)
	for _, b := range bars {
		if len(b.Footprint) < 2 {
			continue
		}
		prices = prices[:0]
		for _, l := range b.Footprint {
			if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
				continue
			}
			prices = append(prices, decimal.NewFromFloat(l.Price))
		}
		slices.SortFunc(prices, func(a, b decimal.Decimal) int { return a.Cmp(b) })
		for i := 1; i < len(prices); i++ {
			gap := prices[i].Sub(prices[i-1])
			if !gap.IsPositive() {
				continue
			}
			if best.IsZero() || gap.LessThan(best) {
				best = gap
			}
		}
	}
	return best.InexactFloat64()
}
