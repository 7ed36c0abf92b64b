package profile

import "footprint-chart/internal/model"

// DefaultImbalanceRatio flags a diagonal imbalance when one side is 3x the other.
const DefaultImbalanceRatio = 3.0

// Imbalance marks diagonal bid/ask imbalance on one level.
// BuyImbalance: aggressive buying at this price beats selling one tick below.
// SellImbalance: aggressive selling at this price beats buying one tick above.
type Imbalance struct {
	BuyImbalance  bool `json:"buy"`
	SellImbalance bool `json:"sell"`
}

// Imbalances compares each level diagonally with its neighbours. levels must be sorted
// by price descending; the result is index-aligned with levels. A zero opposite side
// counts as an imbalance only when the own side is positive.
func Imbalances(levels []model.FootprintLevel, ratio float64) []Imbalance {
	if !(ratio > 0) {
		ratio = DefaultImbalanceRatio
	}
	out := make([]Imbalance, len(levels))
	for i := range levels {
		buy, sell := sanitize(levels[i].Buy), sanitize(levels[i].Sell)
		if i+1 < len(levels) {
			below := sanitize(levels[i+1].Sell)
			out[i].BuyImbalance = buy > 0 && buy >= ratio*below
		}
		if i > 0 {
			above := sanitize(levels[i-1].Buy)
			out[i].SellImbalance = sell > 0 && sell >= ratio*above
		}
	}
	return out
}
