package profile

import (
	"math"
	"slices"

	"footprint-chart/internal/model"
)

// =============================================================================
// VOLUME PROFILE: Point of Control / Value Area
// =============================================================================
//
// Input: one bar's footprint, sorted by price DESCENDING (index 0 = highest price).
//
//   v[i]   = buy[i] + sell[i]          (non-finite or negative sides count as 0)
//   total  = Σ v[i]
//   POC    = argmax v[i]               first occurrence wins on ties
//
// Value area, greedy outward walk from POC:
//
//   up = POC-1, down = POC+1, acc = v[POC]
//   while acc < 0.70*total and (up >= 0 or down < n):
//       take up   if up valid and (down invalid or v[up] >= v[down])
//       take down otherwise
//
//   VAH = lowest included index  (highest price)
//   VAL = highest included index (lowest price)
//
// Each step consumes one level, so the walk is O(n). With fewer than
// MinValueAreaLevels levels only POC and totals are reported.
//
// =============================================================================

const (
	ValueAreaShare     = 0.70
	MinValueAreaLevels = 4
)

// VolumeArea is the profile summary of one bar.
type VolumeArea struct {
	POCIndex     int     `json:"pocIndex"`
	VAHIndex     int     `json:"vahIndex"`
	VALIndex     int     `json:"valIndex"`
	POCPrice     float64 `json:"pocPrice"`
	VAHPrice     float64 `json:"vahPrice"`
	VALPrice     float64 `json:"valPrice"`
	TotalVolume  float64 `json:"totalVolume"`
	BuyVolume    float64 `json:"buyVolume"`
	SellVolume   float64 `json:"sellVolume"`
	AreaVolume   float64 `json:"areaVolume"`
	HasValueArea bool    `json:"hasValueArea"`
}

// Delta is buy minus sell over the whole bar.
func (a VolumeArea) Delta() float64 { return a.BuyVolume - a.SellVolume }

// ComputeVolumeArea summarizes levels, which must already be sorted by price descending.
// An empty input yields indices of -1 and zero totals.
func ComputeVolumeArea(levels []model.FootprintLevel) VolumeArea {
	n := len(levels)
	out := VolumeArea{POCIndex: -1, VAHIndex: -1, VALIndex: -1}
	if n == 0 {
		return out
	}

	vols := make([]float64, n)
	maxVol := math.Inf(-1)
	for i, l := range levels {
		buy, sell := sanitize(l.Buy), sanitize(l.Sell)
		vols[i] = buy + sell
		out.BuyVolume += buy
		out.SellVolume += sell
		if vols[i] > maxVol {
			maxVol = vols[i]
			out.POCIndex = i
		}
	}
	out.TotalVolume = out.BuyVolume + out.SellVolume
	out.POCPrice = levels[out.POCIndex].Price

	out.VAHIndex, out.VALIndex = out.POCIndex, out.POCIndex
	out.VAHPrice, out.VALPrice = out.POCPrice, out.POCPrice
	out.AreaVolume = vols[out.POCIndex]
	if n < MinValueAreaLevels {
		return out
	}
	out.HasValueArea = true

	target := out.TotalVolume * ValueAreaShare
	up, down := out.POCIndex-1, out.POCIndex+1
	acc := vols[out.POCIndex]
	for acc < target && (up >= 0 || down < n) {
		upOK, downOK := up >= 0, down < n
		if upOK && (!downOK || vols[up] >= vols[down]) {
			acc += vols[up]
			out.VAHIndex = up
			up--
		} else {
			acc += vols[down]
			out.VALIndex = down
			down++
		}
	}
	out.AreaVolume = acc
	out.VAHPrice = levels[out.VAHIndex].Price
	out.VALPrice = levels[out.VALIndex].Price
	return out
}

// SortedLevels returns a copy of levels sorted by price descending, ready for ComputeVolumeArea.
func SortedLevels(levels []model.FootprintLevel) []model.FootprintLevel {
	out := slices.Clone(levels)
	model.SortLevelsDesc(out)
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
