package oi

import (
	"math"
	"sync/atomic"

	"footprint-chart/internal/model"
)

// =============================================================================
// OPEN INTEREST: Mathematical Foundation
// =============================================================================
//
// Open Interest (OI) is the number of outstanding contracts. Its change against
// the price change between two polls classifies who is acting:
//
//   Price ↑  ×  OI ↑  →  LONG BUILDUP       fresh longs
//   Price ↓  ×  OI ↑  →  SHORT BUILDUP      fresh shorts
//   Price ↑  ×  OI ↓  →  SHORT COVERING     shorts closing
//   Price ↓  ×  OI ↓  →  LONG LIQUIDATION   longs closing
//
// NEUTRAL when either change is inside its noise band:
//   |ΔOI|    <= prevOI · OINoiseRatio
//   |Δprice| <= PriceNoise
//
// DELTAS:
//   Delta     = OI - OI at the previous poll
//   DeltaLong = OI - OI LongWindow polls ago (ring buffer)
//
// The funding rate is carried through as the latest published value.
//
// =============================================================================

const (
	LongWindow   = 20 // polls; 20 × 3s ≈ 1 minute
	OINoiseRatio = 0.0001
	PriceNoise   = 1.0
)

// Behavior is the OI × price classification.
type Behavior int

const (
	BehaviorNeutral Behavior = iota
	BehaviorLongBuildup
	BehaviorShortBuildup
	BehaviorShortCovering
	BehaviorLongLiquidation
)

func (b Behavior) String() string {
	switch b {
	case BehaviorLongBuildup:
		return "long-buildup"
	case BehaviorShortBuildup:
		return "short-buildup"
	case BehaviorShortCovering:
		return "short-covering"
	case BehaviorLongLiquidation:
		return "long-liquidation"
	}
	return "neutral"
}

// State is the latest OI analytics, shared via atomic pointer.
type State struct {
	Time        int64    `json:"time"`
	OI          float64  `json:"oi"`
	Delta       float64  `json:"delta"`
	DeltaLong   float64  `json:"deltaLong"`
	Behavior    Behavior `json:"behavior"`
	PriceAtOI   float64  `json:"priceAtOI"`
	FundingRate float64  `json:"fundingRate"`
	FundingTime int64    `json:"fundingTime"`
}

// Sampler maintains OI state. It is written by a SINGLE goroutine (the poller)
// and read lock-free from anywhere via State.
type Sampler struct {
	state atomic.Pointer[State]

	prevOI    float64
	prevPrice float64

	ring    [LongWindow]float64
	ringIdx int
	ringLen int
}

func NewSampler() *Sampler {
	s := &Sampler{}
	s.state.Store(&State{})
	return s
}

// State returns the latest published state.
func (s *Sampler) State() State { return *s.state.Load() }

// Update records an OI reading taken at time t (Unix ms) while the market
// traded at price. Non-finite or negative readings are ignored.
func (s *Sampler) Update(oi, price float64, t int64) (State, bool) {
	if math.IsNaN(oi) || math.IsInf(oi, 0) || oi < 0 {
		return s.State(), false
	}
	prev := s.State()
	st := &State{
		Time:        t,
		OI:          oi,
		PriceAtOI:   price,
		FundingRate: prev.FundingRate,
		FundingTime: prev.FundingTime,
	}

	// ─── DELTA (vs previous poll) ───
	if s.prevOI > 0 {
		st.Delta = oi - s.prevOI
	}

	// ─── DELTA (long window) ───
	if s.ringLen == LongWindow {
		st.DeltaLong = oi - s.ring[s.ringIdx]
	}
	s.ring[s.ringIdx] = oi
	s.ringIdx = (s.ringIdx + 1) % LongWindow
	if s.ringLen < LongWindow {
		s.ringLen++
	}

	// ─── BEHAVIOR ───
	if s.prevOI > 0 && s.prevPrice > 0 && price > 0 {
		st.Behavior = Classify(oi-s.prevOI, price-s.prevPrice, s.prevOI)
	}

	s.prevOI = oi
	if price > 0 {
		s.prevPrice = price
	}
	s.state.Store(st)
	return *st, true
}

// UpdateFunding records the funding rate published at time t.
func (s *Sampler) UpdateFunding(rate float64, t int64) (State, bool) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return s.State(), false
	}
	st := s.State()
	st.FundingRate = rate
	st.FundingTime = t
	s.state.Store(&st)
	return st, true
}

// Classify maps an OI change and a price change onto a Behavior.
func Classify(oiChange, priceChange, prevOI float64) Behavior {
	oiBand := prevOI * OINoiseRatio
	oiUp := oiChange > oiBand
	oiDown := oiChange < -oiBand
	priceUp := priceChange > PriceNoise
	priceDown := priceChange < -PriceNoise

	switch {
	case priceUp && oiUp:
		return BehaviorLongBuildup
	case priceDown && oiUp:
		return BehaviorShortBuildup
	case priceUp && oiDown:
		return BehaviorShortCovering
	case priceDown && oiDown:
		return BehaviorLongLiquidation
	}
	return BehaviorNeutral
}

// OISample is the OI reading as a chart series point.
func (st State) OISample() model.Sample { return model.Sample{Time: st.Time, Value: st.OI} }

// FundingSample is the funding rate as a chart series point.
func (st State) FundingSample() model.Sample {
	return model.Sample{Time: st.FundingTime, Value: st.FundingRate}
}
