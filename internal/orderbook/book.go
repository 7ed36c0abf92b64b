package orderbook

import (
	"math"
	"sort"
	"sync/atomic"

	"footprint-chart/internal/model"
)

// =============================================================================
// ORDERBOOK PRESSURE: Mathematical Foundation
// =============================================================================
//
// The book mirrors the exchange's partial depth stream (top N levels per side,
// full snapshot per message) and derives:
//
// 1) BID/ASK VOLUME IMBALANCE over the top ImbalanceLevels:
//      Imbalance = (BidVol - AskVol) / (BidVol + AskVol)      range [-1, +1]
//
// 2) LIQUIDITY VELOCITY between consecutive snapshots:
//      LiqVel = (BidVol - prevBidVol) - (AskVol - prevAskVol)
//    Positive: bids stacking or asks pulling.
//
// 3) ABSORPTION:
//      stability = min(consecutive unchanged best price / 10, 1)
//      Absorb    = bidStability - askStability                 range [-1, +1]
//
// 4) PRESSURE SCORE:
//      Score = clamp(0.5·Imbalance·100 + 0.3·clamp(LiqVel/100)·100 + 0.2·Absorb·100, ±100)
//
// The DOM ladder is the same snapshot folded onto the chart's tick grid:
//      row(q(p)).Bid += bidQty,  row(q(p)).Ask += askQty
//
// =============================================================================

const (
	MaxDepthLevels  = 20
	ImbalanceLevels = 10
)

// PriceLevel is a single bid or ask level.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// Pressure is the computed analytics for one depth snapshot.
type Pressure struct {
	BestBid   float64 `json:"bestBid"`
	BestAsk   float64 `json:"bestAsk"`
	Spread    float64 `json:"spread"`
	BidVol    float64 `json:"bidVol"`
	AskVol    float64 `json:"askVol"`
	Imbalance float64 `json:"imbalance"`
	LiqVel    float64 `json:"liqVel"`
	Absorb    float64 `json:"absorb"`
	Score     int     `json:"score"`
}

// Snapshot is an immutable copy of the book, shared via atomic pointer.
type Snapshot struct {
	Seq      uint64
	Time     int64
	Bids     []PriceLevel // best first
	Asks     []PriceLevel // best first
	Pressure Pressure
}

// Book maintains the L2 book. It is written by a SINGLE goroutine (the depth
// ingester); readers go through Snapshot, which is lock-free.
type Book struct {
	bids [MaxDepthLevels]PriceLevel
	asks [MaxDepthLevels]PriceLevel
	bidN int
	askN int
	seq  uint64

	prevBidVol float64
	prevAskVol float64

	prevBestBid    float64
	bidStableCount int
	prevBestAsk    float64
	askStableCount int

	snap atomic.Pointer[Snapshot]
}

func NewBook() *Book {
	b := &Book{}
	b.snap.Store(&Snapshot{})
	return b
}

// Snapshot returns the latest published snapshot. Never nil.
func (b *Book) Snapshot() *Snapshot { return b.snap.Load() }

// Pressure returns the latest pressure metrics.
func (b *Book) Pressure() Pressure { return b.Snapshot().Pressure }

// UpdateDepth replaces the depth snapshot. bids must be sorted best (highest)
// first and asks best (lowest) first, as the exchange sends them. Levels with
// non-finite values or non-positive quantity are skipped.
func (b *Book) UpdateDepth(bids, asks []PriceLevel, t int64) {
	b.bidN = copyLevels(b.bids[:], bids)
	b.askN = copyLevels(b.asks[:], asks)
	b.seq++

	s := &Snapshot{
		Seq:  b.seq,
		Time: t,
		Bids: append([]PriceLevel(nil), b.bids[:b.bidN]...),
		Asks: append([]PriceLevel(nil), b.asks[:b.askN]...),
	}
	s.Pressure = b.compute()
	b.snap.Store(s)
}

func copyLevels(dst, src []PriceLevel) int {
	n := 0
	for _, l := range src {
		if n == len(dst) {
			break
		}
		if !finite(l.Price) || !finite(l.Quantity) || l.Quantity <= 0 {
			continue
		}
		dst[n] = l
		n++
	}
	return n
}

func (b *Book) compute() Pressure {
	var p Pressure
	if b.bidN == 0 || b.askN == 0 {
		return p
	}

	// ─── BEST BID/ASK ───
	p.BestBid = b.bids[0].Price
	p.BestAsk = b.asks[0].Price
	p.Spread = p.BestAsk - p.BestBid

	// ─── VOLUME SUMS ───
	for i := 0; i < min(ImbalanceLevels, b.bidN); i++ {
		p.BidVol += b.bids[i].Quantity
	}
	for i := 0; i < min(ImbalanceLevels, b.askN); i++ {
		p.AskVol += b.asks[i].Quantity
	}

	// ─── IMBALANCE ───
	if total := p.BidVol + p.AskVol; total > 0 {
		p.Imbalance = (p.BidVol - p.AskVol) / total
	}

	// ─── LIQUIDITY VELOCITY ───
	if b.prevBidVol > 0 || b.prevAskVol > 0 {
		p.LiqVel = (p.BidVol - b.prevBidVol) - (p.AskVol - b.prevAskVol)
	}
	b.prevBidVol, b.prevAskVol = p.BidVol, p.AskVol

	// ─── ABSORPTION ───
	b.bidStableCount = stableCount(b.bidStableCount, b.prevBestBid, p.BestBid)
	b.askStableCount = stableCount(b.askStableCount, b.prevBestAsk, p.BestAsk)
	b.prevBestBid, b.prevBestAsk = p.BestBid, p.BestAsk

	bidStability := clampF(float64(b.bidStableCount)/10, 0, 1)
	askStability := clampF(float64(b.askStableCount)/10, 0, 1)
	p.Absorb = clampF(bidStability-askStability, -1, 1)

	// ─── PRESSURE SCORE ───
	const (
		w1 = 0.50
		w2 = 0.30
		w3 = 0.20
	)
	liqNorm := clampF(p.LiqVel/100, -1, 1)
	raw := w1*p.Imbalance*100 + w2*liqNorm*100 + w3*p.Absorb*100
	p.Score = int(clampF(raw, -100, 100))
	return p
}

func stableCount(n int, prev, cur float64) int {
	if prev <= 0 {
		return n
	}
	if cur == prev {
		return n + 1
	}
	return 0
}

// Ladder folds the snapshot onto the tick grid, highest price first.
// A tick <= 0 keeps raw prices.
func (s *Snapshot) Ladder(tick float64) []model.DepthLevel {
	if len(s.Bids) == 0 && len(s.Asks) == 0 {
		return nil
	}
	rows := make(map[float64]*model.DepthLevel, len(s.Bids)+len(s.Asks))
	row := func(price float64) *model.DepthLevel {
		p := model.Quantize(price, tick)
		r, ok := rows[p]
		if !ok {
			r = &model.DepthLevel{Price: p}
			rows[p] = r
		}
		return r
	}
	for _, l := range s.Bids {
		row(l.Price).Bid += l.Quantity
	}
	for _, l := range s.Asks {
		row(l.Price).Ask += l.Quantity
	}

	out := make([]model.DepthLevel, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
