package orderbook

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/model"
)

func TestBook_Pressure(t *testing.T) {
	b := NewBook()
	assert.Equal(t, Pressure{}, b.Pressure())

	b.UpdateDepth(
		[]PriceLevel{{100, 3}, {99.5, 1}},
		[]PriceLevel{{100.5, 1}, {101, 1}},
		1,
	)
	p := b.Pressure()
	assert.Equal(t, 100.0, p.BestBid)
	assert.Equal(t, 100.5, p.BestAsk)
	assert.Equal(t, 0.5, p.Spread)
	assert.Equal(t, 4.0, p.BidVol)
	assert.Equal(t, 2.0, p.AskVol)
	assert.InDelta(t, 1.0/3, p.Imbalance, 1e-12)
	assert.Equal(t, 0.0, p.LiqVel)
	assert.Equal(t, 16, p.Score) // 0.5 * 33.3

	// bids stack by 10, asks unchanged, best prices stable
	b.UpdateDepth(
		[]PriceLevel{{100, 13}, {99.5, 1}},
		[]PriceLevel{{100.5, 1}, {101, 1}},
		2,
	)
	p = b.Pressure()
	assert.Equal(t, 10.0, p.LiqVel)
	assert.Equal(t, 0.0, p.Absorb)
	assert.Equal(t, uint64(2), b.Snapshot().Seq)
}

func TestBook_OneSidedBookHasNoPressure(t *testing.T) {
	b := NewBook()
	b.UpdateDepth([]PriceLevel{{100, 1}}, nil, 1)
	assert.Equal(t, Pressure{}, b.Pressure())
	assert.Len(t, b.Snapshot().Bids, 1)
}

func TestBook_SkipsInvalidLevels(t *testing.T) {
	b := NewBook()
	b.UpdateDepth(
		[]PriceLevel{{math.NaN(), 1}, {100, 0}, {99, 2}},
		[]PriceLevel{{101, math.Inf(1)}, {102, 1}},
		1,
	)
	s := b.Snapshot()
	assert.Equal(t, []PriceLevel{{99, 2}}, s.Bids)
	assert.Equal(t, []PriceLevel{{102, 1}}, s.Asks)
}

func TestBook_CapsLevels(t *testing.T) {
	bids := make([]PriceLevel, 30)
	for i := range bids {
		bids[i] = PriceLevel{Price: 100 - float64(i), Quantity: 1}
	}
	b := NewBook()
	b.UpdateDepth(bids, []PriceLevel{{101, 1}}, 1)
	assert.Len(t, b.Snapshot().Bids, MaxDepthLevels)
	assert.Equal(t, float64(ImbalanceLevels), b.Pressure().BidVol)
}

func TestSnapshot_Ladder(t *testing.T) {
	b := NewBook()
	b.UpdateDepth(
		[]PriceLevel{{100.2, 1}, {99.9, 2}, {99.4, 4}},
		[]PriceLevel{{100.6, 1}, {100.9, 3}},
		1,
	)
	got := b.Snapshot().Ladder(0.5)
	require.Len(t, got, 4)
	assert.Equal(t, []model.DepthLevel{
		{Price: 101, Ask: 3},
		{Price: 100.5, Ask: 1},
		{Price: 100, Bid: 3},
		{Price: 99.5, Bid: 4},
	}, got)

	assert.Nil(t, NewBook().Snapshot().Ladder(1))
}
