package profile

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/model"
)

// levelsFromVolumes builds a descending ladder from 100 down, buy carrying the whole volume.
func levelsFromVolumes(vols ...float64) []model.FootprintLevel {
	out := make([]model.FootprintLevel, len(vols))
	for i, v := range vols {
		out[i] = model.FootprintLevel{Price: 100 - float64(i), Buy: v}
	}
	return out
}

func TestComputeVolumeArea_GreedyExpansion(t *testing.T) {
	a := ComputeVolumeArea(levelsFromVolumes(1, 2, 10, 3, 3, 1))

	assert.Equal(t, 2, a.POCIndex)
	assert.Equal(t, 98.0, a.POCPrice)
	assert.True(t, a.HasValueArea)
	assert.Equal(t, 2, a.VAHIndex)
	assert.Equal(t, 4, a.VALIndex)
	assert.Equal(t, 98.0, a.VAHPrice)
	assert.Equal(t, 96.0, a.VALPrice)
	assert.Equal(t, 20.0, a.TotalVolume)
	assert.Equal(t, 16.0, a.AreaVolume)
}

func TestComputeVolumeArea_TieGoesUp(t *testing.T) {
	a := ComputeVolumeArea(levelsFromVolumes(1, 4, 10, 4, 1))

	assert.Equal(t, 1, a.VAHIndex)
	assert.Equal(t, 2, a.VALIndex)
	assert.Equal(t, 14.0, a.AreaVolume)
}

func TestComputeVolumeArea_POCFirstOccurrence(t *testing.T) {
	for i := 0; i < 20; i++ {
		a := ComputeVolumeArea(levelsFromVolumes(1, 7, 7, 2, 1))
		require.Equal(t, 1, a.POCIndex)
	}
	a := ComputeVolumeArea(levelsFromVolumes(3, 3, 3, 3))
	assert.Equal(t, 0, a.POCIndex)
}

func TestComputeVolumeArea_OneSideExhausted(t *testing.T) {
	a := ComputeVolumeArea(levelsFromVolumes(10, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1))

	assert.Equal(t, 0, a.POCIndex)
	assert.Equal(t, 0, a.VAHIndex)
	// 10 + 4 = 14 of 20
	assert.Equal(t, 4, a.VALIndex)
	assert.Equal(t, 14.0, a.AreaVolume)
}

func TestComputeVolumeArea_FewLevels(t *testing.T) {
	a := ComputeVolumeArea(levelsFromVolumes(1, 5, 2))

	assert.False(t, a.HasValueArea)
	assert.Equal(t, 1, a.POCIndex)
	assert.Equal(t, a.POCIndex, a.VAHIndex)
	assert.Equal(t, a.POCIndex, a.VALIndex)
	assert.Equal(t, 8.0, a.TotalVolume)
}

func TestComputeVolumeArea_Empty(t *testing.T) {
	a := ComputeVolumeArea(nil)
	assert.Equal(t, -1, a.POCIndex)
	assert.False(t, a.HasValueArea)
	assert.Zero(t, a.TotalVolume)
}

func TestComputeVolumeArea_NonFiniteVolumesCountAsZero(t *testing.T) {
	levels := []model.FootprintLevel{
		{Price: 4, Buy: math.NaN(), Sell: 1},
		{Price: 3, Buy: 2, Sell: math.Inf(1)},
		{Price: 2, Buy: -5, Sell: 6},
		{Price: 1, Buy: 1, Sell: 1},
	}
	a := ComputeVolumeArea(levels)

	assert.Equal(t, 11.0, a.TotalVolume)
	assert.Equal(t, 3.0, a.BuyVolume)
	assert.Equal(t, 8.0, a.SellVolume)
	assert.Equal(t, -5.0, a.Delta())
	assert.Equal(t, 2, a.POCIndex)
	assert.False(t, math.IsNaN(a.AreaVolume))
}

func TestComputeVolumeArea_CoverageIsMinimal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		n := 4 + rng.Intn(30)
		vols := make([]float64, n)
		for i := range vols {
			vols[i] = float64(rng.Intn(50))
		}
		vols[rng.Intn(n)] += 1

		a := ComputeVolumeArea(levelsFromVolumes(vols...))
		require.True(t, a.HasValueArea)

		var covered float64
		for i := a.VAHIndex; i <= a.VALIndex; i++ {
			covered += vols[i]
		}
		target := ValueAreaShare * a.TotalVolume
		assert.InDelta(t, covered, a.AreaVolume, 1e-9)
		assert.GreaterOrEqual(t, covered, target-1e-9)
		assert.LessOrEqual(t, a.VAHIndex, a.POCIndex)
		assert.GreaterOrEqual(t, a.VALIndex, a.POCIndex)

		if a.VAHIndex == a.VALIndex {
			continue
		}
		// the last added level is one of the two edges
		without := math.Min(covered-vols[a.VAHIndex], covered-vols[a.VALIndex])
		assert.Less(t, without, target, "vols=%v", vols)
	}
}

func TestSortedLevels(t *testing.T) {
	in := []model.FootprintLevel{{Price: 1}, {Price: 3}, {Price: 2}}
	out := SortedLevels(in)
	assert.Equal(t, []float64{3, 2, 1}, []float64{out[0].Price, out[1].Price, out[2].Price})
	assert.Equal(t, 1.0, in[0].Price)
}

func TestImbalances(t *testing.T) {
	levels := []model.FootprintLevel{
		{Price: 103, Buy: 9, Sell: 1},
		{Price: 102, Buy: 1, Sell: 3},
		{Price: 101, Buy: 2, Sell: 30},
		{Price: 100, Buy: 0, Sell: 0},
	}
	got := Imbalances(levels, 3)
	require.Len(t, got, 4)

	assert.True(t, got[0].BuyImbalance)   // 9 >= 3*3
	assert.False(t, got[0].SellImbalance) // nothing above
	assert.False(t, got[1].BuyImbalance)  // 1 < 3*30
	assert.False(t, got[1].SellImbalance) // 3 < 3*9
	assert.True(t, got[2].BuyImbalance)   // 2 >= 3*0
	assert.True(t, got[2].SellImbalance)  // 30 >= 3*1
	assert.False(t, got[3].BuyImbalance)
	assert.False(t, got[3].SellImbalance)
}
