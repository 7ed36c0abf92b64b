package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLevels_SumsIdenticalPrices(t *testing.T) {
	a := []FootprintLevel{{Price: 100, Buy: 1, Sell: 2}, {Price: 101, Buy: 3}}
	b := []FootprintLevel{{Price: 100, Buy: 4, Sell: 5}, {Price: 99, Sell: 7}}

	got := MergeLevels(a, b)

	require.Len(t, got, 3)
	assert.Equal(t, FootprintLevel{Price: 101, Buy: 3}, got[0])
	assert.Equal(t, FootprintLevel{Price: 100, Buy: 5, Sell: 7}, got[1])
	assert.Equal(t, FootprintLevel{Price: 99, Sell: 7}, got[2])

	// Inputs untouched.
	assert.Equal(t, 1.0, a[0].Buy)
}

func TestBar_CloneDoesNotAlias(t *testing.T) {
	b := Bar{Time: 1, Footprint: []FootprintLevel{{Price: 10, Buy: 1}}}
	c := b.Clone()
	c.Footprint[0].Buy = 99
	assert.Equal(t, 1.0, b.Footprint[0].Buy)
}

func TestBar_Normalize(t *testing.T) {
	b := Bar{
		Open: 10, High: 9, Low: 11, Close: 12,
		Footprint: []FootprintLevel{
			{Price: 10.02, Buy: 1},
			{Price: 9.98, Sell: 2},
			{Price: 11.01, Buy: 3},
		},
	}
	got := b.Normalize(0.1)

	assert.Equal(t, 12.0, got.High)
	assert.Equal(t, 10.0, got.Low)
	require.Len(t, got.Footprint, 2)
	assert.Equal(t, 11.0, got.Footprint[0].Price)
	assert.Equal(t, FootprintLevel{Price: 10, Buy: 1, Sell: 2}, got.Footprint[1])
}

func TestBar_Totals(t *testing.T) {
	b := Bar{High: 5, Footprint: []FootprintLevel{{Price: 6, Buy: 2, Sell: 1}, {Price: 4, Buy: 1, Sell: 4}}}
	assert.Equal(t, 3.0, b.BuyVolume())
	assert.Equal(t, 5.0, b.SellVolume())
	assert.Equal(t, 8.0, b.Volume())
	assert.Equal(t, -2.0, b.Delta())
	assert.Equal(t, 6.0, b.MaxPrice())
}

func TestBar_UnmarshalJSONTimeForms(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		in   string
	}{
		{"iso", `{"time":"2024-03-01T12:30:00Z","open":1}`},
		{"iso offset", `{"time":"2024-03-01T14:30:00+02:00","open":1}`},
		{"epoch seconds", `{"time":1709296200,"open":1}`},
		{"epoch millis", `{"time":1709296200000,"open":1}`},
		{"numeric string", `{"time":"1709296200","open":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bar
			require.NoError(t, json.Unmarshal([]byte(tt.in), &b))
			assert.Equal(t, want, b.Time)
			assert.Equal(t, 1.0, b.Open)
		})
	}

	var b Bar
	err := json.Unmarshal([]byte(`{"time":"yesterday"}`), &b)
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestFloorDivAndMinuteStart(t *testing.T) {
	assert.Equal(t, int64(-1), FloorDiv(-1, 60))
	assert.Equal(t, int64(2), FloorDiv(125, 60))
	assert.Equal(t, int64(120_000), MinuteStart(179_999))
	assert.Equal(t, int64(-60_000), MinuteStart(-1))
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, 100.1, Quantize(100.14, 0.1))
	assert.Equal(t, 100.5, Quantize(100.4, 0.5))
	assert.Equal(t, 0.3, Quantize(0.1+0.2, 0.1))
	assert.Equal(t, 5.0, Quantize(5, 0))
}

func TestTickAbove(t *testing.T) {
	assert.Equal(t, 100.5, TickAbove(100.0, 0.5))
	assert.Equal(t, 100.5, TickAbove(100.2, 0.5))
	assert.Equal(t, 0.4, TickAbove(0.3, 0.1))
	assert.Equal(t, 101.0, AddTicks(100, 0.1, 10))
}

func TestDetectTickSize(t *testing.T) {
	bars := []Bar{
		{Footprint: []FootprintLevel{{Price: 100.5}, {Price: 100}, {Price: 99}}},
		{Footprint: []FootprintLevel{{Price: 101.25}, {Price: 101.5}}},
		{Footprint: []FootprintLevel{{Price: 7}}},
	}
	assert.Equal(t, 0.25, DetectTickSize(bars))
	assert.Equal(t, 0.0, DetectTickSize(nil))
}

func TestTrade_Level(t *testing.T) {
	buy := Trade{Quantity: 2}
	sell := Trade{Quantity: 3, BuyerMaker: true}
	assert.Equal(t, FootprintLevel{Price: 10, Buy: 2}, buy.Level(10))
	assert.Equal(t, FootprintLevel{Price: 10, Sell: 3}, sell.Level(10))
	assert.Equal(t, -3.0, sell.SignedQuantity())
}

func TestMsgPackAppenders(t *testing.T) {
	assert.Equal(t, []byte{0x93}, AppendArrayHeader(nil, 3))
	assert.Equal(t, []byte{0xdc, 0x00, 0x10}, AppendArrayHeader(nil, 16))
	assert.Equal(t, []byte{0x05}, AppendInt64(nil, 5))
	assert.Equal(t, []byte{0xff}, AppendInt64(nil, -1))
	assert.Len(t, AppendInt64(nil, 1_000), 9)
	assert.Equal(t, []byte{0xa2, 'h', 'i'}, AppendString(nil, "hi"))
	assert.Equal(t, []byte{0xc3, 0xc2, 0xc0}, AppendNil(AppendBool(AppendBool(nil, true), false)))
	assert.Len(t, AppendFloat64(nil, 1.5), 9)
}
