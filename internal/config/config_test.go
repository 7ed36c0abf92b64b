package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint-chart/internal/chart"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "btcusdt", cfg.Feed.Symbol)
	assert.Equal(t, "wss://fstream.binance.com/ws/btcusdt@aggTrade", cfg.Feed.TradeURL)
	assert.Equal(t, "https://fapi.binance.com/fapi/v1/openInterest?symbol=BTCUSDT", cfg.Feed.OIURL)
	assert.Equal(t, 3*time.Second, cfg.Feed.PollInterval)
	assert.Equal(t, 10080, cfg.History.Size)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("APP_HTTP_ADDR", ":9000")
	t.Setenv("FEED_SYMBOL", "ETHUSDT")
	t.Setenv("FEED_POLL_INTERVAL", "500ms")
	t.Setenv("HISTORY_FILE", "bars.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, "wss://fstream.binance.com/ws/ethusdt@depth20@100ms", cfg.Feed.DepthURL)
	assert.Equal(t, "https://fapi.binance.com/fapi/v1/premiumIndex?symbol=ETHUSDT", cfg.Feed.FundingURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.PollInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"HISTORY_SIZE":       "0",
		"HISTORY_FILE":       "bars.xlsx",
		"FEED_POLL_INTERVAL": "-1s",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("unparsable", func(t *testing.T) {
		t.Setenv("HISTORY_SIZE", "many")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadChartOptions(t *testing.T) {
	opts, notes, err := LoadChartOptions("")
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, chart.DefaultOptions(), opts)

	path := filepath.Join(t.TempDir(), "chart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tick_size: 0.5
zoom_x: 50
timeframe: 15m
panes:
  funding:
    enabled: true
    ratio: 0.2
`), 0o644))

	opts, notes, err = LoadChartOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, opts.TickSize)
	assert.Equal(t, 8.0, opts.ZoomX)
	assert.Len(t, notes, 1)
	assert.Equal(t, "15m", opts.Timeframe)
	assert.True(t, opts.Panes.Funding.Enabled)
	assert.Equal(t, 0.2, opts.Panes.Funding.Ratio)
	assert.Equal(t, chart.DefaultOptions().Width, opts.Width)

	require.NoError(t, os.WriteFile(path, []byte("width: [1, 2"), 0o644))
	_, _, err = LoadChartOptions(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = LoadChartOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
