package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"footprint-chart/internal/chart"
	"footprint-chart/internal/store"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the service configuration.
type Config struct {
	App     AppConfig     `envPrefix:"APP_"`
	Feed    FeedConfig    `envPrefix:"FEED_"`
	History HistoryConfig `envPrefix:"HISTORY_"`
}

// AppConfig is the process-level configuration.
type AppConfig struct {
	Name         string `env:"NAME" envDefault:"footprint-chart"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE"`
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	ChartOptions string `env:"CHART_OPTIONS"`
}

// FeedConfig points the ingesters at the exchange.
type FeedConfig struct {
	Symbol       string        `env:"SYMBOL" envDefault:"btcusdt"`
	TradeURL     string        `env:"TRADE_URL" envDefault:"wss://fstream.binance.com/ws/{symbol}@aggTrade"`
	DepthURL     string        `env:"DEPTH_URL" envDefault:"wss://fstream.binance.com/ws/{symbol}@depth20@100ms"`
	OIURL        string        `env:"OI_URL" envDefault:"https://fapi.binance.com/fapi/v1/openInterest?symbol={SYMBOL}"`
	FundingURL   string        `env:"FUNDING_URL" envDefault:"https://fapi.binance.com/fapi/v1/premiumIndex?symbol={SYMBOL}"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
}

// HistoryConfig controls bar persistence.
type HistoryConfig struct {
	File        string `env:"FILE" envDefault:"data/history.parquet"`
	RecorderDir string `env:"RECORDER_DIR" envDefault:"data/bars"`
	Size        int    `env:"SIZE" envDefault:"10080"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.Feed.expand()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand substitutes {symbol} (lower case) and {SYMBOL} (upper case) in the URLs.
func (f *FeedConfig) expand() {
	r := strings.NewReplacer(
		"{symbol}", strings.ToLower(f.Symbol),
		"{SYMBOL}", strings.ToUpper(f.Symbol),
	)
	f.TradeURL = r.Replace(f.TradeURL)
	f.DepthURL = r.Replace(f.DepthURL)
	f.OIURL = r.Replace(f.OIURL)
	f.FundingURL = r.Replace(f.FundingURL)
}

// Validate checks the values env cannot.
func (c *Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return errors.Wrap(ErrInvalidConfig, "APP_HTTP_ADDR is empty")
	}
	if c.Feed.Symbol == "" {
		return errors.Wrap(ErrInvalidConfig, "FEED_SYMBOL is empty")
	}
	if c.Feed.PollInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "FEED_POLL_INTERVAL must be positive")
	}
	if c.History.Size < 1 {
		return errors.Wrap(ErrInvalidConfig, "HISTORY_SIZE must be >= 1")
	}
	if c.History.File != "" {
		if _, err := store.SaverFor(c.History.File); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "HISTORY_FILE: %v", err)
		}
	}
	return nil
}

// LoadChartOptions reads chart options from a YAML file over the defaults.
// An empty path yields the defaults. Invalid values are corrected; the
// returned notes say what changed.
func LoadChartOptions(path string) (chart.Options, []string, error) {
	opts := chart.DefaultOptions()
	if path == "" {
		return opts, nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, nil, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(b, &opts); err != nil {
		return chart.DefaultOptions(), nil, errors.Wrapf(ErrInvalidConfig, "parse %s: %v", path, err)
	}
	opts, notes := opts.Sanitize()
	return opts, notes, nil
}
