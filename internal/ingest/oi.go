package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/bus"
	"footprint-chart/internal/model"
	"footprint-chart/internal/oi"
)

// SeriesKind names the auxiliary chart series a sample belongs to.
type SeriesKind int

const (
	SeriesOpenInterest SeriesKind = iota
	SeriesFunding
)

func (k SeriesKind) String() string {
	if k == SeriesFunding {
		return "funding"
	}
	return "open-interest"
}

// Series is one sample published by the Poller.
type Series struct {
	Kind   SeriesKind
	Sample model.Sample
	// Behavior is the OI versus price classification, open interest only.
	Behavior oi.Behavior
}

// oiResponse matches the openInterest REST payload.
// Example: {"openInterest":"10659.509","symbol":"BTCUSDT","time":1589437530011}
type oiResponse struct {
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// premiumIndexResponse carries the funding rate.
// Example: {"symbol":"BTCUSDT","lastFundingRate":"0.00010000","nextFundingTime":1597392000000,"time":1597370495002}
type premiumIndexResponse struct {
	LastFundingRate string `json:"lastFundingRate"`
	Time            int64  `json:"time"`
}

// Poller polls open interest and funding off the hot path and publishes
// the readings as chart series samples. Either URL may be empty.
type Poller struct {
	oiURL      string
	fundingURL string
	interval   time.Duration

	sampler *oi.Sampler
	priceFn func() float64
	bus     *bus.Bus[Series]
	client  *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// NewPoller creates a poller. priceFn returns the latest trade price and must
// be safe to call from the poller goroutine.
func NewPoller(oiURL, fundingURL string, interval time.Duration, sampler *oi.Sampler,
	priceFn func() float64, b *bus.Bus[Series], log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if priceFn == nil {
		priceFn = func() float64 { return 0 }
	}
	return &Poller{
		oiURL:      oiURL,
		fundingURL: fundingURL,
		interval:   interval,
		sampler:    sampler,
		priceFn:    priceFn,
		bus:        b,
		client:     &http.Client{Timeout: 2 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

func (p *Poller) Start(ctx context.Context) {
	go p.loop(ctx)
}

func (p *Poller) loop(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.oiURL != "" {
		if err := p.pollOI(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("open interest poll failed", zap.Error(err))
		}
	}
	if p.fundingURL != "" {
		if err := p.pollFunding(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("funding poll failed", zap.Error(err))
		}
	}
}

func (p *Poller) pollOI(ctx context.Context) error {
	var r oiResponse
	if err := p.getJSON(ctx, p.oiURL, &r); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(r.OpenInterest, 64)
	if err != nil {
		return errors.Wrap(err, "parse openInterest")
	}
	st, ok := p.sampler.Update(v, p.priceFn(), p.stamp(r.Time))
	if !ok {
		return errors.Errorf("rejected open interest %v", v)
	}
	p.log.Debug("open interest",
		zap.Float64("oi", st.OI), zap.Float64("delta", st.Delta), zap.Stringer("behavior", st.Behavior))
	p.bus.Publish(Series{Kind: SeriesOpenInterest, Sample: st.OISample(), Behavior: st.Behavior})
	return nil
}

func (p *Poller) pollFunding(ctx context.Context) error {
	var r premiumIndexResponse
	if err := p.getJSON(ctx, p.fundingURL, &r); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(r.LastFundingRate, 64)
	if err != nil {
		return errors.Wrap(err, "parse lastFundingRate")
	}
	st, ok := p.sampler.UpdateFunding(v, p.stamp(r.Time))
	if !ok {
		return errors.Errorf("rejected funding rate %v", v)
	}
	p.bus.Publish(Series{Kind: SeriesFunding, Sample: st.FundingSample()})
	return nil
}

// stamp falls back to the local clock when the response carries no time.
func (p *Poller) stamp(t int64) int64 {
	if t > 0 {
		return t
	}
	return p.now().UnixMilli()
}

func (p *Poller) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}
