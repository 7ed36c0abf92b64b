package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/bus"
	"footprint-chart/internal/model"
)

const (
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// aggTradeEvent matches the aggTrade stream payload.
// Example: {"e":"aggTrade","E":1672515782136,"s":"BTCUSDT","a":123456789,"p":"16850.00","q":"0.005","f":100,"l":105,"T":1672515782136,"m":true}
type aggTradeEvent struct {
	EventType string `json:"e"`
	E         int64  `json:"E"` // event time
	Symbol    string `json:"s"`
	A         int64  `json:"a"` // aggregate trade id
	P         string `json:"p"`
	Q         string `json:"q"`
	T         int64  `json:"T"` // trade time
	M         bool   `json:"m"` // buyer is the maker
}

// parseAggTrade decodes one aggTrade message.
func parseAggTrade(data []byte) (model.Trade, error) {
	var ev aggTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Trade{}, errors.Wrap(err, "decode aggTrade")
	}
	price, err := strconv.ParseFloat(ev.P, 64)
	if err != nil {
		return model.Trade{}, errors.Wrapf(err, "aggTrade %d price", ev.A)
	}
	qty, err := strconv.ParseFloat(ev.Q, 64)
	if err != nil {
		return model.Trade{}, errors.Wrapf(err, "aggTrade %d quantity", ev.A)
	}
	return model.Trade{
		ID:         ev.A,
		Price:      price,
		Quantity:   qty,
		Time:       ev.T,
		BuyerMaker: ev.M,
	}, nil
}

// Ingester consumes the aggTrade stream and publishes trades on the bus.
type Ingester struct {
	url string
	bus *bus.Bus[model.Trade]
	log *zap.Logger
}

func NewIngester(url string, b *bus.Bus[model.Trade], log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{url: url, bus: b, log: log}
}

// Start runs the consumer until ctx is done, reconnecting with backoff.
func (i *Ingester) Start(ctx context.Context) {
	go reconnectLoop(ctx, i.log, "aggTrade", i.connectAndConsume)
}

func (i *Ingester) connectAndConsume(ctx context.Context) error {
	return consume(ctx, i.url, i.log, func(data []byte) {
		t, err := parseAggTrade(data)
		if err != nil {
			i.log.Debug("skipping aggTrade", zap.Error(err))
			return
		}
		i.bus.Publish(t)
	})
}

// reconnectLoop calls fn until ctx is done. Failures back off exponentially,
// a clean return resets the delay.
func reconnectLoop(ctx context.Context, log *zap.Logger, name string, fn func(context.Context) error) {
	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}
		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			delay = reconnectDelay
			continue
		}

		log.Warn("stream error, reconnecting",
			zap.String("stream", name), zap.Error(err), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// consume dials url and hands every text message to handle until the
// connection fails or ctx is done.
func consume(ctx context.Context, url string, log *zap.Logger, handle func([]byte)) error {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", url)
	}
	defer c.Close()

	// unblock ReadMessage on cancel
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	log.Info("stream connected", zap.String("url", url))
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		handle(data)
	}
}
