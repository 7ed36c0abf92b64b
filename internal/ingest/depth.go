package ingest

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/orderbook"
)

// depthEvent matches the partial book depth stream payload: a full top-N
// snapshot per message, no diff management.
// Example: {"E":1672515782136,"T":1672515782100,"bids":[["16850.00","1.5"]],"asks":[["16851.00","0.8"]]}
type depthEvent struct {
	E    int64      `json:"E"`
	T    int64      `json:"T"`
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// parseLevels appends the [price, qty] string pairs to dst. Unparsable pairs are skipped.
func parseLevels(dst []orderbook.PriceLevel, pairs [][]string) []orderbook.PriceLevel {
	for _, lvl := range pairs {
		if len(lvl) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(lvl[0], 64)
		qty, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil || qty <= 0 {
			continue
		}
		dst = append(dst, orderbook.PriceLevel{Price: price, Quantity: qty})
	}
	return dst
}

// DepthIngester consumes the depth stream into the book.
type DepthIngester struct {
	url  string
	book *orderbook.Book
	log  *zap.Logger

	// reused across messages
	bids []orderbook.PriceLevel
	asks []orderbook.PriceLevel
}

func NewDepthIngester(url string, book *orderbook.Book, log *zap.Logger) *DepthIngester {
	if log == nil {
		log = zap.NewNop()
	}
	return &DepthIngester{
		url:  url,
		book: book,
		log:  log,
		bids: make([]orderbook.PriceLevel, 0, orderbook.MaxDepthLevels),
		asks: make([]orderbook.PriceLevel, 0, orderbook.MaxDepthLevels),
	}
}

func (d *DepthIngester) Start(ctx context.Context) {
	go reconnectLoop(ctx, d.log, "depth", d.connectAndConsume)
}

func (d *DepthIngester) connectAndConsume(ctx context.Context) error {
	return consume(ctx, d.url, d.log, func(data []byte) {
		if err := d.handle(data); err != nil {
			d.log.Debug("skipping depth message", zap.Error(err))
		}
	})
}

func (d *DepthIngester) handle(data []byte) error {
	var ev depthEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return errors.Wrap(err, "decode depth")
	}
	d.bids = parseLevels(d.bids[:0], ev.Bids)
	d.asks = parseLevels(d.asks[:0], ev.Asks)

	t := ev.T
	if t == 0 {
		t = ev.E
	}
	d.book.UpdateDepth(d.bids, d.asks, t)
	return nil
}
