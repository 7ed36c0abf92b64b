package model

// Trade is one aggregated trade from the exchange feed.
type Trade struct {
	ID       int64
	Price    float64
	Quantity float64
	Time     int64 // unix ms
	// BuyerMaker is the aggTrade 'm' flag: the buyer rested on the book,
	// so the aggressor was a seller.
	BuyerMaker bool
}

// Level converts the trade into a single-trade footprint level at price.
func (t Trade) Level(price float64) FootprintLevel {
	if t.BuyerMaker {
		return FootprintLevel{Price: price, Sell: t.Quantity}
	}
	return FootprintLevel{Price: price, Buy: t.Quantity}
}

// SignedQuantity is +qty for aggressive buys and -qty for aggressive sells.
func (t Trade) SignedQuantity() float64 {
	if t.BuyerMaker {
		return -t.Quantity
	}
	return t.Quantity
}
