package sim

import (
	"time"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/market"
)

// Trade is a simulated ticket.
type Trade struct {
	ID         string
	Symbol     string
	Side       market.Side
	Lots       float64
	EntryPrice float64
	OpenTime   time.Time

	StopLoss   *float64
	TakeProfit *float64

	ClosePrice float64
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
	Open       bool

	seq int
}

func (t *Trade) hitStopLoss(mark float64) bool {
	if t.StopLoss == nil {
		return false
	}
	if t.Side == market.Buy {
		return mark <= *t.StopLoss
	}
	return mark >= *t.StopLoss
}

func (t *Trade) hitTakeProfit(mark float64) bool {
	if t.TakeProfit == nil {
		return false
	}
	if t.Side == market.Buy {
		return mark >= *t.TakeProfit
	}
	return mark <= *t.TakeProfit
}

// pl is the profit in quote currency of lots closed at price.
func (t *Trade) pl(price, lots, unitsPerLot float64) float64 {
	return t.Side.Sign() * (price - t.EntryPrice) * lots * unitsPerLot
}

func (t *Trade) position() broker.Position {
	p := broker.Position{
		ID:        t.ID,
		Symbol:    t.Symbol,
		Side:      t.Side,
		Volume:    t.Lots,
		OpenPrice: t.EntryPrice,
		OpenTime:  t.OpenTime,
	}
	if t.StopLoss != nil {
		p.StopLoss = *t.StopLoss
	}
	if t.TakeProfit != nil {
		p.TakeProfit = *t.TakeProfit
	}
	return p
}
