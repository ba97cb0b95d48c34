// Package broker defines the narrow contract the trading core consumes from
// a brokerage. Vendor adapters live in sub-packages and absorb vendor quirks
// so that the core only ever sees "position present" or "position absent".
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/goldpair/market"
)

var (
	// ErrNoPrice means no usable quote could be obtained.
	ErrNoPrice = errors.New("no price available")
	// ErrPositionNotFound is the canonical "already gone" error.
	ErrPositionNotFound = errors.New("position not found")
)

// Broker is the capability set every adapter must provide.
type Broker interface {
	Name() string
	// GetPrice tries a cached quote, then an on-demand query, then fails
	// with ErrNoPrice.
	GetPrice(ctx context.Context, symbol string) (market.Tick, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetBalance(ctx context.Context) (Account, error)
	PlaceMarket(ctx context.Context, req MarketOrderRequest) (OrderFill, error)
	// ClosePosition closes lots of the position, or all of it when lots is 0.
	// A position the broker does not know is reported as AlreadyClosed with
	// a nil error.
	ClosePosition(ctx context.Context, id string, lots float64) (CloseResult, error)
}

// Modifier is implemented by adapters that can attach broker-side
// protection to an open position.
type Modifier interface {
	ModifyPosition(ctx context.Context, id string, p Protection) error
}

// Subscriber is implemented by adapters that can stream quotes into a
// local cache.
type Subscriber interface {
	Subscribe(ctx context.Context, symbol string) error
}

// CandleSource is implemented by adapters that can serve historical
// candles for indicator warm-up.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error)
}

type Account struct {
	ID         string
	Currency   string
	Balance    float64
	Equity     float64
	MarginUsed float64
	FreeMargin float64
	OpenTrades int
}

// Position is the normalized view of an open broker position.
type Position struct {
	ID         string
	Symbol     string
	Side       market.Side
	Volume     float64 // lots
	OpenPrice  float64
	StopLoss   float64 // 0 when unset
	TakeProfit float64 // 0 when unset
	OpenTime   time.Time
}

type MarketOrderRequest struct {
	Symbol     string
	Side       market.Side
	Lots       float64
	StopLoss   *float64
	TakeProfit *float64
}

type OrderFill struct {
	ID     string
	Symbol string
	Side   market.Side
	Lots   float64
	// Price is the fill price, 0 when the broker did not report one.
	Price float64
	Time  time.Time
}

type CloseResult struct {
	AlreadyClosed bool
}

// Protection carries broker-side stop/target levels; nil leaves a level
// unchanged. Symbol selects the price precision.
type Protection struct {
	Symbol     string
	StopLoss   *float64
	TakeProfit *float64
}
