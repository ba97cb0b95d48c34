package oanda

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/goldpair/market"
)

type priceBucket struct {
	Price string `json:"price"`
}

type clientPrice struct {
	Type       string        `json:"type"`
	Instrument string        `json:"instrument"`
	Time       string        `json:"time"`
	Tradeable  bool          `json:"tradeable"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type pricingResponse struct {
	Prices []clientPrice `json:"prices"`
}

type priceDetails struct {
	Price string `json:"price"`
}

type trade struct {
	ID              string        `json:"id"`
	Instrument      string        `json:"instrument"`
	Price           string        `json:"price"`
	OpenTime        string        `json:"openTime"`
	CurrentUnits    string        `json:"currentUnits"`
	StopLossOrder   *priceDetails `json:"stopLossOrder,omitempty"`
	TakeProfitOrder *priceDetails `json:"takeProfitOrder,omitempty"`
}

type openTradesResponse struct {
	Trades []trade `json:"trades"`
}

type accountSummary struct {
	ID              string `json:"id"`
	Currency        string `json:"currency"`
	Balance         string `json:"balance"`
	NAV             string `json:"NAV"`
	MarginUsed      string `json:"marginUsed"`
	MarginAvailable string `json:"marginAvailable"`
	OpenTradeCount  int    `json:"openTradeCount"`
}

type accountResponse struct {
	Account accountSummary `json:"account"`
}

type marketOrder struct {
	Type             string        `json:"type"`
	Instrument       string        `json:"instrument"`
	Units            string        `json:"units"`
	TimeInForce      string        `json:"timeInForce"`
	PositionFill     string        `json:"positionFill"`
	StopLossOnFill   *priceDetails `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *priceDetails `json:"takeProfitOnFill,omitempty"`
}

type orderRequest struct {
	Order marketOrder `json:"order"`
}

type tradeOpened struct {
	TradeID string `json:"tradeID"`
	Units   string `json:"units"`
	Price   string `json:"price"`
}

type orderFillTransaction struct {
	ID          string       `json:"id"`
	Time        string       `json:"time"`
	Price       string       `json:"price"`
	TradeOpened *tradeOpened `json:"tradeOpened,omitempty"`
}

type orderCancelTransaction struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	OrderFillTransaction   *orderFillTransaction   `json:"orderFillTransaction,omitempty"`
	OrderCancelTransaction *orderCancelTransaction `json:"orderCancelTransaction,omitempty"`
}

type closeRequest struct {
	Units string `json:"units"`
}

type tradeOrdersRequest struct {
	StopLoss   *priceDetails `json:"stopLoss,omitempty"`
	TakeProfit *priceDetails `json:"takeProfit,omitempty"`
}

// parseFloat parses an OANDA decimal string; empty means zero.
func parseFloat(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (p clientPrice) tick() (market.Tick, error) {
	if len(p.Bids) == 0 || len(p.Asks) == 0 {
		return market.Tick{}, fmt.Errorf("oanda: empty book for %s", p.Instrument)
	}
	bid, err := parseFloat(p.Bids[0].Price)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := parseFloat(p.Asks[0].Price)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse ask: %w", err)
	}
	return market.Tick{Instrument: p.Instrument, Time: parseTime(p.Time), Bid: bid, Ask: ask}, nil
}

// formatPrice renders a price at the instrument's display precision.
func formatPrice(instrument string, p float64) *priceDetails {
	return &priceDetails{Price: decimal.NewFromFloat(p).StringFixed(int32(market.Precision(instrument)))}
}

// lotsToUnits converts lots to signed whole OANDA units.
func (c *Client) lotsToUnits(instrument string, side market.Side, lots float64) string {
	prec := int32(0)
	if m, ok := market.Instruments[instrument]; ok {
		prec = int32(m.UnitsDecimals)
	}
	u := decimal.NewFromFloat(lots).Mul(decimal.NewFromFloat(c.unitsPerLot)).Round(prec)
	if side == market.Sell {
		u = u.Neg()
	}
	return u.String()
}

// unitsToLots returns the side and absolute lot size of a signed unit string.
func (c *Client) unitsToLots(units string) (market.Side, float64, error) {
	u, err := decimal.NewFromString(strings.TrimSpace(units))
	if err != nil {
		return "", 0, fmt.Errorf("parse units %q: %w", units, err)
	}
	side := market.Buy
	if u.IsNegative() {
		side = market.Sell
	}
	lots, _ := u.Abs().Div(decimal.NewFromFloat(c.unitsPerLot)).Round(4).Float64()
	return side, lots, nil
}
