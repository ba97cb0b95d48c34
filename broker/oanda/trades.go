package oanda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/goldpair/broker"
)

// GetPositions lists open trades. OANDA nets positions per instrument, so
// each trade is reported as its own position.
func (c *Client) GetPositions(ctx context.Context) ([]broker.Position, error) {
	var resp openTradesResponse
	if err := c.do(ctx, "GET", c.accountPath("/openTrades"), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	out := make([]broker.Position, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		side, lots, err := c.unitsToLots(t.CurrentUnits)
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", t.ID, err)
		}
		open, err := parseFloat(t.Price)
		if err != nil {
			return nil, fmt.Errorf("trade %s: parse price: %w", t.ID, err)
		}
		p := broker.Position{
			ID:        t.ID,
			Symbol:    t.Instrument,
			Side:      side,
			Volume:    lots,
			OpenPrice: open,
			OpenTime:  parseTime(t.OpenTime),
		}
		if t.StopLossOrder != nil {
			p.StopLoss, _ = parseFloat(t.StopLossOrder.Price)
		}
		if t.TakeProfitOrder != nil {
			p.TakeProfit, _ = parseFloat(t.TakeProfitOrder.Price)
		}
		out = append(out, p)
	}
	return out, nil
}

// PlaceMarket submits a fill-or-kill market order.
func (c *Client) PlaceMarket(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	if req.Lots <= 0 {
		return broker.OrderFill{}, errors.New("oanda: lots must be positive")
	}
	order := marketOrder{
		Type:         "MARKET",
		Instrument:   req.Symbol,
		Units:        c.lotsToUnits(req.Symbol, req.Side, req.Lots),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
	}
	if order.Units == "0" {
		return broker.OrderFill{}, fmt.Errorf("oanda: %v lots rounds to zero units", req.Lots)
	}
	if req.StopLoss != nil {
		order.StopLossOnFill = formatPrice(req.Symbol, *req.StopLoss)
	}
	if req.TakeProfit != nil {
		order.TakeProfitOnFill = formatPrice(req.Symbol, *req.TakeProfit)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, c.accountPath("/orders"), nil, orderRequest{Order: order}, &resp); err != nil {
		return broker.OrderFill{}, fmt.Errorf("market order: %w", err)
	}
	if resp.OrderCancelTransaction != nil {
		return broker.OrderFill{}, fmt.Errorf("market order cancelled: %s", resp.OrderCancelTransaction.Reason)
	}
	fill := resp.OrderFillTransaction
	if fill == nil || fill.TradeOpened == nil {
		return broker.OrderFill{}, errors.New("market order: no trade opened")
	}

	price, _ := parseFloat(fill.TradeOpened.Price)
	if price == 0 {
		price, _ = parseFloat(fill.Price)
	}
	t := parseTime(fill.Time)
	if t.IsZero() {
		t = c.now()
	}
	return broker.OrderFill{
		ID:     fill.TradeOpened.TradeID,
		Symbol: req.Symbol,
		Side:   req.Side,
		Lots:   req.Lots,
		Price:  price,
		Time:   t,
	}, nil
}

// ClosePosition closes a trade, wholly when lots is zero. A trade OANDA no
// longer knows is reported as already closed.
func (c *Client) ClosePosition(ctx context.Context, id string, lots float64) (broker.CloseResult, error) {
	body := closeRequest{Units: "ALL"}
	if lots > 0 {
		u := decimal.NewFromFloat(lots).Mul(decimal.NewFromFloat(c.unitsPerLot)).Round(0)
		body.Units = u.String()
	}
	path := c.accountPath("/trades/%s/close", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, path, nil, body, nil)
	if err == nil {
		return broker.CloseResult{}, nil
	}
	var apiErr *APIError
	if (errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound) || broker.IsNotFound(err) {
		c.log.Info().Str("trade", id).Msg("close: trade already gone")
		return broker.CloseResult{AlreadyClosed: true}, nil
	}
	return broker.CloseResult{}, fmt.Errorf("close trade %s: %w", id, err)
}

// ModifyPosition replaces the trade's dependent stop and target orders.
func (c *Client) ModifyPosition(ctx context.Context, id string, p broker.Protection) error {
	if p.StopLoss == nil && p.TakeProfit == nil {
		return nil
	}
	symbol := p.Symbol
	var body tradeOrdersRequest
	if p.StopLoss != nil {
		body.StopLoss = formatPrice(symbol, *p.StopLoss)
	}
	if p.TakeProfit != nil {
		body.TakeProfit = formatPrice(symbol, *p.TakeProfit)
	}
	path := c.accountPath("/trades/%s/orders", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return fmt.Errorf("modify trade %s: %w", id, broker.ErrPositionNotFound)
		}
		return fmt.Errorf("modify trade %s: %w", id, err)
	}
	return nil
}

var (
	_ broker.Broker       = (*Client)(nil)
	_ broker.Modifier     = (*Client)(nil)
	_ broker.Subscriber   = (*Client)(nil)
	_ broker.CandleSource = (*Client)(nil)
)
