package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/market"
)

// GetPrice serves a fresh streamed quote if one exists, otherwise asks the
// pricing endpoint. Any failure comes back as broker.ErrNoPrice.
func (c *Client) GetPrice(ctx context.Context, symbol string) (market.Tick, error) {
	if t, ok := c.prices.Fresh(symbol, c.now(), PriceMaxAge); ok {
		return t, nil
	}
	t, err := c.fetchPrice(ctx, symbol)
	if err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("pricing request failed")
		return market.Tick{}, fmt.Errorf("%w: %v", broker.ErrNoPrice, err)
	}
	return t, nil
}

// GetTick lets the client feed a paper broker.
func (c *Client) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	return c.GetPrice(ctx, symbol)
}

func (c *Client) fetchPrice(ctx context.Context, symbol string) (market.Tick, error) {
	var resp pricingResponse
	q := url.Values{"instruments": {symbol}}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/pricing"), q, nil, &resp); err != nil {
		return market.Tick{}, err
	}
	for _, p := range resp.Prices {
		if p.Instrument != symbol {
			continue
		}
		t, err := p.tick()
		if err != nil {
			return market.Tick{}, err
		}
		if t.Time.IsZero() {
			t.Time = c.now()
		}
		return t, nil
	}
	return market.Tick{}, fmt.Errorf("no quote for %s", symbol)
}
