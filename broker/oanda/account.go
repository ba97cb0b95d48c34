package oanda

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rustyeddy/goldpair/broker"
)

func (c *Client) GetBalance(ctx context.Context) (broker.Account, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("/summary"), nil, nil, &resp); err != nil {
		return broker.Account{}, fmt.Errorf("account summary: %w", err)
	}
	a := resp.Account
	acct := broker.Account{ID: a.ID, Currency: a.Currency, OpenTrades: a.OpenTradeCount}
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&acct.Balance, a.Balance},
		{&acct.Equity, a.NAV},
		{&acct.MarginUsed, a.MarginUsed},
		{&acct.FreeMargin, a.MarginAvailable},
	} {
		v, err := parseFloat(f.src)
		if err != nil {
			return broker.Account{}, fmt.Errorf("account summary: %w", err)
		}
		*f.dst = v
	}
	return acct, nil
}
