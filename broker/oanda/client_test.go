package oanda

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/market"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		Token:      "test-token",
		AccountID:  "001-001-1",
		BaseURL:    srv.URL,
		MaxRetries: 2,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("practice mode", func(t *testing.T) {
		c, err := NewClient(Config{Token: "tok", AccountID: "a"})
		require.NoError(t, err)
		assert.Equal(t, PracticeURL, c.baseURL)
		assert.Equal(t, PracticeStreamURL, c.streamURL)
		assert.Equal(t, "tok", c.token)
		assert.NotNil(t, c.httpClient)
	})

	t.Run("live mode", func(t *testing.T) {
		c, err := NewClient(Config{Token: "tok", AccountID: "a", Env: "live"})
		require.NoError(t, err)
		assert.Equal(t, LiveURL, c.baseURL)
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewClient(Config{AccountID: "a"})
		assert.Error(t, err)
		_, err = NewClient(Config{Token: "tok"})
		assert.Error(t, err)
	})

	t.Run("unknown env", func(t *testing.T) {
		_, err := NewClient(Config{Token: "tok", AccountID: "a", Env: "moon"})
		assert.Error(t, err)
	})
}

func TestGetPriceFromPricingEndpoint(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v3/accounts/001-001-1/pricing", r.URL.Path)
		assert.Equal(t, "XAU_USD", r.URL.Query().Get("instruments"))
		fmt.Fprint(w, `{"prices":[{"type":"PRICE","instrument":"XAU_USD","time":"2026-03-02T09:59:59Z",
			"bids":[{"price":"2000.10"}],"asks":[{"price":"2000.45"}]}]}`)
	}))

	tick, err := c.GetPrice(context.Background(), "XAU_USD")
	require.NoError(t, err)
	assert.Equal(t, 2000.10, tick.Bid)
	assert.Equal(t, 2000.45, tick.Ask)
	assert.Equal(t, "XAU_USD", tick.Instrument)
}

func TestGetPricePrefersFreshCache(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	c.Prices().Set(market.Tick{Instrument: "XAU_USD", Time: testNow.Add(-2 * time.Second), Bid: 1, Ask: 2})
	tick, err := c.GetPrice(context.Background(), "XAU_USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, tick.Bid)
	assert.Zero(t, atomic.LoadInt32(&calls))

	// A stale cache falls through to REST, which fails.
	c.Prices().Set(market.Tick{Instrument: "XAU_USD", Time: testNow.Add(-time.Minute), Bid: 1, Ask: 2})
	_, err = c.GetPrice(context.Background(), "XAU_USD")
	assert.ErrorIs(t, err, broker.ErrNoPrice)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "one try plus two retries")
}

func TestGetPositions(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/001-001-1/openTrades", r.URL.Path)
		fmt.Fprint(w, `{"trades":[
			{"id":"11","instrument":"XAU_USD","price":"2000.300","openTime":"2026-03-02T09:00:00Z","currentUnits":"1",
			 "stopLossOrder":{"price":"1992.300"}},
			{"id":"12","instrument":"XAU_USD","price":"2000.000","openTime":"2026-03-02T09:00:01Z","currentUnits":"-2"}]}`)
	}))

	ps, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, broker.Position{
		ID:        "11",
		Symbol:    "XAU_USD",
		Side:      market.Buy,
		Volume:    0.01,
		OpenPrice: 2000.3,
		StopLoss:  1992.3,
		OpenTime:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}, ps[0])
	assert.Equal(t, market.Sell, ps[1].Side)
	assert.Equal(t, 0.02, ps[1].Volume)
}

func TestGetBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/001-001-1/summary", r.URL.Path)
		fmt.Fprint(w, `{"account":{"id":"001-001-1","currency":"USD","balance":"1000.50","NAV":"1001.00",
			"marginUsed":"10","marginAvailable":"991","openTradeCount":2}}`)
	}))

	acct, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.5, acct.Balance)
	assert.Equal(t, 1001.0, acct.Equity)
	assert.Equal(t, 991.0, acct.FreeMargin)
	assert.Equal(t, 2, acct.OpenTrades)
}

func TestPlaceMarket(t *testing.T) {
	var got orderRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/accounts/001-001-1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"orderFillTransaction":{"id":"20","time":"2026-03-02T10:00:00Z","price":"1999.9",
			"tradeOpened":{"tradeID":"21","units":"-1","price":"1999.950"}}}`)
	}))

	sl := 2007.95
	fill, err := c.PlaceMarket(context.Background(), broker.MarketOrderRequest{
		Symbol: "XAU_USD", Side: market.Sell, Lots: 0.01, StopLoss: &sl,
	})
	require.NoError(t, err)
	assert.Equal(t, "21", fill.ID)
	assert.Equal(t, 1999.95, fill.Price)

	assert.Equal(t, "MARKET", got.Order.Type)
	assert.Equal(t, "FOK", got.Order.TimeInForce)
	assert.Equal(t, "-1", got.Order.Units)
	require.NotNil(t, got.Order.StopLossOnFill)
	assert.Equal(t, "2007.950", got.Order.StopLossOnFill.Price)
}

func TestPlaceMarketCancelled(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"orderCancelTransaction":{"reason":"MARKET_HALTED"}}`)
	}))

	_, err := c.PlaceMarket(context.Background(), broker.MarketOrderRequest{Symbol: "XAU_USD", Side: market.Buy, Lots: 0.01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKET_HALTED")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "orders are never retried")
}

func TestClosePosition(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/v3/accounts/001-001-1/trades/31/close":
			assert.JSONEq(t, `{"units":"ALL"}`, string(b))
			fmt.Fprint(w, `{}`)
		case "/v3/accounts/001-001-1/trades/32/close":
			assert.JSONEq(t, `{"units":"1"}`, string(b))
			fmt.Fprint(w, `{}`)
		case "/v3/accounts/001-001-1/trades/33/close":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errorCode":"TRADE_DOESNT_EXIST","errorMessage":"The Trade specified does not exist"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errorMessage":"bad"}`)
		}
	}))
	ctx := context.Background()

	res, err := c.ClosePosition(ctx, "31", 0)
	require.NoError(t, err)
	assert.False(t, res.AlreadyClosed)

	_, err = c.ClosePosition(ctx, "32", 0.01)
	require.NoError(t, err)

	res, err = c.ClosePosition(ctx, "33", 0)
	require.NoError(t, err)
	assert.True(t, res.AlreadyClosed)

	_, err = c.ClosePosition(ctx, "34", 0)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestModifyPosition(t *testing.T) {
	var got tradeOrdersRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/001-001-1/trades/41/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{}`)
	}))

	sl := 1995.0
	require.NoError(t, c.ModifyPosition(context.Background(), "41", broker.Protection{Symbol: "XAU_USD", StopLoss: &sl}))
	require.NotNil(t, got.StopLoss)
	assert.Equal(t, "1995.000", got.StopLoss.Price)
	assert.Nil(t, got.TakeProfit)
}

func TestCandlesResamplesThreeMinute(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/instruments/XAU_USD/candles", r.URL.Path)
		assert.Equal(t, "M1", r.URL.Query().Get("granularity"))
		assert.Equal(t, "6", r.URL.Query().Get("count"))
		var sb strings.Builder
		sb.WriteString(`{"instrument":"XAU_USD","granularity":"M1","candles":[`)
		for i := 0; i < 6; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			ts := time.Date(2026, 3, 2, 9, i, 0, 0, time.UTC).Format(time.RFC3339)
			fmt.Fprintf(&sb, `{"complete":true,"volume":1,"time":%q,"mid":{"o":"%d","h":"%d","l":"%d","c":"%d"}}`,
				ts, 2000+i, 2001+i, 1999+i, 2000+i)
		}
		sb.WriteString(`,{"complete":false,"volume":1,"time":"2026-03-02T09:06:00Z","mid":{"o":"1","h":"1","l":"1","c":"1"}}]}`)
		fmt.Fprint(w, sb.String())
	}))

	cs, err := c.Candles(context.Background(), "XAU_USD", market.TF3m, 2)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, 2000.0, cs[0].Open)
	assert.Equal(t, 2003.0, cs[0].High)
	assert.Equal(t, 2002.0, cs[0].Close)
	assert.Equal(t, 2005.0, cs[1].Close)
}

func TestSubscribeCachesStreamedPrices(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/001-001-1/pricing/stream", r.URL.Path)
		fmt.Fprintln(w, `{"type":"HEARTBEAT","time":"2026-03-02T09:59:58Z"}`)
		fmt.Fprintln(w, `{"type":"PRICE","instrument":"XAU_USD","time":"2026-03-02T09:59:59Z","bids":[{"price":"2010.00"}],"asks":[{"price":"2010.40"}]}`)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Subscribe(ctx, "XAU_USD") }()

	require.Eventually(t, func() bool {
		_, err := c.Prices().Get("XAU_USD")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	tick, err := c.GetPrice(context.Background(), "XAU_USD")
	require.NoError(t, err)
	assert.Equal(t, 2010.0, tick.Bid)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
