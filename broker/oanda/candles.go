package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rustyeddy/goldpair/market"
)

// Granularity represents the time frame for candles
type Granularity string

const (
	M1 Granularity = "M1"
	M5 Granularity = "M5"
)

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     string     `json:"time"`
	Mid      candleData `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// Candles fetches the most recent complete mid candles for tf, oldest
// first. OANDA has no three minute granularity, so 3M is built from M1.
func (c *Client) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	if count <= 0 {
		return nil, nil
	}
	g, fetch := M1, count
	switch tf {
	case market.TF1m:
	case market.TF5m:
		g = M5
	default:
		fetch = count * int(tf/market.TF1m)
	}
	if fetch > 5000 {
		fetch = 5000
	}

	q := url.Values{}
	q.Set("price", "M")
	q.Set("granularity", string(g))
	q.Set("count", strconv.Itoa(fetch))

	var resp candlesResponse
	path := "/v3/instruments/" + url.PathEscape(symbol) + "/candles"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, g, err)
	}

	out := make([]market.Candle, 0, len(resp.Candles))
	for _, ac := range resp.Candles {
		if !ac.Complete {
			continue
		}
		t := parseTime(ac.Time)
		if t.IsZero() {
			return nil, fmt.Errorf("parse time %q", ac.Time)
		}
		cd := market.Candle{Start: t.Unix(), Ticks: ac.Volume}
		for _, f := range []struct {
			dst *float64
			src string
		}{{&cd.Open, ac.Mid.O}, {&cd.High, ac.Mid.H}, {&cd.Low, ac.Mid.L}, {&cd.Close, ac.Mid.C}} {
			v, err := parseFloat(f.src)
			if err != nil {
				return nil, fmt.Errorf("parse candle price: %w", err)
			}
			*f.dst = v
		}
		out = append(out, cd)
	}

	if g == M1 && tf != market.TF1m {
		out = market.Resample(out, tf)
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}
