package oanda

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// streamStallTimeout is how long the stream may go without even a
// heartbeat before it is torn down and redialled.
const streamStallTimeout = 30 * time.Second

// Subscribe keeps the pricing stream for symbol connected until ctx ends,
// writing every price message into the quote cache. It redials with
// exponential backoff and returns ctx's error.
func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		n, err := c.streamOnce(ctx, symbol)
		if n > 0 {
			b.Reset()
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = io.EOF
		}
		return err
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		c.log.Warn().Err(err).Str("symbol", symbol).Dur("redial_in", d).Msg("pricing stream dropped")
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// streamOnce reads one stream connection to its end and reports how many
// prices it cached.
func (c *Client) streamOnce(ctx context.Context, symbol string) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u := c.streamURL + c.accountPath("/pricing/stream") + "?" + url.Values{"instruments": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	// The shared client has a whole-request timeout that would cut the
	// stream, so use one without.
	hc := &http.Client{Transport: c.httpClient.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return 0, fmt.Errorf("oanda pricing stream http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	c.log.Info().Str("symbol", symbol).Msg("pricing stream connected")

	stall := time.AfterFunc(streamStallTimeout, cancel)
	defer stall.Stop()

	sc := bufio.NewScanner(resp.Body)
	// OANDA stream messages can be long; bump max token
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	cached := 0
	for sc.Scan() {
		stall.Reset(streamStallTimeout)
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var msg clientPrice
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return cached, fmt.Errorf("oanda: bad json: %w (line=%q)", err, trimForErr(line))
		}
		// HEARTBEAT messages exist; ignore them
		if !strings.EqualFold(msg.Type, "PRICE") || msg.Instrument == "" {
			continue
		}
		t, err := msg.tick()
		if err != nil {
			continue
		}
		if t.Time.IsZero() {
			t.Time = c.now()
		}
		c.prices.Set(t)
		cached++
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return cached, err
	}
	return cached, nil
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
