package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/admission"
	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/pairs"
)

func TestInvalidSignal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, sig := range []string{"", "HELLO", "T BUY", "X BUY ENTRY", "1M ZONE T BUY"} {
		r := h.send(sig, "")
		assert.Equal(t, http.StatusBadRequest, r.Status, sig)
		assert.Equal(t, admission.Invalid, r.Body.Reason, sig)
		assert.False(t, r.Body.OK)
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(h.met.WebhookStatus.WithLabelValues("400")))
}

func TestZoneUpdates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.send("3M ZONE T BUY", "")
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = h.zone("3m zone t buy", true)
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "ZONE", r.Body.Action)

	st := h.e.Status()
	assert.True(t, st.Approvals["T_BUY"]["3M"])
	assert.False(t, st.Approvals["T_BUY"]["5M"])
}

func TestEntryNeedsBothZones(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := h.send("T BUY ENTRY", "")
	assert.Equal(t, http.StatusForbidden, r.Status)
	assert.Equal(t, admission.NoApproval, r.Body.Reason)

	h.zone("3M ZONE T BUY", true)
	r = h.send("T BUY ENTRY", "")
	assert.Equal(t, http.StatusForbidden, r.Status)

	h.zone("5M ZONE T BUY", true)
	r = h.send("T BUY ENTRY", "")
	require.Equal(t, http.StatusOK, r.Status)
	assert.NotEmpty(t, r.Body.PairID)
	assert.Len(t, h.positions(), 2)
	assert.Equal(t, []events.Kind{events.Entry}, h.rec.Kinds())
}

func TestDuplicateSignalID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")

	r := h.send("T BUY ENTRY", "sig-1")
	require.Equal(t, http.StatusOK, r.Status)

	h.advance(20 * time.Minute)
	r = h.send("T BUY ENTRY", "sig-1")
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, admission.Duplicate, r.Body.Reason)

	assert.Len(t, h.e.Pairs().Pairs(), 1)
	assert.Len(t, h.positions(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.Admissions.WithLabelValues("DUPLICATE")))
}

func TestRapidFireLock(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")
	h.approve("T SELL")

	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)

	r := h.send("T SELL ENTRY", "")
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, admission.Busy, r.Body.Reason)

	h.advance(3 * time.Second)
	assert.Equal(t, http.StatusOK, h.send("T SELL ENTRY", "").Status)
}

func TestSideCooldown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")
	h.approve("R BUY")

	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)

	h.advance(10 * time.Minute)
	r := h.send("R BUY ENTRY", "")
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, admission.Cooldown, r.Body.Reason)
	assert.Equal(t, 5, r.Body.RemainingMinutes)

	h.advance(5 * time.Minute)
	assert.Equal(t, http.StatusOK, h.send("R BUY ENTRY", "").Status)
}

func TestCategoryQuota(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")

	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)

	h.advance(16 * time.Minute)
	r := h.send("T BUY ENTRY", "")
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, admission.Quota, r.Body.Reason)
}

func TestPlacementFailureReleasesSignalID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")
	h.sim.FailPlacement(2, errors.New("market closed"))

	r := h.send("T BUY ENTRY", "sig-9")
	assert.Equal(t, http.StatusInternalServerError, r.Status)
	assert.Contains(t, r.Body.Error, "market closed")
	assert.Empty(t, h.e.Pairs().Pairs())
	assert.Empty(t, h.positions(), "the placed leg is rolled back")

	// a retry with the same ID goes through once the rapid-fire lock is over
	h.advance(3 * time.Second)
	r = h.send("T BUY ENTRY", "sig-9")
	assert.Equal(t, http.StatusOK, r.Status)
	assert.NotEmpty(t, r.Body.PairID)
	assert.Len(t, h.e.Pairs().Pairs(), 1)
}

func TestCloseSignal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")
	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)
	h.quote(2001, 2001)

	r := h.send("BUY CLOSE", "c-1")
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, 1, r.Body.Closed)
	assert.Empty(t, h.positions())

	ev, ok := h.rec.Last(events.CloseSignal)
	require.True(t, ok)
	assert.Equal(t, 2001.0, ev.Price)

	r = h.send("BUY CLOSE", "c-1")
	assert.Equal(t, http.StatusTooManyRequests, r.Status)
	assert.Equal(t, admission.Duplicate, r.Body.Reason)

	r = h.send("SELL CLOSE", "")
	assert.Equal(t, http.StatusOK, r.Status)
	assert.Zero(t, r.Body.Closed)
}

func TestPollStopLoss(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.approve("T BUY")
	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)

	h.advance(6 * time.Second)
	h.quote(1996, 1996)
	h.quote(1991, 1991)

	ev, ok := h.rec.Last(events.SLHit)
	require.True(t, ok)
	assert.Equal(t, events.Loss, ev.Outcome)
	assert.Empty(t, h.positions())

	h.advance(10 * time.Second)
	h.quote(1990, 1990)
	assert.Empty(t, h.e.Pairs().Pairs(), "swept after grace")
}

func TestFreezeSuspendsStateMachine(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.FreezeTicks = 5 })
	h.approve("T BUY")
	require.Equal(t, http.StatusOK, h.send("T BUY ENTRY", "").Status)
	h.advance(6 * time.Second)

	for i := 0; i < 6; i++ {
		h.quote(2000, 2000)
	}
	assert.False(t, h.e.Status().Frozen)
	h.quote(2000, 2000)
	assert.True(t, h.e.Status().Frozen)
	_, ok := h.rec.Last(events.MarketFrozen)
	require.True(t, ok)

	// the mid stays put while the bid crosses the stop
	h.quote(1990, 2010)
	assert.True(t, h.e.Status().Frozen)
	_, hit := h.rec.Last(events.SLHit)
	assert.False(t, hit)
	assert.Len(t, h.positions(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.Frozen))

	h.quote(2001, 2001)
	assert.False(t, h.e.Status().Frozen)
	_, ok = h.rec.Last(events.MarketResumed)
	assert.True(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.met.Frozen))
	assert.Equal(t, pairs.Open, h.e.Pairs().Pairs()[0].Phase())
}

type noPrice struct {
	broker.Broker
}

func (noPrice) GetPrice(context.Context, string) (market.Tick, error) {
	return market.Tick{}, broker.ErrNoPrice
}

func TestPollPriceError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.e = newEngine(DefaultConfig(), noPrice{h.sim}, h)

	err := h.e.Poll(h.ctx)
	assert.ErrorIs(t, err, broker.ErrNoPrice)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.BrokerErrors.WithLabelValues("price")))
}

func TestReconcileClosesGhost(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sim.InjectPosition(broker.Position{Symbol: gold, Side: market.Sell, Volume: 0.05, OpenPrice: 1999})

	require.NoError(t, h.e.Reconcile(h.ctx))
	assert.Empty(t, h.positions())
	_, ok := h.rec.Last(events.GhostClosed)
	assert.True(t, ok)
}

type history struct {
	broker.Broker
	candles []market.Candle
	err     error
}

func (s history) Candles(_ context.Context, _ string, _ market.Timeframe, count int) ([]market.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if count < len(s.candles) {
		return s.candles[len(s.candles)-count:], nil
	}
	return s.candles, nil
}

func flatCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{Start: int64(i) * 300, Open: 2000, High: 2001, Low: 1999, Close: 2000}
	}
	return out
}

func TestWarmupSeedsATR(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.WarmupCandles = 20
	h.e = newEngine(cfg, history{Broker: h.sim, candles: flatCandles(30)}, h)

	h.e.Warmup(h.ctx)
	st := h.e.Status()
	assert.Equal(t, 20, st.Candles5m)
	assert.InDelta(t, 2.0, st.ATR, 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(h.met.ATR), 1e-9)
}

func TestWarmupFailureIsTolerated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.WarmupCandles = 20
	h.e = newEngine(cfg, history{Broker: h.sim, err: errors.New("502")}, h)

	h.e.Warmup(h.ctx)
	assert.Zero(t, h.e.Status().Candles5m)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.met.BrokerErrors.WithLabelValues("candles")))
}

func TestWarmupDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.e = newEngine(DefaultConfig(), history{Broker: h.sim, candles: flatCandles(30)}, h)

	h.e.Warmup(h.ctx)
	assert.Zero(t, h.e.Status().Candles5m)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) {
		c.PollInterval = 5 * time.Millisecond
		c.ReconcileInterval = 5 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.e.Run(ctx))

	st := h.e.Status()
	assert.Equal(t, 2000.0, st.Bid)
	assert.Equal(t, gold, st.Symbol)
}
