package engine

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/broker/sim"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/metrics"
	"github.com/rustyeddy/goldpair/signal"
)

const gold = market.DefaultSymbol

type harness struct {
	t   *testing.T
	ctx context.Context
	now time.Time
	sim *sim.Engine
	rec *events.Recorder
	met *metrics.Metrics
	e   *Engine
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:   t,
		ctx: context.Background(),
		now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		rec: &events.Recorder{},
		met: metrics.New(prometheus.NewRegistry()),
	}
	clock := func() time.Time { return h.now }
	h.sim = sim.NewEngine(broker.Account{Balance: 10000}, sim.WithClock(clock))
	h.sim.SetPrice(gold, 2000, 2000)

	cfg := DefaultConfig()
	cfg.Pairs.LegDelay = 0
	for _, f := range mutate {
		f(&cfg)
	}
	h.e = newEngine(cfg, h.sim, h)
	return h
}

func newEngine(cfg Config, b broker.Broker, h *harness) *Engine {
	return New(cfg, b,
		WithClock(func() time.Time { return h.now }),
		WithSinks(h.rec),
		WithMetrics(h.met),
	)
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) send(sig, id string) Response {
	return h.e.HandleSignal(h.ctx, signal.Payload{Signal: sig, SignalID: id})
}

func (h *harness) zone(sig string, v bool) Response {
	return h.e.HandleSignal(h.ctx, signal.Payload{Signal: sig, Approval: &v})
}

// approve opens both zone gates for a type/side such as "T BUY".
func (h *harness) approve(typeSide string) {
	h.t.Helper()
	for _, tf := range []string{"3M", "5M"} {
		r := h.zone(tf+" ZONE "+typeSide, true)
		require.Equal(h.t, http.StatusOK, r.Status)
	}
}

// quote moves the broker price and polls it through the engine.
func (h *harness) quote(bid, ask float64) {
	h.t.Helper()
	h.advance(2 * time.Second)
	h.sim.SetPrice(gold, bid, ask)
	require.NoError(h.t, h.e.Poll(h.ctx))
}

func (h *harness) positions() []broker.Position {
	h.t.Helper()
	ps, err := h.sim.GetPositions(h.ctx)
	require.NoError(h.t, err)
	return ps
}
