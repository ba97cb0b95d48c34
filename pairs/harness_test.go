package pairs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/broker/sim"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/signal"
)

const gold = market.DefaultSymbol

type harness struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	atr   float64
	sim   *sim.Engine
	rec   *events.Recorder
	m     *Manager
	price float64
	legs  []LegClose
}

func (h *harness) RecordLegClose(_ context.Context, c LegClose) { h.legs = append(h.legs, c) }

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:   t,
		ctx: context.Background(),
		now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		atr: 2,
		rec: &events.Recorder{},
	}
	clock := func() time.Time { return h.now }
	h.sim = sim.NewEngine(broker.Account{Balance: 10000}, sim.WithClock(clock))
	h.setPrice(2000)

	cfg := DefaultConfig()
	cfg.LegDelay = 0
	for _, f := range mutate {
		f(&cfg)
	}
	h.m = NewManager(cfg, h.sim,
		WithClock(clock),
		WithSink(h.rec),
		WithATR(func() float64 { return h.atr }),
		WithRecorder(h),
	)
	return h
}

func (h *harness) tick() market.Tick {
	return market.Tick{Instrument: gold, Time: h.now, Bid: h.price, Ask: h.price}
}

// setPrice moves the broker quote without running the state machine.
func (h *harness) setPrice(p float64) {
	h.price = p
	h.sim.SetPrice(gold, p, p)
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// at moves the quote, steps the clock by one poll and runs a tick.
func (h *harness) at(p float64) {
	h.advance(2 * time.Second)
	h.setPrice(p)
	h.m.OnTick(h.ctx, h.tick())
}

func (h *harness) open(typ signal.Type, side market.Side) *Pair {
	h.t.Helper()
	p, err := h.m.OpenPair(h.ctx, signal.EntryCmd{Type: typ, Side: side}, h.tick())
	require.NoError(h.t, err)
	return p
}

// pastGrace moves the clock beyond the grace period.
func (h *harness) pastGrace() {
	h.advance(h.m.Config().Grace + time.Second)
}

func (h *harness) kindsFor(pairID string) []events.Kind {
	var out []events.Kind
	for _, e := range h.rec.Events {
		if e.PairID == pairID {
			out = append(out, e.Kind)
		}
	}
	return out
}
