package pairs

import (
	"context"
	"math"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
)

// OnTick drives every pair through one step of the state machine. Pairs
// younger than the grace period are left alone. Callers skip OnTick while
// the feed is frozen.
func (m *Manager) OnTick(ctx context.Context, tick market.Tick) {
	if !tick.Valid() {
		return
	}
	m.reconciled = false
	now := m.now()
	m.Sweep(now)

	for _, p := range m.Pairs() {
		current := tick.Price(p.Side)
		if p.phase == Closing {
			// Retry whatever failed to close earlier.
			m.closeLegs(ctx, p, current, "RETRY")
			continue
		}
		if now.Sub(p.OpenedAt) < m.cfg.Grace {
			continue
		}
		m.step(ctx, p, current)
	}
}

// TrailTrigger is how far price must run past the stop before the stop
// follows it.
func (m *Manager) TrailTrigger(atr float64) float64 {
	return math.Max(math.Max(atr*m.cfg.ATRMultiplier, m.cfg.TrailStep*1.5), 1)
}

func (m *Manager) step(ctx context.Context, p *Pair, current float64) {
	// Checkpoints run until the pair has both taken its partial and
	// reached break-even in tight mode, or until CP2 in normal mode. The
	// trail only starts on a later tick.
	if p.phase == Open || (p.phase == Partial && p.TightSL) {
		if p.Side.Favorable(current, p.Entry) >= m.cfg.HalfDistance && !m.reconciled {
			m.reconciled = true
			if err := m.Reconcile(ctx); err != nil {
				m.log.Warn().Err(err).Msg("pre-checkpoint reconcile failed")
			}
			if p.phase == Closing {
				return
			}
		}
		if p.TightSL {
			m.tightCheckpoints(ctx, p, current)
		} else {
			m.checkpoints(ctx, p, current)
		}
	} else {
		m.trail(ctx, p, current)
	}
	m.hardStop(ctx, p, current)
}

func (m *Manager) checkpoints(ctx context.Context, p *Pair, current float64) {
	move := p.Side.Favorable(current, p.Entry)

	if move >= m.cfg.HalfDistance {
		if p.tighten(p.stopAt(p.Entry, m.cfg.HalfDistance)) {
			m.emit(ctx, events.Event{Kind: events.Checkpoint1, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry, Price: current})
			m.mirror(ctx, p)
		}
	}

	if move >= m.cfg.SLDistance {
		if p.Partial.Live() && !m.closeLeg(ctx, p, &p.Partial, current, "CHECKPOINT2") {
			return
		}
		if err := p.transition(BreakEven); err != nil {
			m.log.Error().Err(err).Msg("checkpoint 2")
			return
		}
		p.tighten(p.Entry)
		m.emit(ctx, events.Event{Kind: events.PartialBreakEven, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry, Price: current})
		m.mirror(ctx, p)
	}
}

// tightCheckpoints: the first checkpoint only banks the partial leg and the
// second only promotes to break-even.
func (m *Manager) tightCheckpoints(ctx context.Context, p *Pair, current float64) {
	move := p.Side.Favorable(current, p.Entry)

	if p.phase == Open && move >= m.cfg.HalfDistance {
		if p.Partial.Live() && !m.closeLeg(ctx, p, &p.Partial, current, "CHECKPOINT1") {
			return
		}
		if err := p.transition(Partial); err != nil {
			m.log.Error().Err(err).Msg("tight checkpoint 1")
			return
		}
		m.emit(ctx, events.Event{Kind: events.PartialClosed, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry, Price: current})
	}

	if p.phase == Partial && move >= m.cfg.SLDistance {
		if err := p.transition(BreakEven); err != nil {
			m.log.Error().Err(err).Msg("tight checkpoint 2")
			return
		}
		p.tighten(p.Entry)
		m.emit(ctx, events.Event{Kind: events.BreakEven, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry, Price: current})
		m.mirror(ctx, p)
	}
}

func (m *Manager) trail(ctx context.Context, p *Pair, current float64) {
	atr := m.atr()
	if p.Side.Favorable(current, p.InternalSL) <= m.TrailTrigger(atr) {
		return
	}
	candidate := p.stopAt(current, m.cfg.TrailStep)
	if p.BreakEvenActive() && p.Side.Better(p.Entry, candidate) {
		candidate = p.Entry
	}
	if !p.tighten(candidate) {
		return
	}
	if p.phase == BreakEven {
		_ = p.transition(Trailing)
	}
	m.emit(ctx, events.Event{Kind: events.TrailAdvanced, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry, Price: current, ATR: atr})
	m.mirror(ctx, p)
}

// hardStop closes the pair once price reaches the effective stop.
func (m *Manager) hardStop(ctx context.Context, p *Pair, current float64) {
	if p.phase == Closing {
		return
	}
	sl := p.InternalSL
	if sl == 0 {
		sl = p.SL
	}
	if p.Side.Favorable(current, sl) > 0 {
		return
	}

	p.Outcome = events.Loss
	if p.Side.Better(sl, p.Entry) {
		p.Outcome = events.Profit
	}
	m.closeLegs(ctx, p, current, "SL_HIT")
	_ = p.transition(Closing)

	m.log.Info().
		Str("pair_id", p.ID).
		Float64("sl", sl).
		Float64("price", current).
		Str("outcome", string(p.Outcome)).
		Int("legs_left", p.LiveLegs()).
		Msg("stop hit")
	m.emit(ctx, events.Event{Kind: events.SLHit, PairID: p.ID, Side: p.Side, SL: sl, Entry: p.Entry, Price: current, Outcome: p.Outcome})
}
