package pairs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/events"
)

// entryEpsilon is the smallest entry change worth a refresh.
const entryEpsilon = 1e-9

// Reconcile brings the pairs in line with the broker's position list:
// foreign positions on the symbol are closed, legs the broker no longer
// holds are dropped, entries are trued up to the broker's open price and
// the tight-stop override is applied. Pairs inside the grace period are
// not touched. Running it twice against the same broker state changes
// nothing the second time.
func (m *Manager) Reconcile(ctx context.Context) error {
	now := m.now()
	m.Sweep(now)

	cctx, cancel := m.callCtx(ctx)
	positions, err := m.broker.GetPositions(cctx)
	cancel()
	if err != nil {
		m.brokerErr("positions", err)
		return fmt.Errorf("reconcile: %w", err)
	}
	positions = broker.FilterSymbol(positions, m.cfg.Symbol)
	held := make(map[string]broker.Position, len(positions))
	for _, pos := range positions {
		held[pos.ID] = pos
	}

	m.closeStrangers(ctx, positions)

	for _, p := range m.pairs {
		if p.phase == Closing || now.Sub(p.OpenedAt) < m.cfg.Grace {
			continue
		}
		m.dropMissingLegs(ctx, p, held)
		if p.phase != Closing {
			m.refreshEntry(p, held)
		}
	}

	m.ApplyTightSL(ctx)
	return nil
}

func (m *Manager) owner(ticket string) *Pair {
	for _, p := range m.pairs {
		if p.Owns(ticket) {
			return p
		}
	}
	return nil
}

func (m *Manager) closeStrangers(ctx context.Context, positions []broker.Position) {
	for _, pos := range positions {
		if m.owner(pos.ID) != nil {
			continue
		}
		res, err := m.closeTicket(ctx, pos.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("op", "close").Str("ticket", pos.ID).Msg("stranger close failed, will retry")
			continue
		}
		m.log.Warn().
			Str("ticket", pos.ID).
			Str("side", string(pos.Side)).
			Float64("volume", pos.Volume).
			Bool("already_closed", res.AlreadyClosed).
			Msg("closed foreign position")
		m.emit(ctx, events.Event{Kind: events.GhostClosed, Ticket: pos.ID, Side: pos.Side, Entry: pos.OpenPrice})
	}
}

// dropMissingLegs clears legs the broker no longer reports.
func (m *Manager) dropMissingLegs(ctx context.Context, p *Pair, held map[string]broker.Position) {
	for _, l := range p.Legs() {
		if !l.Live() {
			continue
		}
		if _, ok := held[l.Ticket]; ok {
			continue
		}
		ticket := l.Ticket
		// The close is a formality; absence at the broker is what counts.
		if _, err := m.closeTicket(ctx, ticket); err != nil {
			m.log.Debug().Err(err).Str("ticket", ticket).Msg("close of missing leg failed")
		}
		l.Ticket = ""
		if l.Role == PartialLeg && p.phase == Open {
			_ = p.transition(Partial)
		}
		m.log.Warn().Str("pair_id", p.ID).Str("ticket", ticket).Str("leg", string(l.Role)).Msg("leg gone at broker")
		m.emit(ctx, events.Event{Kind: events.LegReconciled, PairID: p.ID, Side: p.Side, Ticket: ticket, SL: p.InternalSL, Entry: p.Entry})
	}
	if p.LiveLegs() == 0 {
		_ = p.transition(Closing)
	}
}

// refreshEntry trues the entry up to the broker's open price while the pair
// has not reached a checkpoint. The baseline stop follows the entry; the
// managed stop follows too if it is still at the old baseline and the move
// tightens it.
func (m *Manager) refreshEntry(p *Pair, held map[string]broker.Position) {
	if p.phase != Open {
		return
	}
	var open float64
	for _, l := range p.Legs() {
		if pos, ok := held[l.Ticket]; ok && l.Live() && pos.OpenPrice > 0 {
			open = pos.OpenPrice
			break
		}
	}
	if open == 0 || math.Abs(open-p.Entry) < entryEpsilon {
		return
	}

	oldSL := p.SL
	p.Entry = open
	p.SL = p.stopAt(open, m.cfg.SLDistance)
	if !p.TightSL && p.InternalSL == oldSL {
		p.tighten(p.SL)
	}
	m.log.Info().
		Str("pair_id", p.ID).
		Float64("entry", p.Entry).
		Float64("sl", p.SL).
		Float64("internal_sl", p.InternalSL).
		Msg("entry refreshed from broker")
}

// ApplyTightSL puts every pair still in its opening phase into tight mode
// when an opposite-side pair is mature (partial taken, trailing leg live),
// pulling its stop to entry -/+ the tight distance if that is tighter.
func (m *Manager) ApplyTightSL(ctx context.Context) {
	now := m.now()
	for _, p := range m.pairs {
		if p.phase != Open || now.Sub(p.OpenedAt) < m.cfg.Grace || !m.opposingMature(p) {
			continue
		}
		changed := !p.TightSL
		p.TightSL = true
		if p.tighten(p.stopAt(p.Entry, m.cfg.TightSL)) {
			changed = true
			m.mirror(ctx, p)
		}
		if changed {
			m.emit(ctx, events.Event{Kind: events.TightSLApplied, PairID: p.ID, Side: p.Side, SL: p.InternalSL, Entry: p.Entry})
		}
	}
}

func (m *Manager) opposingMature(p *Pair) bool {
	for _, q := range m.pairs {
		if q == p || q.Side != p.Side.Opposite() || q.phase == Closing {
			continue
		}
		if q.PartialClosed() && q.Trailing.Live() {
			return true
		}
	}
	return false
}

// Sweep drops closing pairs with no live legs once they are past the grace
// period, and returns how many went.
func (m *Manager) Sweep(now time.Time) int {
	kept := m.pairs[:0]
	removed := 0
	for _, p := range m.pairs {
		if p.phase == Closing && p.LiveLegs() == 0 && now.Sub(p.OpenedAt) > m.cfg.Grace {
			m.log.Debug().Str("pair_id", p.ID).Msg("pair removed")
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(m.pairs); i++ {
		m.pairs[i] = nil
	}
	m.pairs = kept
	return removed
}
