package journal

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/pairs"
)

// Recorder feeds a Journal from the event stream and from the pair
// manager's leg closes. Write failures are logged and never block trading.
type Recorder struct {
	j      Journal
	symbol string
	log    zerolog.Logger
}

func NewRecorder(j Journal, symbol string, log zerolog.Logger) *Recorder {
	return &Recorder{j: j, symbol: symbol, log: log.With().Str("component", "journal").Logger()}
}

func (r *Recorder) Emit(_ context.Context, e events.Event) {
	if err := r.j.RecordEvent(e); err != nil {
		r.log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("journal event")
	}
}

func (r *Recorder) RecordLegClose(_ context.Context, c pairs.LegClose) {
	rec := TradeRecord{
		Ticket:        c.Ticket,
		PairID:        c.PairID,
		Symbol:        r.symbol,
		Side:          c.Side,
		Role:          string(c.Role),
		Lots:          c.Lots,
		EntryPrice:    c.Entry,
		ExitPrice:     c.Exit,
		CloseTime:     c.Time,
		Points:        c.Side.Favorable(c.Exit, c.Entry),
		Reason:        c.Reason,
		AlreadyClosed: c.AlreadyClosed,
	}
	if err := r.j.RecordTrade(rec); err != nil {
		r.log.Warn().Err(err).Str("ticket", c.Ticket).Msg("journal trade")
	}
}
