package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l.With().Str("component", "events").Logger()}
}

func (s *LogSink) Emit(_ context.Context, e Event) {
	ev := s.log.Info()
	switch e.Kind {
	case SLHit:
		if e.Outcome == Loss {
			ev = s.log.Warn()
		}
	case MarketFrozen, GhostClosed:
		ev = s.log.Warn()
	}
	ev = ev.Str("kind", string(e.Kind))
	if e.PairID != "" {
		ev = ev.Str("pair_id", e.PairID)
	}
	if e.Side != "" {
		ev = ev.Str("side", string(e.Side))
	}
	if e.Ticket != "" {
		ev = ev.Str("ticket", e.Ticket)
	}
	if e.SL != 0 {
		ev = ev.Float64("sl", e.SL)
	}
	if e.Entry != 0 {
		ev = ev.Float64("entry", e.Entry)
	}
	if e.Price != 0 {
		ev = ev.Float64("price", e.Price)
	}
	if e.ATR != 0 {
		ev = ev.Float64("atr", e.ATR)
	}
	if e.Outcome != "" {
		ev = ev.Str("outcome", string(e.Outcome))
	}
	ev.Time("at", e.Time).Msg("event")
}
