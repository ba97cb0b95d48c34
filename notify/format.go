package notify

import (
	"fmt"

	"github.com/rustyeddy/goldpair/events"
)

// Format renders an event as a one-line human message.
func Format(e events.Event) string {
	switch e.Kind {
	case events.Entry:
		return fmt.Sprintf("%s %s opened @ %.2f, SL %.2f", e.Side, e.PairID, e.Entry, e.SL)
	case events.Checkpoint1:
		return fmt.Sprintf("%s %s checkpoint 1, SL %.2f", e.Side, e.PairID, e.SL)
	case events.PartialBreakEven:
		return fmt.Sprintf("%s %s partial closed, SL to break-even %.2f", e.Side, e.PairID, e.SL)
	case events.PartialClosed:
		return fmt.Sprintf("%s %s partial closed @ %.2f", e.Side, e.PairID, e.Price)
	case events.BreakEven:
		return fmt.Sprintf("%s %s SL to break-even %.2f", e.Side, e.PairID, e.SL)
	case events.TrailAdvanced:
		return fmt.Sprintf("%s %s trail SL %.2f (ATR %.2f)", e.Side, e.PairID, e.SL, e.ATR)
	case events.SLHit:
		return fmt.Sprintf("%s %s SL hit @ %.2f (%s)", e.Side, e.PairID, e.Price, e.Outcome)
	case events.TightSLApplied:
		return fmt.Sprintf("%s %s tight SL %.2f", e.Side, e.PairID, e.SL)
	case events.MarketFrozen:
		return fmt.Sprintf("market frozen @ %.2f", e.Price)
	case events.MarketResumed:
		return fmt.Sprintf("market resumed @ %.2f", e.Price)
	case events.CloseSignal:
		return fmt.Sprintf("%s %s closed by signal @ %.2f", e.Side, e.PairID, e.Price)
	case events.GhostClosed:
		return fmt.Sprintf("closed untracked %s position %s", e.Side, e.Ticket)
	case events.LegReconciled:
		return fmt.Sprintf("%s %s leg %s gone at broker", e.Side, e.PairID, e.Ticket)
	default:
		return string(e.Kind)
	}
}
