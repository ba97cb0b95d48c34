// Package events carries the structured notifications the trading core
// emits. Delivery is up to the sinks.
package events

import (
	"context"
	"time"

	"github.com/rustyeddy/goldpair/market"
)

type Kind string

const (
	Entry            Kind = "ENTRY"
	Checkpoint1      Kind = "CHECKPOINT1"
	PartialBreakEven Kind = "PARTIAL_BREAKEVEN"
	TrailAdvanced    Kind = "TRAIL_ADVANCED"
	SLHit            Kind = "SL_HIT"
	TightSLApplied   Kind = "TIGHT_SL_APPLIED"
	MarketFrozen     Kind = "MARKET_FROZEN"
	MarketResumed    Kind = "MARKET_RESUMED"

	// Tight-mode checkpoints split the partial close from break-even.
	PartialClosed Kind = "PARTIAL_CLOSED"
	BreakEven     Kind = "BREAKEVEN"
	CloseSignal   Kind = "CLOSE_SIGNAL"
	GhostClosed   Kind = "GHOST_CLOSED"
	LegReconciled Kind = "LEG_RECONCILED"
)

// Kinds lists every kind, for pre-registering metric labels.
var Kinds = []Kind{
	Entry, Checkpoint1, PartialBreakEven, TrailAdvanced, SLHit, TightSLApplied,
	MarketFrozen, MarketResumed, PartialClosed, BreakEven, CloseSignal, GhostClosed, LegReconciled,
}

type Outcome string

const (
	Profit Outcome = "profit"
	Loss   Outcome = "loss"
)

// Event is one notification. Price fields are zero when not meaningful.
type Event struct {
	Kind    Kind        `json:"kind"`
	PairID  string      `json:"pairId,omitempty"`
	Side    market.Side `json:"side,omitempty"`
	Ticket  string      `json:"ticket,omitempty"`
	SL      float64     `json:"sl,omitempty"`
	Entry   float64     `json:"entry,omitempty"`
	Price   float64     `json:"price,omitempty"`
	ATR     float64     `json:"atr,omitempty"`
	Outcome Outcome     `json:"outcome,omitempty"`
	Time    time.Time   `json:"time"`
}

// Sink receives events. Emit must not block the caller for long; sinks
// that talk to the network bound their own work.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// Discard drops everything.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.Events = append(r.Events, e)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}

// Last returns the most recent event of kind k.
func (r *Recorder) Last(k Kind) (Event, bool) {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Kind == k {
			return r.Events[i], true
		}
	}
	return Event{}, false
}
