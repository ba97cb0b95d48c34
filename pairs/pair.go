package pairs

import (
	"fmt"
	"time"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/signal"
)

type Role string

const (
	PartialLeg  Role = "PARTIAL"
	TrailingLeg Role = "TRAILING"
)

// Leg is one of the two broker positions of a pair. An empty ticket means
// the leg is gone and must not be touched again.
type Leg struct {
	Role   Role
	Ticket string
	Lots   float64
}

func (l *Leg) Live() bool { return l.Ticket != "" }

// Pair is the two sibling positions opened for one admitted entry.
type Pair struct {
	ID       string
	Side     market.Side
	Type     signal.Type
	Category signal.Category
	SignalID string
	OpenedAt time.Time

	Entry     float64
	LotPerLeg float64
	// SL is the baseline stop, Entry offset by the stop distance against
	// the position.
	SL float64
	// InternalSL is the engine-managed stop. It only ever moves in the
	// position's favor.
	InternalSL float64
	TightSL    bool

	Partial  Leg
	Trailing Leg

	Outcome events.Outcome

	phase Phase
	// exitPhase is the phase the pair held when it started closing.
	exitPhase Phase
}

func (p *Pair) Phase() Phase { return p.phase }

func (p *Pair) settled() Phase {
	if p.phase == Closing {
		return p.exitPhase
	}
	return p.phase
}

// PartialClosed reports whether the partial leg was taken off by a
// checkpoint or found gone by reconciliation.
func (p *Pair) PartialClosed() bool { return p.settled().partialClosed() }

func (p *Pair) BreakEvenActive() bool { return p.settled().breakEven() }

func (p *Pair) AwaitingFinalClose() bool { return p.phase == Closing }

func (p *Pair) Legs() []*Leg { return []*Leg{&p.Partial, &p.Trailing} }

func (p *Pair) LiveLegs() int {
	n := 0
	for _, l := range p.Legs() {
		if l.Live() {
			n++
		}
	}
	return n
}

// Owns reports whether ticket belongs to one of the pair's live legs.
func (p *Pair) Owns(ticket string) bool {
	return ticket != "" && (p.Partial.Ticket == ticket || p.Trailing.Ticket == ticket)
}

func (p *Pair) transition(to Phase) error {
	if !CanTransition(p.phase, to) {
		return fmt.Errorf("pair %s: illegal transition %s -> %s", p.ID, p.phase, to)
	}
	if to == Closing {
		p.exitPhase = p.phase
	}
	p.phase = to
	return nil
}

// stopAt returns the price offset from ref by distance against the pair.
func (p *Pair) stopAt(ref, distance float64) float64 {
	return ref - p.Side.Sign()*distance
}

// tighten moves InternalSL to sl if that is strictly more protective.
func (p *Pair) tighten(sl float64) bool {
	if !p.Side.Better(sl, p.InternalSL) {
		return false
	}
	p.InternalSL = sl
	return true
}

// View is a read-only copy of a pair for status output.
type View struct {
	ID             string          `json:"id"`
	Side           market.Side     `json:"side"`
	Category       signal.Category `json:"category"`
	SignalID       string          `json:"signalId,omitempty"`
	OpenedAt       time.Time       `json:"openedAt"`
	Phase          Phase           `json:"phase"`
	Entry          float64         `json:"entry"`
	SL             float64         `json:"sl"`
	InternalSL     float64         `json:"internalSl"`
	TightSL        bool            `json:"tightSl"`
	LotPerLeg      float64         `json:"lotPerLeg"`
	PartialTicket  string          `json:"partialTicket,omitempty"`
	TrailingTicket string          `json:"trailingTicket,omitempty"`
}

func (p *Pair) View() View {
	return View{
		ID:             p.ID,
		Side:           p.Side,
		Category:       p.Category,
		SignalID:       p.SignalID,
		OpenedAt:       p.OpenedAt,
		Phase:          p.phase,
		Entry:          p.Entry,
		SL:             p.SL,
		InternalSL:     p.InternalSL,
		TightSL:        p.TightSL,
		LotPerLeg:      p.LotPerLeg,
		PartialTicket:  p.Partial.Ticket,
		TrailingTicket: p.Trailing.Ticket,
	}
}
