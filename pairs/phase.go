package pairs

// Phase is where a pair sits in its lifecycle.
//
//	Open ──CP2──▶ BreakEven ──trail──▶ Trailing
//	  │              ▲
//	  └─tight CP1──▶ Partial
//
// Every phase may move to Closing. A normal-mode pair whose partial leg
// disappears at the broker lands in Partial and trails from there without
// a break-even floor.
type Phase string

const (
	Open      Phase = "OPEN"
	Partial   Phase = "PARTIAL"
	BreakEven Phase = "BREAKEVEN"
	Trailing  Phase = "TRAILING"
	Closing   Phase = "CLOSING"
)

// transitions lists the allowed moves out of each phase.
var transitions = map[Phase][]Phase{
	Open:      {Partial, BreakEven, Closing},
	Partial:   {BreakEven, Closing},
	BreakEven: {Trailing, Closing},
	Trailing:  {Closing},
	Closing:   {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func (p Phase) partialClosed() bool {
	return p == Partial || p == BreakEven || p == Trailing
}

func (p Phase) breakEven() bool {
	return p == BreakEven || p == Trailing
}
