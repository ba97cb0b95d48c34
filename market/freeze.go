package market

// DefaultFreezeTicks is the number of unchanged polls (at a 2s poll, about
// two minutes) after which the feed is considered frozen.
const DefaultFreezeTicks = 60

// FreezeTransition is reported by FreezeDetector.Observe when the feed
// changes state.
type FreezeTransition int

const (
	NoTransition FreezeTransition = iota
	Frozen
	Resumed
)

func (f FreezeTransition) String() string {
	switch f {
	case Frozen:
		return "frozen"
	case Resumed:
		return "resumed"
	}
	return "none"
}

// FreezeDetector flags a market as frozen once the polled price has not
// changed for more than Threshold consecutive observations.
type FreezeDetector struct {
	Threshold int

	last     float64
	seen     bool
	stagnant int
	frozen   bool
}

func NewFreezeDetector(threshold int) *FreezeDetector {
	if threshold <= 0 {
		threshold = DefaultFreezeTicks
	}
	return &FreezeDetector{Threshold: threshold}
}

// Observe records one polled price and reports any state change.
func (d *FreezeDetector) Observe(price float64) FreezeTransition {
	if !d.seen || price != d.last {
		d.seen = true
		d.last = price
		d.stagnant = 0
		if d.frozen {
			d.frozen = false
			return Resumed
		}
		return NoTransition
	}

	d.stagnant++
	if d.stagnant > d.Threshold && !d.frozen {
		d.frozen = true
		return Frozen
	}
	return NoTransition
}

func (d *FreezeDetector) Frozen() bool { return d.frozen }

// Stagnant returns the current run of unchanged observations.
func (d *FreezeDetector) Stagnant() int { return d.stagnant }
