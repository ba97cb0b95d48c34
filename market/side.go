package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a position.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign is +1 for Buy and -1 for Sell. Price offsets "in favor" of a
// position are entry + Sign()*distance.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Favorable returns how far price a has moved past b in the side's favor.
// Positive means a is better than b for a position of this side.
func (s Side) Favorable(a, b float64) float64 {
	return s.Sign() * (a - b)
}

// Better reports whether stop a is strictly more protective than stop b.
func (s Side) Better(a, b float64) bool {
	return s.Favorable(a, b) > 0
}

func (s Side) String() string { return string(s) }
