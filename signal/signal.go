// Package signal parses inbound webhook payloads into typed commands.
//
// Three message shapes are understood:
//
//	"<T|R> <BUY|SELL> ENTRY"         open a pair
//	"<BUY|SELL> CLOSE"               close every pair on a side
//	"<3M|5M> ZONE <T|R> <BUY|SELL>"  set an approval zone (needs "approval")
package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/goldpair/market"
)

// ErrInvalidFormat is returned for any payload that is not one of the
// known message shapes.
var ErrInvalidFormat = errors.New("INVALID_FORMAT")

// Type is the strategy family of an entry: trend or reversal.
type Type string

const (
	Trend    Type = "T"
	Reversal Type = "R"
)

func parseType(s string) (Type, bool) {
	switch Type(s) {
	case Trend, Reversal:
		return Type(s), true
	}
	return "", false
}

// Category is signal type crossed with side, the unit of quota accounting.
type Category string

const (
	TBuy  Category = "T_BUY"
	TSell Category = "T_SELL"
	RBuy  Category = "R_BUY"
	RSell Category = "R_SELL"
)

// Categories lists every category in a stable order.
var Categories = []Category{TBuy, TSell, RBuy, RSell}

func CategoryOf(t Type, side market.Side) Category {
	return Category(string(t) + "_" + string(side))
}

// Timeframe names an approval zone.
type Timeframe string

const (
	TF3M Timeframe = "3M"
	TF5M Timeframe = "5M"
)

var Timeframes = []Timeframe{TF3M, TF5M}

// Payload is the webhook body.
type Payload struct {
	Signal   string `json:"signal"`
	Approval *bool  `json:"approval,omitempty"`
	SignalID string `json:"signalId,omitempty"`
}

// Command is one of EntryCmd, CloseCmd or ApprovalUpdate.
type Command interface {
	Kind() string
}

type EntryCmd struct {
	Type     Type
	Side     market.Side
	SignalID string
}

func (EntryCmd) Kind() string { return "ENTRY" }

func (c EntryCmd) Category() Category { return CategoryOf(c.Type, c.Side) }

type CloseCmd struct {
	Side     market.Side
	SignalID string
}

func (CloseCmd) Kind() string { return "CLOSE" }

type ApprovalUpdate struct {
	Timeframe Timeframe
	Type      Type
	Side      market.Side
	Approval  bool
}

func (ApprovalUpdate) Kind() string { return "ZONE" }

func (u ApprovalUpdate) Category() Category { return CategoryOf(u.Type, u.Side) }

// Parse turns a payload into a command. Matching is case-insensitive and
// tolerant of extra whitespace.
func Parse(p Payload) (Command, error) {
	f := strings.Fields(strings.ToUpper(p.Signal))
	id := strings.TrimSpace(p.SignalID)

	switch {
	case len(f) == 3 && f[2] == "ENTRY":
		t, ok := parseType(f[0])
		side, err := market.ParseSide(f[1])
		if !ok || err != nil {
			break
		}
		return EntryCmd{Type: t, Side: side, SignalID: id}, nil

	case len(f) == 2 && f[1] == "CLOSE":
		side, err := market.ParseSide(f[0])
		if err != nil {
			break
		}
		return CloseCmd{Side: side, SignalID: id}, nil

	case len(f) == 4 && f[1] == "ZONE":
		tf := Timeframe(f[0])
		t, ok := parseType(f[2])
		side, err := market.ParseSide(f[3])
		if (tf != TF3M && tf != TF5M) || !ok || err != nil {
			break
		}
		if p.Approval == nil {
			return nil, fmt.Errorf("%w: %q needs a boolean approval", ErrInvalidFormat, p.Signal)
		}
		return ApprovalUpdate{Timeframe: tf, Type: t, Side: side, Approval: *p.Approval}, nil
	}

	if len(f) == 0 {
		return nil, fmt.Errorf("%w: missing signal", ErrInvalidFormat)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, p.Signal)
}
