package broker

import (
	"context"
	"errors"
	"strings"

	"github.com/rustyeddy/goldpair/market"
)

var notFoundMarkers = []string{
	"not found",
	"does not exist",
	"doesnt_exist",
	"doesn't exist",
	"invalid ticket",
	"no such position",
	"already closed",
}

// IsNotFound reports whether err means the position is already gone. Vendors
// word this differently, so the check is on text as well as on the sentinel.
// A missing quote is never a missing position.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPositionNotFound) {
		return true
	}
	if errors.Is(err, ErrNoPrice) || errors.Is(err, market.ErrNoTick) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range notFoundMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Close closes a whole position and folds "not found" into success, so
// closing a missing ticket is indistinguishable from closing a live one.
func Close(ctx context.Context, b Broker, id string) (CloseResult, error) {
	res, err := b.ClosePosition(ctx, id, 0)
	if err != nil {
		if IsNotFound(err) {
			return CloseResult{AlreadyClosed: true}, nil
		}
		return res, err
	}
	return res, nil
}

// FilterSymbol keeps only positions on symbol.
func FilterSymbol(ps []Position, symbol string) []Position {
	out := ps[:0:0]
	for _, p := range ps {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}
