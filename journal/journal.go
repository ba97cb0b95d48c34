// Package journal is the audit trail: every emitted event and every leg the
// engine closed. The engine only writes to it.
package journal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
)

// TradeRecord is one closed leg.
type TradeRecord struct {
	Ticket     string
	PairID     string
	Symbol     string
	Side       market.Side
	Role       string
	Lots       float64
	EntryPrice float64
	ExitPrice  float64
	CloseTime  time.Time
	// Points is the favorable price distance, negative on a loss.
	Points        float64
	Reason        string
	AlreadyClosed bool
}

type Journal interface {
	RecordEvent(events.Event) error
	RecordTrade(TradeRecord) error
	Close() error
}

const (
	TypeNone   = "none"
	TypeCSV    = "csv"
	TypeSQLite = "sqlite"
)

// Open builds the journal named by kind. For csv, path is a directory that
// receives events.csv and trades.csv; for sqlite it is the database file.
func Open(kind, path string) (Journal, error) {
	switch kind {
	case "", TypeNone:
		return Nop{}, nil
	case TypeCSV:
		return NewCSV(path)
	case TypeSQLite:
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("journal: unknown type %q", kind)
	}
}

// Nop drops everything.
type Nop struct{}

func (Nop) RecordEvent(events.Event) error { return nil }
func (Nop) RecordTrade(TradeRecord) error  { return nil }
func (Nop) Close() error                   { return nil }
