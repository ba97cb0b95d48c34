package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/goldpair/events"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	j, err := newSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// newSQLite applies the schema to an already opened handle.
func newSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordEvent(e events.Event) error {
	_, err := j.db.Exec(`
		INSERT INTO events
		(time, kind, pair_id, side, ticket, sl, entry, price, atr, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), string(e.Kind), e.PairID, string(e.Side), e.Ticket,
		e.SL, e.Entry, e.Price, e.ATR, string(e.Outcome),
	)
	if err != nil {
		return fmt.Errorf("journal: insert event: %w", err)
	}
	return nil
}

// RecordTrade upserts by ticket so a retried close keeps the last exit.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(ticket, pair_id, symbol, side, role, lots, entry_price, exit_price, close_time, points, reason, already_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Ticket, t.PairID, t.Symbol, string(t.Side), t.Role, t.Lots,
		t.EntryPrice, t.ExitPrice, t.CloseTime.UTC(), t.Points, t.Reason, t.AlreadyClosed,
	)
	if err != nil {
		return fmt.Errorf("journal: insert trade: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
