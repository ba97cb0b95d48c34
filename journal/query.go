package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
)

var ErrNotFound = errors.New("journal: not found")

const tradeColumns = `ticket, pair_id, symbol, side, role, lots, entry_price, exit_price, close_time, points, reason, already_closed`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		side string
	)
	err := s.Scan(
		&rec.Ticket,
		&rec.PairID,
		&rec.Symbol,
		&side,
		&rec.Role,
		&rec.Lots,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.CloseTime,
		&rec.Points,
		&rec.Reason,
		&rec.AlreadyClosed,
	)
	rec.Side = market.Side(side)
	return rec, err
}

// GetTrade returns a single closed leg by ticket.
func (j *SQLite) GetTrade(ticket string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE ticket = ?`, ticket)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", ticket, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns legs whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	PairID string
	Kind   events.Kind
	Since  time.Time
	Limit  int
}

// ListEvents returns events oldest first.
func (j *SQLite) ListEvents(flt EventFilter) ([]events.Event, error) {
	q := `SELECT time, kind, pair_id, side, ticket, sl, entry, price, atr, outcome FROM events WHERE 1=1`
	var args []any
	if flt.PairID != "" {
		q += ` AND pair_id = ?`
		args = append(args, flt.PairID)
	}
	if flt.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, string(flt.Kind))
	}
	if !flt.Since.IsZero() {
		q += ` AND time >= ?`
		args = append(args, flt.Since.UTC())
	}
	q += ` ORDER BY id ASC`
	if flt.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, flt.Limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                   events.Event
			kind, side, outcome string
		)
		if err := rows.Scan(&e.Time, &kind, &e.PairID, &side, &e.Ticket, &e.SL, &e.Entry, &e.Price, &e.ATR, &outcome); err != nil {
			return nil, err
		}
		e.Kind = events.Kind(kind)
		e.Side = market.Side(side)
		e.Outcome = events.Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates closed legs.
type Summary struct {
	Legs        int
	Wins        int
	Losses      int
	GrossPoints float64
	LossPoints  float64
}

// ProfitFactor is gross winning points over gross losing points, zero when
// nothing was lost.
func (s Summary) ProfitFactor() float64 {
	if s.LossPoints == 0 {
		return 0
	}
	return s.GrossPoints / s.LossPoints
}

func (j *SQLite) Summarize(start, end time.Time) (Summary, error) {
	trades, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	for _, t := range trades {
		if t.AlreadyClosed {
			continue
		}
		s.Legs++
		switch {
		case t.Points > 0:
			s.Wins++
			s.GrossPoints += t.Points
		case t.Points < 0:
			s.Losses++
			s.LossPoints -= t.Points
		}
	}
	return s, nil
}
