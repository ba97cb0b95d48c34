package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rustyeddy/goldpair/events"
)

var (
	eventHeader = []string{"time", "kind", "pair_id", "side", "ticket", "sl", "entry", "price", "atr", "outcome"}
	tradeHeader = []string{"ticket", "pair_id", "symbol", "side", "role", "lots", "entry_price", "exit_price", "close_time", "points", "reason", "already_closed"}
)

type CSV struct {
	events *csv.Writer
	trades *csv.Writer
	ef, tf *os.File
}

// NewCSV appends to events.csv and trades.csv inside dir, writing headers
// only when a file is new.
func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ef, ew, err := openCSV(filepath.Join(dir, "events.csv"), eventHeader)
	if err != nil {
		return nil, err
	}
	tf, tw, err := openCSV(filepath.Join(dir, "trades.csv"), tradeHeader)
	if err != nil {
		_ = ef.Close()
		return nil, err
	}
	return &CSV{events: ew, trades: tw, ef: ef, tf: tf}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if st.Size() == 0 {
		if err := write(w, header); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) RecordEvent(e events.Event) error {
	return write(j.events, []string{
		e.Time.UTC().Format(time.RFC3339Nano),
		string(e.Kind),
		e.PairID,
		string(e.Side),
		e.Ticket,
		f(e.SL),
		f(e.Entry),
		f(e.Price),
		f(e.ATR),
		string(e.Outcome),
	})
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	return write(j.trades, []string{
		t.Ticket,
		t.PairID,
		t.Symbol,
		string(t.Side),
		t.Role,
		f(t.Lots),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.CloseTime.UTC().Format(time.RFC3339Nano),
		f(t.Points),
		t.Reason,
		strconv.FormatBool(t.AlreadyClosed),
	})
}

func (j *CSV) Close() error {
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return j.tf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
