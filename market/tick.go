package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoTick is returned by a TickStore that has never seen the instrument.
var ErrNoTick = errors.New("no tick for instrument")

type TickSource interface {
	GetTick(ctx context.Context, instrument string) (Tick, error)
}

type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

func (t Tick) Mid() float64 {
	if t.Bid == 0 && t.Ask == 0 {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Price returns the side-relevant quote: bid for longs, ask for shorts.
// That is the price a position of the given side would close at.
func (t Tick) Price(side Side) float64 {
	if side == Sell {
		return t.Ask
	}
	return t.Bid
}

// Valid reports whether both sides of the quote are populated.
func (t Tick) Valid() bool {
	return t.Bid > 0 && t.Ask > 0
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ps *TickStore) Set(p Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.ticks[p.Instrument] = p
}

func (ps *TickStore) Get(instr string) (Tick, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.ticks[instr]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return p, nil
}

// Fresh returns the stored tick only if it is younger than maxAge at now.
func (ps *TickStore) Fresh(instr string, now time.Time, maxAge time.Duration) (Tick, bool) {
	p, err := ps.Get(instr)
	if err != nil {
		return Tick{}, false
	}
	if p.Time.IsZero() || now.Sub(p.Time) > maxAge {
		return Tick{}, false
	}
	return p, true
}
