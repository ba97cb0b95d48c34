// Package sim is an in-memory broker. With no feed it is fully offline and
// prices are pushed with SetPrice; with a feed it becomes a paper broker that
// fills simulated orders against real quotes.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/pkg/id"
)

// DefaultUnitsPerLot is the contract size used for simulated P/L.
const DefaultUnitsPerLot = 100

var (
	ErrTradeNotFound = fmt.Errorf("trade %w", broker.ErrPositionNotFound)
	ErrRejected      = errors.New("order rejected")
)

type Engine struct {
	mu          sync.Mutex
	acct        broker.Account
	ticks       *market.TickStore
	trades      map[string]*Trade
	feed        market.TickSource
	now         func() time.Time
	unitsPerLot float64

	seq        int
	placeCalls int
	failPlace  map[int]error
	failClose  map[string]error
}

type Option func(*Engine)

// WithFeed turns the engine into a paper broker quoting from src.
func WithFeed(src market.TickSource) Option {
	return func(e *Engine) { e.feed = src }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithUnitsPerLot(n float64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.unitsPerLot = n
		}
	}
}

func NewEngine(acct broker.Account, opts ...Option) *Engine {
	if acct.Currency == "" {
		acct.Currency = "USD"
	}
	e := &Engine{
		acct:        acct,
		ticks:       market.NewTickStore(),
		trades:      make(map[string]*Trade),
		now:         time.Now,
		unitsPerLot: DefaultUnitsPerLot,
		failPlace:   make(map[int]error),
		failClose:   make(map[string]error),
	}
	for _, o := range opts {
		o(e)
	}
	e.acct.Equity = e.acct.Balance
	e.acct.FreeMargin = e.acct.Balance
	return e
}

func (e *Engine) Name() string {
	if e.feed != nil {
		return "paper"
	}
	return "sim"
}

// Prices exposes the engine's quote cache.
func (e *Engine) Prices() *market.TickStore {
	return e.ticks
}

// SetPrice pushes a quote stamped with the engine clock.
func (e *Engine) SetPrice(symbol string, bid, ask float64) {
	e.UpdatePrice(market.Tick{Instrument: symbol, Time: e.now(), Bid: bid, Ask: ask})
}

// UpdatePrice stores p and fires any broker-side stop or target it crosses.
func (e *Engine) UpdatePrice(p market.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks.Set(p)
	for _, t := range e.trades {
		if !t.Open || t.Symbol != p.Instrument {
			continue
		}
		mark := p.Price(t.Side)
		switch {
		case t.hitStopLoss(mark):
			e.closeLocked(t, t.Lots, mark, p.Time, "StopLoss")
		case t.hitTakeProfit(mark):
			e.closeLocked(t, t.Lots, mark, p.Time, "TakeProfit")
		}
	}
	e.revalueLocked()
}

func (e *Engine) GetPrice(ctx context.Context, symbol string) (market.Tick, error) {
	if e.feed != nil {
		t, err := e.feed.GetTick(ctx, symbol)
		if err != nil {
			return market.Tick{}, fmt.Errorf("%w: %v", broker.ErrNoPrice, err)
		}
		if t.Instrument == "" {
			t.Instrument = symbol
		}
		e.UpdatePrice(t)
		return t, nil
	}
	t, err := e.ticks.Get(symbol)
	if err != nil || !t.Valid() {
		return market.Tick{}, broker.ErrNoPrice
	}
	return t, nil
}

// GetTick lets the engine serve as a market.TickSource for other components.
func (e *Engine) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	return e.GetPrice(ctx, symbol)
}

func (e *Engine) GetPositions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := make([]*Trade, 0, len(e.trades))
	for _, t := range e.trades {
		if t.Open {
			open = append(open, t)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].seq < open[j].seq })
	out := make([]broker.Position, len(open))
	for i, t := range open {
		out[i] = t.position()
	}
	return out, nil
}

func (e *Engine) GetBalance(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revalueLocked()
	return e.acct, nil
}

func (e *Engine) PlaceMarket(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.placeCalls++
	if err, ok := e.failPlace[e.placeCalls]; ok {
		delete(e.failPlace, e.placeCalls)
		return broker.OrderFill{}, err
	}
	if req.Lots <= 0 {
		return broker.OrderFill{}, fmt.Errorf("%w: lots must be positive", ErrRejected)
	}
	p, err := e.ticks.Get(req.Symbol)
	if err != nil || !p.Valid() {
		return broker.OrderFill{}, fmt.Errorf("%w: no price for %s", ErrRejected, req.Symbol)
	}

	// Longs fill on the ask, shorts on the bid.
	fillPrice := p.Ask
	if req.Side == market.Sell {
		fillPrice = p.Bid
	}
	now := e.now()
	t := &Trade{
		ID:         id.At(now),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Lots:       req.Lots,
		EntryPrice: fillPrice,
		OpenTime:   now,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Open:       true,
	}
	e.addLocked(t)

	return broker.OrderFill{
		ID:     t.ID,
		Symbol: t.Symbol,
		Side:   t.Side,
		Lots:   t.Lots,
		Price:  fillPrice,
		Time:   now,
	}, nil
}

// ClosePosition closes lots of a ticket at the side-relevant quote, or the
// whole ticket when lots is zero or covers its volume.
func (e *Engine) ClosePosition(ctx context.Context, tradeID string, lots float64) (broker.CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err, ok := e.failClose[tradeID]; ok {
		delete(e.failClose, tradeID)
		return broker.CloseResult{}, err
	}
	t, ok := e.trades[tradeID]
	if !ok || !t.Open {
		return broker.CloseResult{}, fmt.Errorf("close %q: %w", tradeID, ErrTradeNotFound)
	}
	p, err := e.ticks.Get(t.Symbol)
	if err != nil {
		return broker.CloseResult{}, fmt.Errorf("close %q: %w for %q: %v", tradeID, broker.ErrNoPrice, t.Symbol, err)
	}
	if lots <= 0 || lots >= t.Lots {
		lots = t.Lots
	}
	e.closeLocked(t, lots, p.Price(t.Side), e.now(), "ManualClose")
	e.revalueLocked()
	return broker.CloseResult{}, nil
}

func (e *Engine) ModifyPosition(ctx context.Context, tradeID string, pr broker.Protection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.trades[tradeID]
	if !ok || !t.Open {
		return fmt.Errorf("modify %q: %w", tradeID, ErrTradeNotFound)
	}
	if pr.StopLoss != nil {
		sl := *pr.StopLoss
		t.StopLoss = &sl
	}
	if pr.TakeProfit != nil {
		tp := *pr.TakeProfit
		t.TakeProfit = &tp
	}
	return nil
}

// Trade returns a copy of a ticket, open or closed.
func (e *Engine) Trade(tradeID string) (Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

// IsTradeOpen reports whether the given trade exists and is currently open.
func (e *Engine) IsTradeOpen(tradeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	return ok && t.Open
}

// Fault injection.

// FailPlacement makes the nth PlaceMarket call from now fail with err.
func (e *Engine) FailPlacement(nth int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		err = ErrRejected
	}
	e.failPlace[e.placeCalls+nth] = err
}

// FailClose makes the next ClosePosition on tradeID fail with err.
func (e *Engine) FailClose(tradeID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failClose[tradeID] = err
}

// DropPosition removes a ticket without any client request, the way a
// broker-side stop or a manual close in another terminal would.
func (e *Engine) DropPosition(tradeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	if !ok || !t.Open {
		return false
	}
	p, _ := e.ticks.Get(t.Symbol)
	e.closeLocked(t, t.Lots, p.Price(t.Side), e.now(), "External")
	return true
}

// InjectPosition opens a ticket the client never requested.
func (e *Engine) InjectPosition(p broker.Position) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.ID == "" {
		p.ID = id.At(e.now())
	}
	if p.OpenTime.IsZero() {
		p.OpenTime = e.now()
	}
	e.addLocked(&Trade{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Lots:       p.Volume,
		EntryPrice: p.OpenPrice,
		OpenTime:   p.OpenTime,
		Open:       true,
	})
	return p.ID
}

func (e *Engine) addLocked(t *Trade) {
	e.seq++
	t.seq = e.seq
	e.trades[t.ID] = t
	e.acct.OpenTrades++
}

func (e *Engine) closeLocked(t *Trade, lots, price float64, at time.Time, reason string) {
	pl := t.pl(price, lots, e.unitsPerLot)
	e.acct.Balance += pl
	t.RealizedPL += pl
	t.Lots -= lots
	if t.Lots > 1e-9 {
		return
	}
	t.Lots = 0
	t.ClosePrice = price
	t.CloseTime = at
	t.Reason = reason
	t.Open = false
	e.acct.OpenTrades--
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	for _, t := range e.trades {
		if !t.Open {
			continue
		}
		p, err := e.ticks.Get(t.Symbol)
		if err != nil {
			continue
		}
		equity += t.pl(p.Price(t.Side), t.Lots, e.unitsPerLot)
	}
	e.acct.Equity = equity
	e.acct.FreeMargin = equity - e.acct.MarginUsed
}

var (
	_ broker.Broker     = (*Engine)(nil)
	_ broker.Modifier   = (*Engine)(nil)
	_ market.TickSource = (*Engine)(nil)
)
