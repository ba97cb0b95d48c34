// Package pairs owns the paired-leg positions: placement, the per-tick
// checkpoint/break-even/trailing state machine, and reconciliation against
// the broker's position list. A Manager is not safe for concurrent use;
// the engine serializes every call.
package pairs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/pkg/id"
	"github.com/rustyeddy/goldpair/signal"
)

// ErrPlacementFailed means a pair could not be opened and nothing was kept.
var ErrPlacementFailed = errors.New("placement failed")

type Config struct {
	Symbol string

	TotalLot    float64
	MinLot      float64
	LotDecimals int32

	SLDistance    float64
	HalfDistance  float64
	TrailStep     float64
	ATRMultiplier float64
	TightSL       float64

	Grace       time.Duration
	LegDelay    time.Duration
	CallTimeout time.Duration

	// BrokerSideSL mirrors every stop change onto the live legs when the
	// broker supports it.
	BrokerSideSL bool
}

func DefaultConfig() Config {
	return Config{
		Symbol:        market.DefaultSymbol,
		TotalLot:      0.02,
		MinLot:        0.01,
		LotDecimals:   2,
		SLDistance:    8,
		HalfDistance:  5,
		TrailStep:     5,
		ATRMultiplier: 1.5,
		TightSL:       5,
		Grace:         5 * time.Second,
		LegDelay:      300 * time.Millisecond,
		CallTimeout:   10 * time.Second,
	}
}

// LegClose describes one leg the manager closed.
type LegClose struct {
	PairID string
	Ticket string
	Role   Role
	Side   market.Side
	Lots   float64
	Entry  float64
	Exit   float64
	Reason string
	// AlreadyClosed is set when the broker no longer knew the ticket.
	AlreadyClosed bool
	Time          time.Time
}

// CloseRecorder is told about every leg the manager closes.
type CloseRecorder interface {
	RecordLegClose(ctx context.Context, c LegClose)
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "pairs").Logger() }
}

func WithSink(s events.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithATR supplies the volatility used to scale the trail trigger.
func WithATR(f func() float64) Option {
	return func(m *Manager) { m.atr = f }
}

func WithRecorder(r CloseRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithBrokerErrorHook is called for every broker fault the manager absorbs.
func WithBrokerErrorHook(f func(op string, err error)) Option {
	return func(m *Manager) { m.onBrokerErr = f }
}

type Manager struct {
	cfg         Config
	broker      broker.Broker
	sink        events.Sink
	recorder    CloseRecorder
	log         zerolog.Logger
	now         func() time.Time
	atr         func() float64
	onBrokerErr func(op string, err error)

	pairs []*Pair
	// reconciled is set once a tick has run its lazy reconcile.
	reconciled bool
}

func NewManager(cfg Config, b broker.Broker, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		broker: b,
		sink:   events.Discard,
		log:    zerolog.Nop(),
		now:    time.Now,
		atr:    func() float64 { return 0 },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Config() Config { return m.cfg }

// Pairs returns the tracked pairs in opening order.
func (m *Manager) Pairs() []*Pair {
	out := make([]*Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

func (m *Manager) Get(pairID string) (*Pair, bool) {
	for _, p := range m.pairs {
		if p.ID == pairID {
			return p, true
		}
	}
	return nil, false
}

func (m *Manager) Snapshot() []View {
	out := make([]View, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = p.View()
	}
	return out
}

// OpenInCategory counts the pairs of cat that have not taken their partial
// and still hold both legs.
func (m *Manager) OpenInCategory(cat signal.Category) int {
	n := 0
	for _, p := range m.pairs {
		if p.Category == cat && !p.PartialClosed() && p.Partial.Live() && p.Trailing.Live() {
			n++
		}
	}
	return n
}

// SplitLot halves total into a per-leg size rounded to decimals places and
// floored at min.
func SplitLot(total, min float64, decimals int32) float64 {
	leg := decimal.NewFromFloat(total).Div(decimal.NewFromInt(2)).Round(decimals)
	if floor := decimal.NewFromFloat(min); leg.LessThan(floor) {
		leg = floor
	}
	f, _ := leg.Float64()
	return f
}

// OpenPair places the partial leg, waits the leg delay, then places the
// trailing leg. If either placement fails any placed leg is closed and no
// pair is recorded. tick supplies the entry estimate when the broker does
// not report a fill price.
func (m *Manager) OpenPair(ctx context.Context, cmd signal.EntryCmd, tick market.Tick) (*Pair, error) {
	lots := SplitLot(m.cfg.TotalLot, m.cfg.MinLot, m.cfg.LotDecimals)
	req := broker.MarketOrderRequest{Symbol: m.cfg.Symbol, Side: cmd.Side, Lots: lots}

	first, err := m.place(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: partial leg: %v", ErrPlacementFailed, err)
	}

	if err := sleep(ctx, m.cfg.LegDelay); err != nil {
		m.rollback(ctx, first.ID)
		return nil, fmt.Errorf("%w: %v", ErrPlacementFailed, err)
	}

	second, err := m.place(ctx, req)
	if err != nil {
		m.rollback(ctx, first.ID)
		return nil, fmt.Errorf("%w: trailing leg: %v", ErrPlacementFailed, err)
	}

	now := m.now()
	entry := first.Price
	if entry <= 0 {
		entry = m.entryEstimate(ctx, cmd.Side, tick)
	}
	if entry <= 0 {
		entry = m.openPrice(ctx, first.ID)
	}
	if entry <= 0 {
		m.rollback(ctx, first.ID)
		m.rollback(ctx, second.ID)
		return nil, fmt.Errorf("%w: no entry price for %s", ErrPlacementFailed, m.cfg.Symbol)
	}

	p := &Pair{
		ID:        id.Prefixed("pair", now),
		Side:      cmd.Side,
		Type:      cmd.Type,
		Category:  cmd.Category(),
		SignalID:  cmd.SignalID,
		OpenedAt:  now,
		Entry:     entry,
		LotPerLeg: lots,
		Partial:   Leg{Role: PartialLeg, Ticket: first.ID, Lots: lots},
		Trailing:  Leg{Role: TrailingLeg, Ticket: second.ID, Lots: lots},
		phase:     Open,
	}
	p.SL = p.stopAt(entry, m.cfg.SLDistance)
	p.InternalSL = p.SL
	m.pairs = append(m.pairs, p)

	m.log.Info().
		Str("pair_id", p.ID).
		Str("side", string(p.Side)).
		Str("category", string(p.Category)).
		Float64("entry", p.Entry).
		Float64("sl", p.SL).
		Float64("lots", lots).
		Str("partial", first.ID).
		Str("trailing", second.ID).
		Msg("pair opened")
	m.emit(ctx, events.Event{Kind: events.Entry, PairID: p.ID, Side: p.Side, SL: p.SL, Entry: p.Entry, Price: entry})
	m.mirror(ctx, p)
	return p, nil
}

// entryEstimate is the price a market order on side would have filled at.
func (m *Manager) entryEstimate(ctx context.Context, side market.Side, tick market.Tick) float64 {
	if !tick.Valid() {
		cctx, cancel := m.callCtx(ctx)
		t, err := m.broker.GetPrice(cctx, m.cfg.Symbol)
		cancel()
		if err != nil {
			m.brokerErr("price", err)
			return 0
		}
		tick = t
	}
	if side == market.Buy {
		return tick.Ask
	}
	return tick.Bid
}

// openPrice is the broker's recorded open price for ticket, 0 when unknown.
func (m *Manager) openPrice(ctx context.Context, ticket string) float64 {
	cctx, cancel := m.callCtx(ctx)
	ps, err := m.broker.GetPositions(cctx)
	cancel()
	if err != nil {
		m.brokerErr("positions", err)
		return 0
	}
	for _, p := range ps {
		if p.ID == ticket {
			return p.OpenPrice
		}
	}
	return 0
}

func (m *Manager) place(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	fill, err := m.broker.PlaceMarket(cctx, req)
	if err != nil {
		m.brokerErr("place", err)
		return fill, err
	}
	if fill.ID == "" {
		return fill, errors.New("broker returned no ticket")
	}
	return fill, nil
}

func (m *Manager) rollback(ctx context.Context, ticket string) {
	if _, err := m.closeTicket(context.WithoutCancel(ctx), ticket); err != nil {
		m.log.Error().Err(err).Str("ticket", ticket).Msg("rollback close failed")
	}
}

// CloseBySide closes every leg of every pair on side and marks those pairs
// closing. Legs whose close fails stay live and are retried on each tick.
// It returns the number of pairs this call moved into closing; pairs that
// were already closing get their leftover legs retried but are not counted.
func (m *Manager) CloseBySide(ctx context.Context, side market.Side, price float64) int {
	n := 0
	for _, p := range m.Pairs() {
		if p.Side != side {
			continue
		}
		m.closeLegs(ctx, p, price, "CLOSE_SIGNAL")
		if p.phase != Closing {
			_ = p.transition(Closing)
			n++
			m.emit(ctx, events.Event{Kind: events.CloseSignal, PairID: p.ID, Side: p.Side, Entry: p.Entry, Price: price})
		}
	}
	return n
}

// closeLegs closes every live leg and reports whether none remain.
func (m *Manager) closeLegs(ctx context.Context, p *Pair, price float64, reason string) bool {
	for _, l := range p.Legs() {
		if l.Live() {
			m.closeLeg(ctx, p, l, price, reason)
		}
	}
	return p.LiveLegs() == 0
}

// closeLeg closes one leg. The ticket is cleared only once the broker has
// confirmed the close or no longer knows the ticket.
func (m *Manager) closeLeg(ctx context.Context, p *Pair, l *Leg, price float64, reason string) bool {
	res, err := m.closeTicket(ctx, l.Ticket)
	if err != nil {
		m.log.Warn().Err(err).
			Str("op", "close").
			Str("pair_id", p.ID).
			Str("ticket", l.Ticket).
			Str("leg", string(l.Role)).
			Msg("leg close failed, will retry")
		return false
	}
	if m.recorder != nil {
		m.recorder.RecordLegClose(ctx, LegClose{
			PairID:        p.ID,
			Ticket:        l.Ticket,
			Role:          l.Role,
			Side:          p.Side,
			Lots:          l.Lots,
			Entry:         p.Entry,
			Exit:          price,
			Reason:        reason,
			AlreadyClosed: res.AlreadyClosed,
			Time:          m.now(),
		})
	}
	m.log.Info().
		Str("pair_id", p.ID).
		Str("ticket", l.Ticket).
		Str("leg", string(l.Role)).
		Str("reason", reason).
		Bool("already_closed", res.AlreadyClosed).
		Msg("leg closed")
	l.Ticket = ""
	return true
}

func (m *Manager) closeTicket(ctx context.Context, ticket string) (broker.CloseResult, error) {
	cctx, cancel := m.callCtx(ctx)
	defer cancel()
	res, err := broker.Close(cctx, m.broker, ticket)
	if err != nil {
		m.brokerErr("close", err)
	}
	return res, err
}

// mirror copies the pair's stop onto its live legs at the broker.
func (m *Manager) mirror(ctx context.Context, p *Pair) {
	if !m.cfg.BrokerSideSL {
		return
	}
	mod, ok := m.broker.(broker.Modifier)
	if !ok {
		return
	}
	sl := p.InternalSL
	for _, l := range p.Legs() {
		if !l.Live() {
			continue
		}
		cctx, cancel := m.callCtx(ctx)
		err := mod.ModifyPosition(cctx, l.Ticket, broker.Protection{Symbol: m.cfg.Symbol, StopLoss: &sl})
		cancel()
		if err != nil {
			m.brokerErr("modify", err)
			m.log.Warn().Err(err).Str("op", "modify").Str("pair_id", p.ID).Str("ticket", l.Ticket).Msg("stop mirror failed")
		}
	}
}

func (m *Manager) emit(ctx context.Context, e events.Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	m.sink.Emit(ctx, e)
}

func (m *Manager) brokerErr(op string, err error) {
	if m.onBrokerErr != nil {
		m.onBrokerErr(op, err)
	}
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.CallTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
