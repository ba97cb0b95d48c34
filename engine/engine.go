// Package engine ties the price feed, the admission pipeline and the pair
// manager together. One mutex serializes tick handling, reconciliation and
// webhook signals, so the collaborators never see concurrent calls.
package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/goldpair/admission"
	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/indicators"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/metrics"
	"github.com/rustyeddy/goldpair/pairs"
)

type Config struct {
	Pairs     pairs.Config
	Admission admission.Policy

	ATRPeriod      int
	FreezeTicks    int
	CandleCapacity int

	PollInterval      time.Duration
	ReconcileInterval time.Duration

	// WarmupCandles preloads that many closed candles per timeframe from
	// brokers that serve history. Zero disables the preload.
	WarmupCandles int
}

func DefaultConfig() Config {
	return Config{
		Pairs:             pairs.DefaultConfig(),
		Admission:         admission.DefaultPolicy(),
		ATRPeriod:         indicators.DefaultATRPeriod,
		FreezeTicks:       market.DefaultFreezeTicks,
		CandleCapacity:    400,
		PollInterval:      2 * time.Second,
		ReconcileInterval: 15 * time.Second,
	}
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSinks adds event sinks after the built-in log sink.
func WithSinks(s ...events.Sink) Option {
	return func(e *Engine) { e.extra = append(e.extra, s...) }
}

func WithRecorder(r pairs.CloseRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type Engine struct {
	mu sync.Mutex

	cfg      Config
	broker   broker.Broker
	pairs    *pairs.Manager
	admit    *admission.Controller
	candles  *market.CandleAggregator
	freeze   *market.FreezeDetector
	sink     events.Sink
	extra    []events.Sink
	recorder pairs.CloseRecorder
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	atr  float64
	last market.Tick
}

func New(cfg Config, b broker.Broker, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		broker: b,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	base := e.log
	e.log = base.With().Str("component", "engine").Logger()

	sinks := events.Multi{events.NewLogSink(base)}
	if e.metrics != nil {
		sinks = append(sinks, e.metrics)
	}
	e.sink = append(sinks, e.extra...)

	popts := []pairs.Option{
		pairs.WithLogger(base),
		pairs.WithSink(e.sink),
		pairs.WithClock(e.now),
		pairs.WithATR(func() float64 { return e.atr }),
		pairs.WithBrokerErrorHook(e.brokerErr),
	}
	if e.recorder != nil {
		popts = append(popts, pairs.WithRecorder(e.recorder))
	}
	e.pairs = pairs.NewManager(cfg.Pairs, b, popts...)
	e.admit = admission.NewController(cfg.Admission, nil, e.pairs.OpenInCategory)
	e.candles = market.NewCandleAggregator(cfg.CandleCapacity)
	e.freeze = market.NewFreezeDetector(cfg.FreezeTicks)
	return e
}

func (e *Engine) brokerErr(op string, err error) {
	if e.metrics != nil {
		e.metrics.BrokerError(op, err)
	}
}

// Pairs exposes the manager for inspection. Callers must not mutate it while
// the engine is running.
func (e *Engine) Pairs() *pairs.Manager { return e.pairs }

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Symbol       string                     `json:"symbol"`
	Time         time.Time                  `json:"time"`
	Bid          float64                    `json:"bid"`
	Ask          float64                    `json:"ask"`
	Frozen       bool                       `json:"frozen"`
	ATR          float64                    `json:"atr"`
	Candles5m    int                        `json:"candles5m"`
	Approvals    map[string]map[string]bool `json:"approvals"`
	LastAdmitted map[market.Side]time.Time  `json:"lastAdmitted"`
	Pairs        []pairs.View               `json:"pairs"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		Symbol:       e.cfg.Pairs.Symbol,
		Time:         e.now(),
		Bid:          e.last.Bid,
		Ask:          e.last.Ask,
		Frozen:       e.freeze.Frozen(),
		ATR:          e.atr,
		Candles5m:    e.candles.Len(market.TF5m),
		Approvals:    e.admit.Approvals().Snapshot(),
		LastAdmitted: e.admit.LastAdmitted(),
		Pairs:        e.pairs.Snapshot(),
	}
}

func (e *Engine) gauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.OpenPairs.Set(float64(len(e.pairs.Pairs())))
	e.metrics.ATR.Set(e.atr)
}
