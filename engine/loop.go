package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/goldpair/broker"
	"github.com/rustyeddy/goldpair/events"
	"github.com/rustyeddy/goldpair/indicators"
	"github.com/rustyeddy/goldpair/market"
)

// Run preloads candles when configured, starts the broker's price stream if
// it has one, and drives the poll and reconcile loops until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.Warmup(ctx)

	g, ctx := errgroup.WithContext(ctx)
	if s, ok := e.broker.(broker.Subscriber); ok {
		g.Go(func() error {
			err := s.Subscribe(ctx, e.cfg.Pairs.Symbol)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		return every(ctx, e.cfg.PollInterval, func() { _ = e.Poll(ctx) })
	})
	g.Go(func() error {
		return every(ctx, e.cfg.ReconcileInterval, func() { _ = e.Reconcile(ctx) })
	})

	e.log.Info().
		Str("symbol", e.cfg.Pairs.Symbol).
		Str("broker", e.broker.Name()).
		Dur("poll", e.cfg.PollInterval).
		Dur("reconcile", e.cfg.ReconcileInterval).
		Msg("engine running")
	return g.Wait()
}

func every(ctx context.Context, d time.Duration, f func()) error {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			f()
		}
	}
}

// Poll fetches one quote and runs it through the candle builder, the freeze
// detector and, unless the market is frozen, the pair state machine.
func (e *Engine) Poll(ctx context.Context) error {
	cctx, cancel := e.callCtx(ctx)
	tick, err := e.broker.GetPrice(cctx, e.cfg.Pairs.Symbol)
	cancel()
	if err != nil {
		e.brokerErr("price", err)
		e.log.Debug().Err(err).Msg("poll price")
		return err
	}

	e.Feed(ctx, tick)
	return nil
}

// Feed handles one quote that did not come from Poll.
func (e *Engine) Feed(ctx context.Context, tick market.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick(ctx, tick)
}

func (e *Engine) onTick(ctx context.Context, tick market.Tick) {
	if !tick.Valid() {
		return
	}
	start := time.Now()
	e.last = tick
	e.candles.Add(tick)
	e.atr = indicators.ATR(e.candles.Series(market.TF5m, e.cfg.ATRPeriod+1), e.cfg.ATRPeriod)

	mid := tick.Mid()
	switch e.freeze.Observe(mid) {
	case market.Frozen:
		e.log.Warn().Float64("price", mid).Int("ticks", e.freeze.Stagnant()).Msg("market frozen")
		e.sink.Emit(ctx, events.Event{Kind: events.MarketFrozen, Price: mid, Time: e.now()})
	case market.Resumed:
		e.log.Info().Float64("price", mid).Msg("market resumed")
		e.sink.Emit(ctx, events.Event{Kind: events.MarketResumed, Price: mid, Time: e.now()})
	}

	if !e.freeze.Frozen() {
		e.pairs.OnTick(ctx, tick)
	}
	e.gauges()
	if e.metrics != nil {
		e.metrics.ObserveTick(start)
	}
}

// Reconcile aligns tracked pairs with the broker's open positions.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.pairs.Reconcile(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("op", "positions").Msg("reconcile skipped")
	}
	e.gauges()
	return err
}

var warmupFrames = []market.Timeframe{market.TF1m, market.TF3m, market.TF5m}

// Warmup seeds the candle buffers from broker history so ATR is available
// before live buckets close. Failures only cost warm-up.
func (e *Engine) Warmup(ctx context.Context) {
	if e.cfg.WarmupCandles <= 0 {
		return
	}
	src, ok := e.broker.(broker.CandleSource)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tf := range warmupFrames {
		cctx, cancel := e.callCtx(ctx)
		cs, err := src.Candles(cctx, e.cfg.Pairs.Symbol, tf, e.cfg.WarmupCandles)
		cancel()
		if err != nil {
			e.brokerErr("candles", err)
			e.log.Warn().Err(err).Str("tf", tf.String()).Msg("candle warm-up failed")
			continue
		}
		n := e.candles.Seed(tf, cs)
		e.log.Info().Str("tf", tf.String()).Int("candles", n).Msg("candles seeded")
	}
	e.atr = indicators.ATR(e.candles.Series(market.TF5m, e.cfg.ATRPeriod+1), e.cfg.ATRPeriod)
	e.gauges()
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Pairs.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Pairs.CallTimeout)
}
