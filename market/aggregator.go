package market

// DefaultCandleCapacity is the number of closed candles kept per timeframe.
const DefaultCandleCapacity = 400

type series struct {
	tf      Timeframe
	current Candle
	open    bool
	closed  *candleRing
}

// CandleAggregator turns mid-price ticks into closed 1m/3m/5m candles
// bucketed by wall clock. A bucket closes when the first tick of a later
// bucket arrives. Not safe for concurrent use.
type CandleAggregator struct {
	series []*series
}

func NewCandleAggregator(capacity int) *CandleAggregator {
	if capacity <= 0 {
		capacity = DefaultCandleCapacity
	}
	a := &CandleAggregator{}
	for _, tf := range Timeframes {
		a.series = append(a.series, &series{tf: tf, closed: newCandleRing(capacity)})
	}
	return a
}

// Add folds one tick into every timeframe. Ticks without a usable quote or
// older than the current bucket are ignored so bucket starts stay strictly
// increasing.
func (a *CandleAggregator) Add(t Tick) {
	if !t.Valid() {
		return
	}
	mid := t.Mid()
	ts := t.Time.Unix()

	for _, s := range a.series {
		start := s.tf.BucketStart(ts)
		switch {
		case !s.open:
			s.current = newCandle(start, mid)
			s.open = true
		case start == s.current.Start:
			s.current.update(mid)
		case start > s.current.Start:
			s.closed.push(s.current)
			s.current = newCandle(start, mid)
		}
	}
}

func (a *CandleAggregator) find(tf Timeframe) *series {
	for _, s := range a.series {
		if s.tf == tf {
			return s
		}
	}
	return nil
}

// LastClosed returns the most recent closed candle for tf.
func (a *CandleAggregator) LastClosed(tf Timeframe) (Candle, bool) {
	s := a.find(tf)
	if s == nil {
		return Candle{}, false
	}
	return s.closed.last()
}

// Series returns up to n most recent closed candles for tf, oldest first.
func (a *CandleAggregator) Series(tf Timeframe, n int) []Candle {
	s := a.find(tf)
	if s == nil {
		return nil
	}
	return s.closed.tail(n)
}

// Current returns the in-progress candle for tf.
func (a *CandleAggregator) Current(tf Timeframe) (Candle, bool) {
	s := a.find(tf)
	if s == nil || !s.open {
		return Candle{}, false
	}
	return s.current, true
}

// Len returns the number of closed candles held for tf.
func (a *CandleAggregator) Len(tf Timeframe) int {
	s := a.find(tf)
	if s == nil {
		return 0
	}
	return s.closed.len()
}

// Seed appends historical closed candles for tf, oldest first, so that
// indicators have data before live ticks fill the buckets. Candles that do
// not strictly follow the newest held candle, or that overlap the open
// bucket, are skipped. It returns how many were kept.
func (a *CandleAggregator) Seed(tf Timeframe, candles []Candle) int {
	s := a.find(tf)
	if s == nil {
		return 0
	}
	kept := 0
	for _, c := range candles {
		if last, ok := s.closed.last(); ok && c.Start <= last.Start {
			continue
		}
		if s.open && c.Start >= s.current.Start {
			continue
		}
		s.closed.push(c)
		kept++
	}
	return kept
}
