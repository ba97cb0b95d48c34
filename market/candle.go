package market

import "time"

// Timeframe is a candle width in seconds.
type Timeframe int64

const (
	TF1m Timeframe = 60
	TF3m Timeframe = 180
	TF5m Timeframe = 300
)

// Timeframes lists every timeframe the aggregator builds.
var Timeframes = []Timeframe{TF1m, TF3m, TF5m}

// BucketStart floors a unix second to the start of its bucket.
func (tf Timeframe) BucketStart(ts int64) int64 {
	return ts / int64(tf) * int64(tf)
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

func (tf Timeframe) String() string {
	switch tf {
	case TF1m:
		return "1M"
	case TF3m:
		return "3M"
	case TF5m:
		return "5M"
	}
	return time.Duration(tf * Timeframe(time.Second)).String()
}

// Candle represents OHLC (Open, High, Low, Close) candlestick data built
// from mid prices. Start is the bucket start in unix seconds.
type Candle struct {
	Start int64
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ticks int
}

func newCandle(start int64, mid float64) Candle {
	return Candle{Start: start, Open: mid, High: mid, Low: mid, Close: mid, Ticks: 1}
}

func (c *Candle) update(mid float64) {
	if mid > c.High {
		c.High = mid
	}
	if mid < c.Low {
		c.Low = mid
	}
	c.Close = mid
	c.Ticks++
}

func (c Candle) Time() time.Time {
	return time.Unix(c.Start, 0).UTC()
}

// Resample folds consecutive candles into wider tf buckets. Input must be
// oldest first; the output is too.
func Resample(in []Candle, tf Timeframe) []Candle {
	var out []Candle
	for _, c := range in {
		start := tf.BucketStart(c.Start)
		n := len(out)
		if n == 0 || out[n-1].Start != start {
			c.Start = start
			out = append(out, c)
			continue
		}
		last := &out[n-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Ticks += c.Ticks
	}
	return out
}
