package indicators

import (
	"math"

	"github.com/rustyeddy/goldpair/market"
)

// DefaultATRPeriod is the number of true ranges averaged by ATR.
const DefaultATRPeriod = 14

// ATR returns the average true range over the last period+1 candles: the
// simple mean of the period true ranges they define. It returns 0 when
// there are not enough candles, which callers treat as low volatility.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	window := candles[len(candles)-(period+1):]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += TrueRange(window[i], window[i-1])
	}
	return sum / float64(period)
}

// TrueRange calculates the True Range for a candle given the previous candle.
func TrueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}
