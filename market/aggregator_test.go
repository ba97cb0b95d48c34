package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var aggBase = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

func tickAt(sec int, mid float64) Tick {
	return Tick{
		Instrument: DefaultSymbol,
		Time:       aggBase.Add(time.Duration(sec) * time.Second),
		Bid:        mid - 0.1,
		Ask:        mid + 0.1,
	}
}

func TestAggregatorSingleBucketOHLC(t *testing.T) {
	t.Parallel()

	a := NewCandleAggregator(10)
	mids := []float64{2000, 2003, 1998, 2001.5}
	for i, m := range mids {
		a.Add(tickAt(i*10, m))
	}

	// Nothing closed yet, the bucket is still open.
	_, ok := a.LastClosed(TF1m)
	assert.False(t, ok)

	cur, ok := a.Current(TF1m)
	require.True(t, ok)
	assert.InDelta(t, 2000.0, cur.Open, 1e-9)
	assert.InDelta(t, 2003.0, cur.High, 1e-9)
	assert.InDelta(t, 1998.0, cur.Low, 1e-9)
	assert.InDelta(t, 2001.5, cur.Close, 1e-9)
	assert.Equal(t, 4, cur.Ticks)

	// First tick of the next minute closes the bucket.
	a.Add(tickAt(61, 2002))
	last, ok := a.LastClosed(TF1m)
	require.True(t, ok)
	assert.Equal(t, aggBase.Unix(), last.Start)
	assert.InDelta(t, 2003.0, last.High, 1e-9)
	assert.InDelta(t, 1998.0, last.Low, 1e-9)
	assert.InDelta(t, 2001.5, last.Close, 1e-9)

	// 3m and 5m buckets are still open.
	assert.Equal(t, 0, a.Len(TF3m))
	assert.Equal(t, 0, a.Len(TF5m))
}

func TestAggregatorTimeframesAndOrdering(t *testing.T) {
	t.Parallel()

	a := NewCandleAggregator(100)
	// one tick every 30s for 31 minutes
	for i := 0; i <= 62; i++ {
		a.Add(tickAt(i*30, 2000+float64(i)))
	}

	assert.Equal(t, 31, a.Len(TF1m))
	assert.Equal(t, 10, a.Len(TF3m))
	assert.Equal(t, 6, a.Len(TF5m))

	for _, tf := range Timeframes {
		s := a.Series(tf, 1000)
		for i := 1; i < len(s); i++ {
			assert.Greater(t, s[i].Start, s[i-1].Start, "tf %s", tf)
			assert.Equal(t, int64(tf), s[i].Start-s[i-1].Start)
		}
	}

	five := a.Series(TF5m, 2)
	require.Len(t, five, 2)
	// bucket 4 covers ticks 40..49, bucket 5 covers 50..59
	assert.InDelta(t, 2040.0, five[0].Open, 1e-9)
	assert.InDelta(t, 2049.0, five[0].Close, 1e-9)
	assert.InDelta(t, 2050.0, five[1].Open, 1e-9)
}

func TestAggregatorIgnoresOlderAndInvalidTicks(t *testing.T) {
	t.Parallel()

	a := NewCandleAggregator(10)
	a.Add(tickAt(120, 2000))
	a.Add(tickAt(10, 5000)) // earlier bucket
	a.Add(Tick{Time: aggBase.Add(125 * time.Second)})

	cur, ok := a.Current(TF1m)
	require.True(t, ok)
	assert.InDelta(t, 2000.0, cur.High, 1e-9)
	assert.Equal(t, 1, cur.Ticks)
}

func TestAggregatorRingCapacity(t *testing.T) {
	t.Parallel()

	a := NewCandleAggregator(5)
	for i := 0; i < 20; i++ {
		a.Add(tickAt(i*60, float64(i)+1))
	}

	assert.Equal(t, 5, a.Len(TF1m))
	s := a.Series(TF1m, 10)
	require.Len(t, s, 5)
	// closed candles are minutes 14..18; minute 19 is still open
	assert.InDelta(t, 15.0, s[0].Open, 1e-9)
	assert.InDelta(t, 19.0, s[4].Open, 1e-9)

	last, ok := a.LastClosed(TF1m)
	require.True(t, ok)
	assert.Equal(t, s[4], last)
}

func TestAggregatorSeed(t *testing.T) {
	t.Parallel()

	a := NewCandleAggregator(10)
	base := aggBase.Unix()
	hist := []Candle{
		{Start: base - 180, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Start: base - 120, Open: 1.5, High: 2, Low: 1, Close: 1.8},
		{Start: base - 120, Open: 9, High: 9, Low: 9, Close: 9},
		{Start: base - 60, Open: 1.8, High: 2.2, Low: 1.7, Close: 2},
	}
	assert.Equal(t, 3, a.Seed(TF1m, hist))
	assert.Equal(t, 3, a.Len(TF1m))

	a.Add(tickAt(0, 2000))
	a.Add(tickAt(60, 2001))
	last, ok := a.LastClosed(TF1m)
	require.True(t, ok)
	assert.Equal(t, base, last.Start)
	assert.Equal(t, 4, a.Len(TF1m))

	// Nothing may land at or after the open bucket.
	assert.Equal(t, 0, a.Seed(TF1m, []Candle{{Start: base + 60}}))
}
