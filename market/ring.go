package market

// candleRing is a fixed-capacity FIFO of closed candles. Once full, the
// oldest candle is overwritten.
type candleRing struct {
	buf  []Candle
	head int // index of the oldest element
	n    int
}

func newCandleRing(capacity int) *candleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &candleRing{buf: make([]Candle, capacity)}
}

func (r *candleRing) push(c Candle) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = c
		r.n++
		return
	}
	r.buf[r.head] = c
	r.head = (r.head + 1) % len(r.buf)
}

func (r *candleRing) len() int { return r.n }

// at returns the i-th oldest candle.
func (r *candleRing) at(i int) Candle {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *candleRing) last() (Candle, bool) {
	if r.n == 0 {
		return Candle{}, false
	}
	return r.at(r.n - 1), true
}

// tail copies the newest n candles, oldest first.
func (r *candleRing) tail(n int) []Candle {
	if n > r.n {
		n = r.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]Candle, n)
	off := r.n - n
	for i := 0; i < n; i++ {
		out[i] = r.at(off + i)
	}
	return out
}
