package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/market"
)

func TestParse(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	tests := []struct {
		name string
		in   Payload
		want Command
	}{
		{"trend buy entry", Payload{Signal: "T BUY ENTRY", SignalID: "abc"}, EntryCmd{Type: Trend, Side: market.Buy, SignalID: "abc"}},
		{"reversal sell entry", Payload{Signal: "R SELL ENTRY"}, EntryCmd{Type: Reversal, Side: market.Sell}},
		{"lower case and spaces", Payload{Signal: "  t   sell  entry "}, EntryCmd{Type: Trend, Side: market.Sell}},
		{"close", Payload{Signal: "BUY CLOSE", SignalID: " x1 "}, CloseCmd{Side: market.Buy, SignalID: "x1"}},
		{"zone on", Payload{Signal: "3M ZONE T BUY", Approval: &yes}, ApprovalUpdate{Timeframe: TF3M, Type: Trend, Side: market.Buy, Approval: true}},
		{"zone off", Payload{Signal: "5M ZONE R SELL", Approval: &no}, ApprovalUpdate{Timeframe: TF5M, Type: Reversal, Side: market.Sell}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	yes := true
	bad := []Payload{
		{},
		{Signal: "   "},
		{Signal: "X BUY ENTRY"},
		{Signal: "T HOLD ENTRY"},
		{Signal: "T BUY EXIT"},
		{Signal: "CLOSE BUY"},
		{Signal: "1M ZONE T BUY", Approval: &yes},
		{Signal: "3M ZONE T BUY"},
		{Signal: "3M ZONE T BUY EXTRA", Approval: &yes},
	}
	for _, p := range bad {
		_, err := Parse(p)
		assert.ErrorIs(t, err, ErrInvalidFormat, "payload %q", p.Signal)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TBuy, CategoryOf(Trend, market.Buy))
	assert.Equal(t, RSell, EntryCmd{Type: Reversal, Side: market.Sell}.Category())
	assert.Len(t, Categories, 4)
}
