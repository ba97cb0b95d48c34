package market

// Instrument describes how a symbol's prices and units are rounded on the
// wire.
type Instrument struct {
	Symbol        string
	PriceDecimals int
	UnitsDecimals int
}

// DefaultSymbol is spot gold quoted in US dollars.
const DefaultSymbol = "XAU_USD"

// Instruments lists the metals the engine knows how to quote. Unknown
// symbols fall back to gold's precision.
var Instruments = map[string]Instrument{
	"XAU_USD": {Symbol: "XAU_USD", PriceDecimals: 3, UnitsDecimals: 0},
	"XAG_USD": {Symbol: "XAG_USD", PriceDecimals: 5, UnitsDecimals: 0},
}

// Precision returns the number of price decimals for symbol.
func Precision(symbol string) int {
	if m, ok := Instruments[symbol]; ok {
		return m.PriceDecimals
	}
	return Instruments[DefaultSymbol].PriceDecimals
}
