// Package indicators provides volatility indicators computed over closed
// candles from the market package.
package indicators
