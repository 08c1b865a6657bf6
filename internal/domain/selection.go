package domain

import "strings"

const (
	// DefaultSymbol is used when no symbol has been selected.
	DefaultSymbol = "BTCUSDT"
	// DefaultInterval is the UI timeframe selected on start-up.
	DefaultInterval = "15m"
)

// Selection is the symbol and UI timeframe currently shown on the chart.
type Selection struct {
	Symbol   string
	Interval string // UI timeframe token, see marketdata.MapInterval
}

// NormalizeSymbol upper-cases and trims a ticker, falling back to DefaultSymbol when empty.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return DefaultSymbol
	}
	return s
}

// StreamKey identifies a live kline subscription by symbol and wire interval.
type StreamKey struct {
	Symbol   string
	Interval string // Wire-level interval token
}

// String renders the exchange stream name, e.g. "btcusdt@kline_15m".
func (k StreamKey) String() string {
	if k.Symbol == "" {
		return ""
	}
	return strings.ToLower(k.Symbol) + "@kline_" + k.Interval
}

// IsZero reports whether the key is unset.
func (k StreamKey) IsZero() bool {
	return k.Symbol == "" && k.Interval == ""
}

// Preferences is the user state restored on start-up.
type Preferences struct {
	Selection  Selection
	Indicators map[IndicatorName]bool
}
