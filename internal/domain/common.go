package domain

import "strings"

// ColorClass tags a volume bar with the direction of its source candle.
type ColorClass string

const (
	Bullish ColorClass = "bullish"
	Bearish ColorClass = "bearish"
)

// IndicatorName identifies a chart indicator toggle.
type IndicatorName string

const (
	IndicatorSMA       IndicatorName = "sma"
	IndicatorRSI       IndicatorName = "rsi"
	IndicatorMACD      IndicatorName = "macd"
	IndicatorBollinger IndicatorName = "bb"
)

// Indicators lists every toggle the chart knows about, in display order.
var Indicators = []IndicatorName{IndicatorSMA, IndicatorRSI, IndicatorMACD, IndicatorBollinger}

// ParseIndicator resolves a toggle name case-insensitively.
func ParseIndicator(name string) (IndicatorName, bool) {
	n := IndicatorName(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Indicators {
		if n == known {
			return n, true
		}
	}
	return "", false
}

// Status texts pushed to the view.
const (
	StatusLoading = "Loading OHLC data..."
	StatusReady   = "Ready"
	StatusError   = "Error loading data"
)
