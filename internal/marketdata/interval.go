package marketdata

import (
	"strings"
	"time"
)

// DefaultWireInterval is what unrecognized UI timeframes resolve to.
const DefaultWireInterval = "15m"

// UIIntervals lists the timeframe buttons offered by the chart, shortest first.
var UIIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d", "1w"}

var intervalMap = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"1h":  "1h",
	"4h":  "4h",
	"1d":  "1d",
	"1w":  "1w",
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// MapInterval translates a UI timeframe token into the exchange's interval token.
// It is total: anything it does not recognize maps to DefaultWireInterval.
// Tokens are case-sensitive because the exchange uses "1M" for one month.
func MapInterval(uiToken string) string {
	if wire, ok := intervalMap[strings.TrimSpace(uiToken)]; ok {
		return wire
	}
	return DefaultWireInterval
}

// IsKnownInterval reports whether uiToken is one of UIIntervals.
func IsKnownInterval(uiToken string) bool {
	_, ok := intervalMap[strings.TrimSpace(uiToken)]
	return ok
}

// IntervalDuration returns the bar length for a UI timeframe after mapping.
func IntervalDuration(uiToken string) time.Duration {
	return intervalDurations[MapInterval(uiToken)]
}
