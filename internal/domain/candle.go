package domain

// Candle represents a single OHLCV bar as rendered on the chart.
type Candle struct {
	Time   int64   // Bar open time, unix seconds
	Open   float64 // Opening price
	High   float64 // Highest price
	Low    float64 // Lowest price
	Close  float64 // Closing price
	Volume float64 // Base asset volume
}

// IsBullish reports whether the bar closed at or above its open.
func (c Candle) IsBullish() bool {
	return c.Close >= c.Open
}

// VolumeBar is one bar of the volume histogram derived from a Candle.
type VolumeBar struct {
	Time  int64
	Value float64
	Color ColorClass
}

// RawKline is a kline as it arrives on the wire, before normalization.
// Decimal fields are kept as the exchange's string encoding.
type RawKline struct {
	OpenTimeMs int64
	Open       string
	High       string
	Low        string
	Close      string
	Volume     string
}

// PriceSnapshot is the 24h ticker view of a symbol. It is replaced wholesale on every poll.
type PriceSnapshot struct {
	Symbol        string
	Open          float64
	High          float64
	Low           float64
	Close         float64 // Last traded price
	ChangePercent float64 // Signed 24h change in percent
	Volume        float64
	Synthetic     bool // Generated locally because the exchange could not be reached
}

// LinePoint is one point of an indicator overlay.
type LinePoint struct {
	Time  int64
	Value float64
}

// Overlay is the rendered state of an enabled indicator.
type Overlay struct {
	Name     IndicatorName
	Points   []LinePoint
	Computed bool // false for indicators that are acknowledged but not implemented
}
