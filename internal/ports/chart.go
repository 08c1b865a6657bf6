package ports

import "ctreader/internal/domain"

// ChartView is the outbound side of the view adapter. The pipeline is the only writer.
type ChartView interface {
	// ReplaceCandles swaps the whole candlestick series.
	ReplaceCandles(candles []domain.Candle)
	// ReplaceVolume swaps the whole volume histogram.
	ReplaceVolume(bars []domain.VolumeBar)
	// UpsertBar updates or appends the last candle and its volume bar together,
	// so no frame shows one series ahead of the other.
	UpsertBar(candle domain.Candle, bar domain.VolumeBar)
	// SetOverlay creates or refreshes an indicator overlay.
	SetOverlay(overlay domain.Overlay)
	// RemoveOverlay drops an indicator overlay entirely.
	RemoveOverlay(name domain.IndicatorName)
	// SetStatus shows a one-line status text.
	SetStatus(text string)
	// SetSnapshot shows the latest 24h ticker.
	SetSnapshot(snapshot domain.PriceSnapshot)
	// SetSelection reflects the current symbol and timeframe.
	SetSelection(sel domain.Selection)
}
