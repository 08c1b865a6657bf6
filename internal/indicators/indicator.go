package indicators

import (
	"context"

	"ctreader/internal/domain"
)

// Indicator represents a technical indicator drawn as an overlay over the candle history
type Indicator interface {
	// Series computes the overlay points for the whole history, oldest first
	Series(ctx context.Context, candles []domain.Candle) ([]domain.LinePoint, error)

	// RequiredDataPoints returns the number of candles needed for the first point
	RequiredDataPoints() int

	// Name returns the toggle name of the indicator
	Name() domain.IndicatorName

	// Implemented reports whether Series produces values at all
	Implemented() bool
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of candles needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
