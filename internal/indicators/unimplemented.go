package indicators

import (
	"context"

	"ctreader/internal/domain"
)

// Unimplemented is a toggle the chart offers without a computation behind it (RSI, MACD,
// Bollinger bands). Enabling one publishes an empty overlay marked as not computed.
type Unimplemented struct {
	name domain.IndicatorName
}

// NewUnimplemented creates a placeholder indicator.
func NewUnimplemented(name domain.IndicatorName) *Unimplemented {
	return &Unimplemented{name: name}
}

func (u *Unimplemented) Name() domain.IndicatorName { return u.name }
func (u *Unimplemented) RequiredDataPoints() int    { return 0 }
func (u *Unimplemented) Implemented() bool          { return false }

// Series returns no points.
func (u *Unimplemented) Series(ctx context.Context, candles []domain.Candle) ([]domain.LinePoint, error) {
	return nil, nil
}
