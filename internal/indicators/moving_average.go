package indicators

import (
	"context"

	"ctreader/internal/domain"
)

// DefaultSMAPeriod is the window used by the chart's SMA overlay.
const DefaultSMAPeriod = 20

// MovingAverage implements the simple moving average overlay
type MovingAverage struct {
	BaseIndicator
}

// NewMovingAverage creates a new SMA indicator instance. A non-positive period means DefaultSMAPeriod.
func NewMovingAverage(config IndicatorConfig) *MovingAverage {
	if config.Period <= 0 {
		config.Period = DefaultSMAPeriod
	}
	return &MovingAverage{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() domain.IndicatorName {
	return domain.IndicatorSMA
}

// Implemented is always true for SMA
func (m *MovingAverage) Implemented() bool {
	return true
}

// Series computes the SMA over the full history
func (m *MovingAverage) Series(ctx context.Context, candles []domain.Candle) ([]domain.LinePoint, error) {
	if len(candles) < m.RequiredDataPoints() {
		return []domain.LinePoint{}, nil
	}
	return ComputeSMA(candles, m.Config.Period), nil
}

// ComputeSMA averages Close over every window of period candles. The first period-1
// candles produce no point, so the result has max(0, len(history)-period+1) points, each
// stamped with the Time of the window's last candle. Every window is summed from scratch.
func ComputeSMA(history []domain.Candle, period int) []domain.LinePoint {
	if period <= 0 || len(history) < period {
		return []domain.LinePoint{}
	}

	out := make([]domain.LinePoint, 0, len(history)-period+1)
	for end := period; end <= len(history); end++ {
		total := 0.0
		for i := end - period; i < end; i++ {
			total += history[i].Close
		}
		out = append(out, domain.LinePoint{
			Time:  history[end-1].Time,
			Value: total / float64(period),
		})
	}
	return out
}
