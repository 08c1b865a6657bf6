package indicators

import (
	"context"
	"fmt"
	"sync"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// Engine tracks which overlays are enabled and republishes them whenever the history
// changes. It keeps no state derived from candles between calls.
type Engine struct {
	view   ports.ChartView
	logger ports.Logger

	registry map[domain.IndicatorName]Indicator

	mu      sync.Mutex
	enabled map[domain.IndicatorName]bool
}

// EngineConfig holds configuration for the indicator engine.
type EngineConfig struct {
	SMAPeriod int
	View      ports.ChartView
	Logger    ports.Logger
}

// NewEngine creates an Engine with every known toggle disabled.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.View == nil {
		return nil, fmt.Errorf("view is required for indicator engine")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for indicator engine")
	}
	registry := map[domain.IndicatorName]Indicator{
		domain.IndicatorSMA:       NewMovingAverage(IndicatorConfig{Period: cfg.SMAPeriod}),
		domain.IndicatorRSI:       NewUnimplemented(domain.IndicatorRSI),
		domain.IndicatorMACD:      NewUnimplemented(domain.IndicatorMACD),
		domain.IndicatorBollinger: NewUnimplemented(domain.IndicatorBollinger),
	}
	return &Engine{
		view:     cfg.View,
		logger:   cfg.Logger,
		registry: registry,
		enabled:  make(map[domain.IndicatorName]bool),
	}, nil
}

// Toggle enables or disables an indicator. Enabling publishes the overlay back-filled
// from candles; disabling removes it from the view. Unknown names are rejected.
func (e *Engine) Toggle(ctx context.Context, name domain.IndicatorName, enabled bool, candles []domain.Candle) error {
	ind, ok := e.registry[name]
	if !ok {
		return fmt.Errorf("indicator %q: %w", name, ports.ErrInvalidRequest)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !enabled {
		delete(e.enabled, name)
		e.view.RemoveOverlay(name)
		e.logger.Debug(ctx, "Indicator disabled", map[string]interface{}{"indicator": string(name)})
		return nil
	}

	e.enabled[name] = true
	e.publish(ctx, ind, candles)
	if !ind.Implemented() {
		e.logger.Info(ctx, "Indicator enabled but not implemented", map[string]interface{}{"indicator": string(name)})
	}
	return nil
}

// Refresh recomputes every enabled overlay from candles.
func (e *Engine) Refresh(ctx context.Context, candles []domain.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range domain.Indicators {
		if e.enabled[name] {
			e.publish(ctx, e.registry[name], candles)
		}
	}
}

// Enabled returns the toggle state of every known indicator.
func (e *Engine) Enabled() map[domain.IndicatorName]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[domain.IndicatorName]bool, len(e.registry))
	for _, name := range domain.Indicators {
		out[name] = e.enabled[name]
	}
	return out
}

// IsEnabled reports whether name is currently enabled.
func (e *Engine) IsEnabled(name domain.IndicatorName) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled[name]
}

// publish pushes one overlay to the view. Callers hold mu.
func (e *Engine) publish(ctx context.Context, ind Indicator, candles []domain.Candle) {
	overlay := domain.Overlay{Name: ind.Name(), Computed: ind.Implemented()}
	if ind.Implemented() {
		points, err := ind.Series(ctx, candles)
		if err != nil {
			e.logger.Error(ctx, err, "Indicator computation failed", map[string]interface{}{"indicator": string(ind.Name())})
			return
		}
		overlay.Points = points
	}
	e.view.SetOverlay(overlay)
}
