package ports

import (
	"context"

	"ctreader/internal/domain"
)

// PreferencesRepository stores the user's chart state between runs.
type PreferencesRepository interface {
	// LoadPreferences returns the stored preferences.
	// Returns nil, nil when nothing has been stored yet.
	LoadPreferences(ctx context.Context) (*domain.Preferences, error)
	// SaveSelection records the current symbol and timeframe.
	SaveSelection(ctx context.Context, sel domain.Selection) error
	// SaveIndicator records whether an indicator toggle is on.
	SaveIndicator(ctx context.Context, name domain.IndicatorName, enabled bool) error
}
