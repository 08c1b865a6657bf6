package marketdata

import (
	"context"
	"fmt"
	"sync"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// Fetcher retrieves history and ticker snapshots. It never returns an error to its
// caller: failures are swallowed into Result.Err and replaced with synthetic data.
type Fetcher struct {
	client    ports.MarketDataClient
	generator *Generator
	logger    ports.Logger

	mu            sync.Mutex
	lastSnapshots map[string]domain.PriceSnapshot
}

// FetcherConfig holds the collaborators of a Fetcher.
type FetcherConfig struct {
	Client    ports.MarketDataClient // nil runs in demo mode: every call falls back
	Generator *Generator             // defaults to NewGenerator()
	Logger    ports.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Fetcher")
	}
	gen := cfg.Generator
	if gen == nil {
		gen = NewGenerator()
	}
	return &Fetcher{
		client:        cfg.Client,
		generator:     gen,
		logger:        cfg.Logger,
		lastSnapshots: make(map[string]domain.PriceSnapshot),
	}, nil
}

// FetchHistory returns up to limit recent candles for symbol, oldest first, with strictly
// increasing Time. On any failure it returns limit synthetic candles instead.
func (f *Fetcher) FetchHistory(ctx context.Context, symbol, uiInterval string, limit int) Result[[]domain.Candle] {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	wire := MapInterval(uiInterval)

	candles, err := f.fetchHistory(ctx, symbol, wire, limit)
	res := WithFallback(candles, err, func() []domain.Candle {
		return f.generator.History(uiInterval, limit)
	})
	if res.Fallback() {
		f.logger.Warn(ctx, "FetchHistory: falling back to synthetic data", map[string]interface{}{
			"symbol": symbol, "interval": wire, "limit": limit, "error": err,
		})
	}
	return res
}

func (f *Fetcher) fetchHistory(ctx context.Context, symbol, wire string, limit int) ([]domain.Candle, error) {
	if f.client == nil {
		return nil, ports.ErrExchangeUnavailable
	}
	raws, err := f.client.GetKlines(ctx, symbol, wire, limit)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("klines for %s %s: %w", symbol, wire, ports.ErrEmptyResponse)
	}
	candles, err := NormalizeAll(raws)
	if err != nil {
		return nil, err
	}
	return SortCandles(candles), nil
}

// FetchSnapshot returns the 24h ticker for symbol, or a synthetic one anchored on the
// last snapshot seen for that symbol.
func (f *Fetcher) FetchSnapshot(ctx context.Context, symbol string) Result[domain.PriceSnapshot] {
	snap, err := f.fetchSnapshot(ctx, symbol)
	res := WithFallback(snap, err, func() domain.PriceSnapshot {
		return f.generator.Snapshot(symbol, f.lastSnapshot(symbol))
	})
	if res.Fallback() {
		f.logger.Debug(ctx, "FetchSnapshot: falling back to synthetic data", map[string]interface{}{
			"symbol": symbol, "error": err,
		})
	}

	f.mu.Lock()
	f.lastSnapshots[symbol] = res.Value
	f.mu.Unlock()
	return res
}

func (f *Fetcher) fetchSnapshot(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	if f.client == nil {
		return domain.PriceSnapshot{}, ports.ErrExchangeUnavailable
	}
	snap, err := f.client.GetTicker24h(ctx, symbol)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	if snap == nil {
		return domain.PriceSnapshot{}, fmt.Errorf("ticker for %s: %w", symbol, ports.ErrEmptyResponse)
	}
	return *snap, nil
}

func (f *Fetcher) lastSnapshot(symbol string) *domain.PriceSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.lastSnapshots[symbol]; ok {
		return &s
	}
	return nil
}
