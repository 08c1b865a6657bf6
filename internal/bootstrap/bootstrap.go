// Package bootstrap wires the adapters and the chart pipeline from a Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ctreader/config"
	"ctreader/internal/adapters/binanceclient"
	"ctreader/internal/adapters/binancews"
	"ctreader/internal/adapters/logger"
	"ctreader/internal/adapters/sqlite"
	"ctreader/internal/app"
	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/marketdata"
	"ctreader/internal/ports"
)

// Runtime is a fully wired pipeline and the chart model it feeds.
type Runtime struct {
	Service *app.ChartService
	Store   *chart.Store

	closers []func() error
}

// NewLogger opens cfg.LogFile, or falls back to fallback when no file is configured.
// The returned close function is always non-nil.
func NewLogger(cfg *config.Config, fallback io.Writer) (*logger.StdLogger, func() error, error) {
	if cfg.LogFile == "" {
		return logger.NewLogger(fallback, cfg.LogLevel), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file '%s': %w", cfg.LogFile, err)
	}
	return logger.NewLogger(f, cfg.LogLevel), f.Close, nil
}

// NewFetcher builds the REST client and the fetcher on top of it.
func NewFetcher(cfg *config.Config, log ports.Logger) (*marketdata.Fetcher, error) {
	client, err := binanceclient.New(binanceclient.Config{
		BaseURL:        cfg.RESTBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	return marketdata.NewFetcher(marketdata.FetcherConfig{Client: client, Logger: log})
}

// Build wires every component. The pipeline is not started.
func Build(cfg *config.Config, log ports.Logger) (*Runtime, error) {
	ctx := context.Background()
	rt := &Runtime{Store: chart.NewStore()}

	var prefs ports.PreferencesRepository
	if cfg.PrefsDBPath != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.PrefsDBPath, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize preferences store: %w", err)
		}
		rt.closers = append(rt.closers, repo.Close)
		prefs = repo
		log.Info(ctx, "Preferences store initialized", map[string]interface{}{"path": cfg.PrefsDBPath})
	} else {
		log.Info(ctx, "Preferences persistence disabled")
	}

	fetcher, err := NewFetcher(cfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	streamer, err := binancews.New(binancews.Config{BaseURL: cfg.WSBaseURL, Logger: log})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize Binance stream: %w", err)
	}

	rt.Service, err = app.NewChartService(app.Config{
		InitialSelection:      domain.Selection{Symbol: cfg.Symbol, Interval: cfg.Interval},
		HistoryLimit:          cfg.HistoryLimit,
		SMAPeriod:             cfg.SMAPeriod,
		SnapshotPollInterval:  cfg.SnapshotPollInterval,
		HistoryReloadInterval: cfg.HistoryReloadInterval,
		ReconnectDelay:        cfg.ReconnectDelay,
		StreamStartDelay:      cfg.StreamStartDelay,
	}, app.Deps{
		Market:   fetcher,
		Streamer: streamer,
		View:     rt.Store,
		Prefs:    prefs,
		Logger:   log,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize chart service: %w", err)
	}
	return rt, nil
}

// Close releases storage. Stop the service first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}
