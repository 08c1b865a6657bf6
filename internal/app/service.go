package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/indicators"
	"ctreader/internal/marketdata"
	"ctreader/internal/ports"
	"ctreader/internal/scheduler"
	"ctreader/internal/stream"
)

const (
	defaultSnapshotPoll  = 2 * time.Second
	defaultHistoryReload = 30 * time.Second
	maxLiveHistoryFactor = 2 // live appends may grow history to this multiple of the limit
	preferencesOpTimeout = 5 * time.Second
)

// MarketData is what the service needs from the fetcher.
type MarketData interface {
	FetchHistory(ctx context.Context, symbol, uiInterval string, limit int) marketdata.Result[[]domain.Candle]
	FetchSnapshot(ctx context.Context, symbol string) marketdata.Result[domain.PriceSnapshot]
}

// Config holds the tunables of the chart pipeline.
type Config struct {
	InitialSelection      domain.Selection
	HistoryLimit          int
	SMAPeriod             int
	SnapshotPollInterval  time.Duration
	HistoryReloadInterval time.Duration
	ReconnectDelay        time.Duration
	// StreamStartDelay holds back the first stream connect after Start. Zero means none.
	StreamStartDelay time.Duration
}

// Deps are the collaborators of the service. Prefs may be nil.
type Deps struct {
	Market   MarketData
	Streamer ports.KlineStreamer
	View     ports.ChartView
	Prefs    ports.PreferencesRepository
	Logger   ports.Logger
}

// ChartService is the market data pipeline behind one chart: it loads history for the
// current selection, keeps one live stream open for it, polls the 24h ticker and keeps
// indicator overlays in step with the candles.
type ChartService struct {
	cfg     Config
	market  MarketData
	view    ports.ChartView
	prefs   ports.PreferencesRepository
	logger  ports.Logger
	engine  *indicators.Engine
	stream  *stream.Reconciler
	sched   *scheduler.Scheduler
	reloads chan struct{} // capacity one: a queued reload absorbs later requests

	streamMu sync.Mutex // serializes ensureStream

	// State fields
	mu            sync.Mutex // Protects access to state fields below
	selection     domain.Selection
	generation    uint64 // bumped on every selection change
	history       []domain.Candle
	loadedKey     domain.StreamKey // key whose history is on the chart
	snapshot      *domain.PriceSnapshot
	streamAllowed bool
	started       bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewChartService creates a new chart pipeline.
func NewChartService(cfg Config, deps Deps) (*ChartService, error) {
	if deps.Market == nil || deps.Streamer == nil || deps.View == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ChartService")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = marketdata.DefaultHistoryLimit
	}
	if cfg.SnapshotPollInterval <= 0 {
		cfg.SnapshotPollInterval = defaultSnapshotPoll
	}
	if cfg.HistoryReloadInterval <= 0 {
		cfg.HistoryReloadInterval = defaultHistoryReload
	}

	engine, err := indicators.NewEngine(indicators.EngineConfig{
		SMAPeriod: cfg.SMAPeriod,
		View:      deps.View,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indicator engine: %w", err)
	}

	s := &ChartService{
		cfg:       cfg,
		market:    deps.Market,
		view:      deps.View,
		prefs:     deps.Prefs,
		logger:    deps.Logger,
		engine:    engine,
		sched:     scheduler.New(deps.Logger),
		reloads:   make(chan struct{}, 1),
		selection: normalizeSelection(cfg.InitialSelection),
		ctx:       context.Background(),
	}

	s.stream, err = stream.New(stream.Config{
		Streamer:       deps.Streamer,
		Sink:           s,
		Logger:         deps.Logger,
		CurrentKey:     s.currentStreamKey,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream reconciler: %w", err)
	}

	if err := s.sched.Register(&scheduler.Job{
		Name:     "snapshot-poll",
		Interval: cfg.SnapshotPollInterval,
		Handler:  s.pollSnapshot,
	}); err != nil {
		return nil, err
	}
	if err := s.sched.Register(&scheduler.Job{
		Name:     "history-reload",
		Interval: cfg.HistoryReloadInterval,
		Handler: func(ctx context.Context) error {
			s.RequestReload()
			return nil
		},
	}); err != nil {
		return nil, err
	}
	if cfg.StreamStartDelay > 0 {
		if err := s.sched.Register(&scheduler.Job{
			Name:  "stream-start",
			Once:  true,
			Delay: cfg.StreamStartDelay,
			Handler: func(ctx context.Context) error {
				s.allowStream(ctx)
				return nil
			},
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start restores preferences, loads the first history and starts the periodic jobs.
// It returns immediately; the pipeline runs until ctx is cancelled or Stop is called.
func (s *ChartService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("chart service already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info(ctx, "Starting Chart Service...")
	s.restorePreferences(ctx)

	sel := s.Selection()
	s.view.SetSelection(sel)
	s.view.SetStatus(domain.StatusLoading)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.reloadLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		_ = s.pollSnapshot(ctx)
	}()
	s.RequestReload()
	s.sched.Start(ctx)

	if s.cfg.StreamStartDelay <= 0 {
		s.allowStream(ctx)
	}

	s.logger.Info(ctx, "Chart Service started", map[string]interface{}{
		"symbol": sel.Symbol, "interval": sel.Interval,
	})
	return nil
}

// Stop cancels the jobs, waits for them and closes the live stream.
func (s *ChartService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.sched.Stop()
	s.wg.Wait()
	s.stream.Close()
	s.logger.Info(context.Background(), "Chart Service stopped.")
}

// Selection returns the current symbol and timeframe.
func (s *ChartService) Selection() domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Indicators returns the toggle state of every indicator.
func (s *ChartService) Indicators() map[domain.IndicatorName]bool {
	return s.engine.Enabled()
}

// StreamState reports the live subscription state and key.
func (s *ChartService) StreamState() (stream.State, domain.StreamKey) {
	return s.stream.State(), s.stream.Key()
}

// Jobs reports the periodic jobs of the pipeline.
func (s *ChartService) Jobs() []scheduler.JobStatus {
	return s.sched.Jobs()
}

// SelectSymbol switches the chart to symbol, keeping the timeframe.
func (s *ChartService) SelectSymbol(ctx context.Context, symbol string) error {
	sel := s.Selection()
	sel.Symbol = symbol
	return s.Select(ctx, sel)
}

// SelectInterval switches the chart to a UI timeframe, keeping the symbol.
func (s *ChartService) SelectInterval(ctx context.Context, interval string) error {
	sel := s.Selection()
	sel.Interval = interval
	return s.Select(ctx, sel)
}

// Select switches symbol and timeframe at once. Unknown timeframes resolve to the
// default one. Selecting what is already shown does nothing.
func (s *ChartService) Select(ctx context.Context, sel domain.Selection) error {
	sel = normalizeSelection(sel)

	s.mu.Lock()
	if sel == s.selection {
		s.mu.Unlock()
		return nil
	}
	prev := s.selection
	s.selection = sel
	s.generation++
	s.view.SetSelection(sel)
	s.view.SetStatus(domain.StatusLoading)
	s.mu.Unlock()

	s.logger.Info(ctx, "Selection changed", map[string]interface{}{
		"from": prev.Symbol + "/" + prev.Interval, "to": sel.Symbol + "/" + sel.Interval,
	})
	s.savePreference(ctx, func(ctx context.Context) error { return s.prefs.SaveSelection(ctx, sel) })
	s.RequestReload()
	return nil
}

// ToggleIndicator enables or disables an indicator overlay by name.
func (s *ChartService) ToggleIndicator(ctx context.Context, name string, enabled bool) error {
	ind, ok := domain.ParseIndicator(name)
	if !ok {
		return fmt.Errorf("indicator %q: %w", name, ports.ErrInvalidRequest)
	}

	changed := s.engine.IsEnabled(ind) != enabled
	s.mu.Lock()
	err := s.engine.Toggle(ctx, ind, enabled, s.history)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.savePreference(ctx, func(ctx context.Context) error { return s.prefs.SaveIndicator(ctx, ind, enabled) })
	return nil
}

// RequestReload queues a full history reload for whatever is selected when it runs.
// Requests made while one is already queued are absorbed by it.
func (s *ChartService) RequestReload() {
	select {
	case s.reloads <- struct{}{}:
	default:
	}
}

// ApplyLive applies one streamed candle. Updates for anything other than the loaded and
// selected key are dropped.
func (s *ChartService) ApplyLive(key domain.StreamKey, candle domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != s.loadedKey || key != streamKeyFor(s.selection) {
		return
	}

	var res chart.UpsertResult
	s.history, res = chart.UpsertCandle(s.history, candle)
	if res == chart.Dropped {
		return
	}
	if limit := s.cfg.HistoryLimit * maxLiveHistoryFactor; len(s.history) > limit {
		s.history = append([]domain.Candle(nil), s.history[len(s.history)-limit:]...)
		s.view.ReplaceCandles(s.history)
		s.view.ReplaceVolume(marketdata.ProjectVolumes(s.history))
	} else {
		s.view.UpsertBar(candle, marketdata.ProjectVolume(candle))
	}
	s.engine.Refresh(s.ctx, s.history)
}

func (s *ChartService) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reloads:
			s.reload(ctx)
		}
	}
}

// reload fetches history for the selection current at the time it starts and applies
// it only if the selection has not moved on by the time the response arrives.
func (s *ChartService) reload(ctx context.Context) {
	s.mu.Lock()
	sel := s.selection
	gen := s.generation
	s.mu.Unlock()
	key := streamKeyFor(sel)

	res := s.market.FetchHistory(ctx, sel.Symbol, sel.Interval, s.cfg.HistoryLimit)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug(ctx, "Discarding stale history response", map[string]interface{}{
			"stream": key.String(),
		})
		return
	}
	s.history = append([]domain.Candle(nil), res.Value...)
	s.loadedKey = key

	s.view.ReplaceCandles(s.history)
	s.view.ReplaceVolume(marketdata.ProjectVolumes(s.history))
	s.engine.Refresh(ctx, s.history)
	if res.Fallback() {
		s.view.SetStatus(domain.StatusError)
	} else {
		s.view.SetStatus(domain.StatusReady)
	}
	s.mu.Unlock()

	s.logger.Debug(ctx, "History loaded", map[string]interface{}{
		"stream": key.String(), "candles": len(res.Value), "synthetic": res.Fallback(),
	})
	s.ensureStream(ctx)
}

func (s *ChartService) allowStream(ctx context.Context) {
	s.mu.Lock()
	s.streamAllowed = true
	s.mu.Unlock()
	s.ensureStream(ctx)
}

// ensureStream opens the live stream for the loaded key unless it is already the
// subscription's key. An existing subscription waiting to reconnect is left alone.
func (s *ChartService) ensureStream(ctx context.Context) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	s.mu.Lock()
	allowed := s.streamAllowed
	key := s.loadedKey
	current := key == streamKeyFor(s.selection)
	s.mu.Unlock()

	if !allowed || !current || key.IsZero() || ctx.Err() != nil {
		return
	}
	if s.stream.Key() == key {
		return
	}
	if err := s.stream.Open(ctx, key); err != nil {
		s.logger.Warn(ctx, "Live stream unavailable, will retry", map[string]interface{}{
			"stream": key.String(), "error": err.Error(),
		})
	}
}

func (s *ChartService) pollSnapshot(ctx context.Context) error {
	symbol := s.Selection().Symbol
	res := s.market.FetchSnapshot(ctx, symbol)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection.Symbol != symbol {
		return nil
	}
	snap := res.Value
	s.snapshot = &snap
	s.view.SetSnapshot(snap)
	return nil
}

// LastSnapshot returns the most recent ticker for the selected symbol, if any.
func (s *ChartService) LastSnapshot() (domain.PriceSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil || s.snapshot.Symbol != s.selection.Symbol {
		return domain.PriceSnapshot{}, false
	}
	return *s.snapshot, true
}

func (s *ChartService) currentStreamKey() domain.StreamKey {
	return streamKeyFor(s.Selection())
}

func (s *ChartService) restorePreferences(ctx context.Context) {
	if s.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, preferencesOpTimeout)
	defer cancel()

	p, err := s.prefs.LoadPreferences(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Could not load preferences, using defaults", map[string]interface{}{"error": err.Error()})
		return
	}
	if p == nil {
		return
	}

	s.mu.Lock()
	if p.Selection.Symbol != "" {
		s.selection = normalizeSelection(p.Selection)
	}
	s.mu.Unlock()

	for _, name := range domain.Indicators {
		if p.Indicators[name] {
			_ = s.engine.Toggle(ctx, name, true, nil)
		}
	}
	s.logger.Info(ctx, "Preferences restored", map[string]interface{}{
		"symbol": s.Selection().Symbol, "interval": s.Selection().Interval,
	})
}

func (s *ChartService) savePreference(ctx context.Context, save func(ctx context.Context) error) {
	if s.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, preferencesOpTimeout)
	defer cancel()
	if err := save(ctx); err != nil {
		s.logger.Warn(ctx, "Could not save preference", map[string]interface{}{"error": err.Error()})
	}
}

func normalizeSelection(sel domain.Selection) domain.Selection {
	sel.Symbol = domain.NormalizeSymbol(sel.Symbol)
	sel.Interval = strings.TrimSpace(sel.Interval)
	if !marketdata.IsKnownInterval(sel.Interval) {
		sel.Interval = domain.DefaultInterval
	}
	return sel
}

func streamKeyFor(sel domain.Selection) domain.StreamKey {
	return domain.StreamKey{Symbol: sel.Symbol, Interval: marketdata.MapInterval(sel.Interval)}
}
