package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/marketdata"
	"ctreader/internal/ports"
	"ctreader/internal/stream"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func basePrice(symbol string) float64 {
	if symbol == "ETHUSDT" {
		return 2000
	}
	return 40000
}

func makeHistory(symbol string, n int) []domain.Candle {
	p := basePrice(symbol)
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{Time: 1700000000 + int64(i*60), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

type fakeMarket struct {
	mu         sync.Mutex
	calls      []domain.Selection
	gate       chan struct{} // when set, history requests wait for it to close
	snapGate   chan struct{}
	historyLen int
}

func (m *fakeMarket) FetchHistory(ctx context.Context, symbol, uiInterval string, limit int) marketdata.Result[[]domain.Candle] {
	m.mu.Lock()
	m.calls = append(m.calls, domain.Selection{Symbol: symbol, Interval: uiInterval})
	gate := m.gate
	n := m.historyLen
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if n == 0 {
		n = 30
	}
	return marketdata.Result[[]domain.Candle]{Value: makeHistory(symbol, n)}
}

func (m *fakeMarket) FetchSnapshot(ctx context.Context, symbol string) marketdata.Result[domain.PriceSnapshot] {
	m.mu.Lock()
	gate := m.snapGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return marketdata.Result[domain.PriceSnapshot]{Value: domain.PriceSnapshot{Symbol: symbol, Close: basePrice(symbol)}}
}

func (m *fakeMarket) historyCalls() []domain.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Selection(nil), m.calls...)
}

type streamCall struct {
	key     domain.StreamKey
	handler func([]byte)
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func (c *streamCall) drop() { c.once.Do(func() { close(c.done) }) }

type fakeStreamer struct {
	mu    sync.Mutex
	calls []*streamCall
}

func (f *fakeStreamer) StreamKlines(ctx context.Context, key domain.StreamKey, handler func([]byte), errHandler func(error)) (<-chan struct{}, chan<- struct{}, error) {
	call := &streamCall{key: key, handler: handler, done: make(chan struct{}), stop: make(chan struct{})}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	go func() {
		<-call.stop
		call.drop()
	}()
	return call.done, call.stop, nil
}

func (f *fakeStreamer) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.key.String()
	}
	return out
}

func (f *fakeStreamer) last() *streamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// recordingView is a chart.Store that also remembers every full replacement and status.
type recordingView struct {
	*chart.Store

	mu       sync.Mutex
	replaced [][]domain.Candle
	statuses []string
}

func newRecordingView() *recordingView {
	return &recordingView{Store: chart.NewStore()}
}

func (v *recordingView) ReplaceCandles(candles []domain.Candle) {
	v.mu.Lock()
	v.replaced = append(v.replaced, append([]domain.Candle(nil), candles...))
	v.mu.Unlock()
	v.Store.ReplaceCandles(candles)
}

func (v *recordingView) SetStatus(text string) {
	v.mu.Lock()
	v.statuses = append(v.statuses, text)
	v.mu.Unlock()
	v.Store.SetStatus(text)
}

func (v *recordingView) replacements() [][]domain.Candle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][]domain.Candle(nil), v.replaced...)
}

type mockPrefs struct {
	mu         sync.Mutex
	prefs      *domain.Preferences
	loadErr    error
	selections []domain.Selection
	toggles    map[domain.IndicatorName]bool
}

func (m *mockPrefs) LoadPreferences(ctx context.Context) (*domain.Preferences, error) {
	return m.prefs, m.loadErr
}

func (m *mockPrefs) SaveSelection(ctx context.Context, sel domain.Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections = append(m.selections, sel)
	return nil
}

func (m *mockPrefs) SaveIndicator(ctx context.Context, name domain.IndicatorName, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggles == nil {
		m.toggles = make(map[domain.IndicatorName]bool)
	}
	m.toggles[name] = enabled
	return nil
}

var _ ports.PreferencesRepository = (*mockPrefs)(nil)

// --- Helpers ---

type harness struct {
	svc      *ChartService
	market   *fakeMarket
	streamer *fakeStreamer
	view     *recordingView
	prefs    *mockPrefs
}

func newHarness(t *testing.T, market *fakeMarket, prefs *mockPrefs) *harness {
	t.Helper()
	return newHarnessWithConfig(t, market, prefs, nil)
}

func newHarnessWithConfig(t *testing.T, market *fakeMarket, prefs *mockPrefs, adjust func(cfg *Config)) *harness {
	t.Helper()
	h := &harness{market: market, streamer: &fakeStreamer{}, view: newRecordingView(), prefs: prefs}
	deps := Deps{Market: market, Streamer: h.streamer, View: h.view, Logger: &mockLogger{}}
	if prefs != nil {
		deps.Prefs = prefs
	}
	cfg := Config{
		InitialSelection: domain.Selection{Symbol: "BTCUSDT", Interval: "15m"},
		HistoryLimit:     30,
		SMAPeriod:        20,
		ReconnectDelay:   20 * time.Millisecond,
	}
	if adjust != nil {
		adjust(&cfg)
	}
	svc, err := NewChartService(cfg, deps)
	require.NoError(t, err)
	h.svc = svc
	t.Cleanup(svc.Stop)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.Start(context.Background()))
}

func (h *harness) waitLoaded(t *testing.T, key string) {
	t.Helper()
	require.Eventually(t, func() bool {
		keys := h.streamer.keys()
		return len(keys) > 0 && keys[len(keys)-1] == key && h.view.Snapshot().Status == domain.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
}

// --- Tests ---

func TestNewChartService_MissingDeps(t *testing.T) {
	_, err := NewChartService(Config{}, Deps{})
	assert.Error(t, err)
}

func TestChartService_StartLoadsHistoryAndOpensStream(t *testing.T) {
	h := newHarness(t, &fakeMarket{}, nil)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")

	st := h.view.Snapshot()
	assert.Len(t, st.Candles, 30)
	assert.Len(t, st.Volume, 30)
	assert.Equal(t, domain.Selection{Symbol: "BTCUSDT", Interval: "15m"}, st.Selection)
	assert.Equal(t, []string{"btcusdt@kline_15m"}, h.streamer.keys())

	require.Eventually(t, func() bool { return h.view.Snapshot().Snapshot != nil }, time.Second, 5*time.Millisecond)
	snap, ok := h.svc.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, 40000.0, snap.Close)

	state, key := h.svc.StreamState()
	assert.Equal(t, stream.StateStreaming, state)
	assert.Equal(t, "btcusdt@kline_15m", key.String())
}

func TestChartService_SelectionBurstYieldsOneReplacement(t *testing.T) {
	market := &fakeMarket{gate: make(chan struct{})}
	h := newHarness(t, market, nil)
	h.start(t)
	ctx := context.Background()

	// The initial BTCUSDT/15m load is in flight when the user switches twice.
	require.Eventually(t, func() bool { return len(market.historyCalls()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, h.svc.SelectSymbol(ctx, "ETHUSDT"))
	require.NoError(t, h.svc.SelectInterval(ctx, "1h"))
	close(market.gate)

	h.waitLoaded(t, "ethusdt@kline_1h")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []domain.Selection{
		{Symbol: "BTCUSDT", Interval: "15m"},
		{Symbol: "ETHUSDT", Interval: "1h"},
	}, market.historyCalls(), "the two selection changes coalesce into one reload")

	replaced := h.view.replacements()
	require.Len(t, replaced, 1, "the stale BTCUSDT response is discarded")
	assert.Equal(t, 2000.0, replaced[0][0].Close)

	assert.Equal(t, []string{"ethusdt@kline_1h"}, h.streamer.keys(), "exactly one live subscription")
	state, _ := h.svc.StreamState()
	assert.Equal(t, stream.StateStreaming, state)
}

func TestChartService_FallbackShowsErrorStatus(t *testing.T) {
	failing := &failingClient{}
	fetcher, err := marketdata.NewFetcher(marketdata.FetcherConfig{
		Client:    failing,
		Generator: marketdata.NewSeededGenerator(1, time.Now),
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)

	view := newRecordingView()
	svc, err := NewChartService(Config{InitialSelection: domain.Selection{Symbol: "BTCUSDT", Interval: "1m"}}, Deps{
		Market: fetcher, Streamer: &fakeStreamer{}, View: view, Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool { return view.Snapshot().Status == domain.StatusError }, 2*time.Second, 5*time.Millisecond)
	candles := view.Snapshot().Candles
	require.Len(t, candles, marketdata.DefaultHistoryLimit)
	for i := 1; i < len(candles); i++ {
		require.Greater(t, candles[i].Time, candles[i-1].Time)
	}
}

type failingClient struct{}

func (f *failingClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.RawKline, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (f *failingClient) GetTicker24h(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestChartService_LiveUpdates(t *testing.T) {
	h := newHarness(t, &fakeMarket{}, nil)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
	key := domain.StreamKey{Symbol: "BTCUSDT", Interval: "15m"}

	last := h.view.Snapshot().Candles[29]
	update := domain.Candle{Time: last.Time, Open: 40000, High: 40100, Low: 39000, Close: 39500, Volume: 12}

	h.svc.ApplyLive(key, update)
	h.svc.ApplyLive(key, update)

	st := h.view.Snapshot()
	require.Len(t, st.Candles, 30, "same timestamp replaces the last bar")
	assert.Equal(t, update, st.Candles[29])
	assert.Equal(t, domain.VolumeBar{Time: last.Time, Value: 12, Color: domain.Bearish}, st.Volume[29])

	// A new bar through the transport appends to both series.
	h.streamer.last().handler([]byte(`{"e":"kline","k":{"t":1700001800000,"o":"39500","h":"39600","l":"39400","c":"39550","v":"3"}}`))
	st = h.view.Snapshot()
	require.Len(t, st.Candles, 31)
	require.Len(t, st.Volume, 31)
	assert.Equal(t, int64(1700001800), st.Candles[30].Time)
	assert.Equal(t, domain.Bullish, st.Volume[30].Color)

	// Updates for a key that is not on the chart are ignored.
	h.svc.ApplyLive(domain.StreamKey{Symbol: "ETHUSDT", Interval: "15m"}, domain.Candle{Time: 1800000000})
	assert.Len(t, h.view.Snapshot().Candles, 31)
}

func TestChartService_ToggleIndicator(t *testing.T) {
	prefs := &mockPrefs{}
	h := newHarness(t, &fakeMarket{}, prefs)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
	ctx := context.Background()

	require.NoError(t, h.svc.ToggleIndicator(ctx, "SMA", true))
	overlay := h.view.Snapshot().Overlays[domain.IndicatorSMA]
	assert.True(t, overlay.Computed)
	assert.Len(t, overlay.Points, 11) // 30 candles, period 20

	h.svc.ApplyLive(domain.StreamKey{Symbol: "BTCUSDT", Interval: "15m"}, domain.Candle{Time: 1800000000, Open: 1, Close: 1})
	assert.Len(t, h.view.Snapshot().Overlays[domain.IndicatorSMA].Points, 12, "upserts recompute the overlay")

	require.NoError(t, h.svc.ToggleIndicator(ctx, "macd", true))
	assert.False(t, h.view.Snapshot().Overlays[domain.IndicatorMACD].Computed)

	require.NoError(t, h.svc.ToggleIndicator(ctx, "sma", false))
	assert.NotContains(t, h.view.Snapshot().Overlays, domain.IndicatorSMA)

	err := h.svc.ToggleIndicator(ctx, "ichimoku", true)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	// Switching off an indicator that is already off is not saved.
	require.NoError(t, h.svc.ToggleIndicator(ctx, "rsi", false))

	assert.Equal(t, map[domain.IndicatorName]bool{domain.IndicatorSMA: false, domain.IndicatorMACD: true}, prefs.toggles)
	assert.True(t, h.svc.Indicators()[domain.IndicatorMACD])
}

func TestChartService_RestoresPreferences(t *testing.T) {
	market := &fakeMarket{}
	prefs := &mockPrefs{prefs: &domain.Preferences{
		Selection:  domain.Selection{Symbol: "ethusdt", Interval: "1h"},
		Indicators: map[domain.IndicatorName]bool{domain.IndicatorSMA: true},
	}}
	h := newHarness(t, market, prefs)
	h.start(t)
	h.waitLoaded(t, "ethusdt@kline_1h")

	assert.Equal(t, domain.Selection{Symbol: "ETHUSDT", Interval: "1h"}, market.historyCalls()[0])
	assert.Len(t, h.view.Snapshot().Overlays[domain.IndicatorSMA].Points, 11)
}

func TestChartService_PreferencesLoadFailureUsesDefaults(t *testing.T) {
	market := &fakeMarket{}
	h := newHarness(t, market, &mockPrefs{loadErr: errors.New("disk I/O error")})
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
}

func TestChartService_SelectNormalizesAndSaves(t *testing.T) {
	prefs := &mockPrefs{}
	market := &fakeMarket{}
	h := newHarness(t, market, prefs)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
	ctx := context.Background()

	// Same selection: nothing to do.
	require.NoError(t, h.svc.Select(ctx, domain.Selection{Symbol: " btcusdt ", Interval: "15m"}))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, market.historyCalls(), 1)
	assert.Empty(t, prefs.selections)

	// Unknown timeframe resolves to the default.
	require.NoError(t, h.svc.Select(ctx, domain.Selection{Symbol: "solusdt", Interval: "7h"}))
	assert.Equal(t, domain.Selection{Symbol: "SOLUSDT", Interval: "15m"}, h.svc.Selection())
	h.waitLoaded(t, "solusdt@kline_15m")
	assert.Equal(t, []domain.Selection{{Symbol: "SOLUSDT", Interval: "15m"}}, prefs.selections)
}

func TestChartService_StaleSnapshotDiscarded(t *testing.T) {
	market := &fakeMarket{}
	h := newHarness(t, market, nil)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
	require.Eventually(t, func() bool { return h.view.Snapshot().Snapshot != nil }, time.Second, 5*time.Millisecond)

	market.mu.Lock()
	market.snapGate = make(chan struct{})
	gate := market.snapGate
	market.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.svc.pollSnapshot(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, h.svc.SelectSymbol(context.Background(), "ETHUSDT"))
	close(gate)
	require.NoError(t, <-done)

	_, ok := h.svc.LastSnapshot()
	assert.False(t, ok, "the BTCUSDT ticker is not shown for ETHUSDT")
	assert.Nil(t, h.view.Snapshot().Snapshot)
}

func TestChartService_ReconnectFollowsSelection(t *testing.T) {
	h := newHarness(t, &fakeMarket{}, nil)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")

	h.streamer.last().drop()
	h.waitLoaded(t, "btcusdt@kline_15m")
	require.Eventually(t, func() bool { return len(h.streamer.keys()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"btcusdt@kline_15m", "btcusdt@kline_15m"}, h.streamer.keys())
}

func TestChartService_StartTwice(t *testing.T) {
	h := newHarness(t, &fakeMarket{}, nil)
	h.start(t)
	assert.Error(t, h.svc.Start(context.Background()))
}

func TestChartService_LiveHistoryTrimKeepsSeriesInStep(t *testing.T) {
	h := newHarness(t, &fakeMarket{}, nil)
	h.start(t)
	h.waitLoaded(t, "btcusdt@kline_15m")
	require.NoError(t, h.svc.ToggleIndicator(context.Background(), "sma", true))
	key := domain.StreamKey{Symbol: "BTCUSDT", Interval: "15m"}

	last := h.view.Snapshot().Candles[29]
	for i := 1; i <= 40; i++ {
		h.svc.ApplyLive(key, domain.Candle{Time: last.Time + int64(i*60), Open: 40000, High: 40010, Low: 39990, Close: 40005, Volume: 1})
	}

	h.svc.mu.Lock()
	history := append([]domain.Candle(nil), h.svc.history...)
	h.svc.mu.Unlock()

	st := h.view.Snapshot()
	require.Len(t, history, 60, "history is capped at twice the limit")
	assert.Len(t, st.Candles, len(history))
	assert.Len(t, st.Volume, len(history))
	assert.Equal(t, history[0].Time, st.Candles[0].Time)
	assert.Equal(t, history[59], st.Candles[59])
	assert.Equal(t, st.Candles[0].Time, st.Volume[0].Time)
	assert.Len(t, st.Overlays[domain.IndicatorSMA].Points, 41, "overlay covers the candles on the chart")
}

func TestChartService_StreamStartDelay(t *testing.T) {
	h := newHarnessWithConfig(t, &fakeMarket{}, nil, func(cfg *Config) {
		cfg.StreamStartDelay = 100 * time.Millisecond
	})
	h.start(t)

	require.Eventually(t, func() bool { return h.view.Snapshot().Status == domain.StatusReady }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.streamer.keys(), "no stream before the start delay")

	h.waitLoaded(t, "btcusdt@kline_15m")
	assert.Equal(t, []string{"btcusdt@kline_15m"}, h.streamer.keys())

	var names []string
	for _, j := range h.svc.Jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"snapshot-poll", "history-reload", "stream-start"}, names)
}
