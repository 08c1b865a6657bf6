package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctreader/internal/chart"
	"ctreader/internal/domain"
	"ctreader/internal/ports"
	"ctreader/internal/scheduler"
	"ctreader/internal/stream"
)

type mockLogger struct{}

func (mockLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (mockLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

type mockChartService struct {
	sel        domain.Selection
	indicators map[domain.IndicatorName]bool
	selected   []domain.Selection
	SelectFunc func(sel domain.Selection) error
	ToggleFunc func(name string, enabled bool) error
}

func newMockChartService() *mockChartService {
	return &mockChartService{
		sel:        domain.Selection{Symbol: "BTCUSDT", Interval: "15m"},
		indicators: map[domain.IndicatorName]bool{"sma": false, "rsi": false, "macd": false, "bb": false},
	}
}

func (m *mockChartService) Selection() domain.Selection { return m.sel }

func (m *mockChartService) Select(_ context.Context, sel domain.Selection) error {
	m.selected = append(m.selected, sel)
	if m.SelectFunc != nil {
		if err := m.SelectFunc(sel); err != nil {
			return err
		}
	}
	m.sel = domain.Selection{Symbol: strings.ToUpper(sel.Symbol), Interval: sel.Interval}
	return nil
}

func (m *mockChartService) ToggleIndicator(_ context.Context, name string, enabled bool) error {
	if m.ToggleFunc != nil {
		if err := m.ToggleFunc(name, enabled); err != nil {
			return err
		}
	}
	m.indicators[domain.IndicatorName(name)] = enabled
	return nil
}

func (m *mockChartService) Indicators() map[domain.IndicatorName]bool { return m.indicators }

func (m *mockChartService) StreamState() (stream.State, domain.StreamKey) {
	return stream.StateStreaming, domain.StreamKey{Symbol: "BTCUSDT", Interval: "15m"}
}

func (m *mockChartService) Jobs() []scheduler.JobStatus {
	return []scheduler.JobStatus{
		{Name: "snapshot-poll", Interval: 2 * time.Second, Runs: 3, LastRun: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Name: "history-reload", Interval: 30 * time.Second, LastErr: errors.New("boom")},
		{Name: "stream-start", Once: true},
	}
}

func setupRouter(svc chartService, store *chart.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(svc, store), mockLogger{})
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Health(t *testing.T) {
	router := setupRouter(newMockChartService(), chart.NewStore())

	w := doRequest(router, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandler_GetChart(t *testing.T) {
	store := chart.NewStore()
	store.ReplaceCandles([]domain.Candle{{Time: 900, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10}})
	store.ReplaceVolume([]domain.VolumeBar{{Time: 900, Value: 10, Color: domain.Bullish}})
	store.SetOverlay(domain.Overlay{Name: domain.IndicatorSMA, Computed: true, Points: []domain.LinePoint{{Time: 900, Value: 2}}})
	store.SetStatus(domain.StatusReady)
	router := setupRouter(newMockChartService(), store)

	w := doRequest(router, http.MethodGet, "/api/chart", "")

	require.Equal(t, http.StatusOK, w.Code)
	version := store.Snapshot().Version
	expected := fmt.Sprintf(`{
		"symbol":"BTCUSDT","interval":"15m","status":"Ready","version":%d,
		"candles":[{"time":900,"open":1,"high":3,"low":0.5,"close":2,"volume":10}],
		"volume":[{"time":900,"value":10,"color":"bullish"}],
		"overlays":{"sma":{"computed":true,"points":[{"time":900,"value":2}]}},
		"stream":{"state":"streaming","key":"btcusdt@kline_15m"}
	}`, version)
	assert.JSONEq(t, expected, w.Body.String())
}

func TestHandler_GetSnapshot(t *testing.T) {
	t.Run("before first poll", func(t *testing.T) {
		router := setupRouter(newMockChartService(), chart.NewStore())
		w := doRequest(router, http.MethodGet, "/api/snapshot", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"no snapshot yet"}`, w.Body.String())
	})

	t.Run("formatted ticker", func(t *testing.T) {
		store := chart.NewStore()
		store.SetSnapshot(domain.PriceSnapshot{
			Symbol: "BTCUSDT", Open: 42000, High: 44000, Low: 41000, Close: 43250,
			ChangePercent: 1.25, Volume: 4_000_000,
		})
		router := setupRouter(newMockChartService(), store)

		w := doRequest(router, http.MethodGet, "/api/snapshot", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"symbol":"BTCUSDT","open":42000,"high":44000,"low":41000,"close":43250,
			"changePercent":1.25,"volume":4000000,"synthetic":false,
			"formatted":{"price":"$43,250.00","change":"+1.25%","high":"$44,000.00","low":"$41,000.00",
				"volume":"$4.0M","marketCap":"$1.4B"}
		}`, w.Body.String())
	})
}

func TestHandler_PutSelection(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		selectErr    error
		expectedCode int
		expectedBody string
		expectedSel  []domain.Selection
	}{
		{
			name:         "symbol only keeps interval",
			body:         `{"symbol":"ethusdt"}`,
			expectedCode: http.StatusOK,
			expectedBody: `{"symbol":"ETHUSDT","interval":"15m"}`,
			expectedSel:  []domain.Selection{{Symbol: "ethusdt", Interval: "15m"}},
		},
		{
			name:         "interval only keeps symbol",
			body:         `{"interval":"1h"}`,
			expectedCode: http.StatusOK,
			expectedBody: `{"symbol":"BTCUSDT","interval":"1h"}`,
			expectedSel:  []domain.Selection{{Symbol: "BTCUSDT", Interval: "1h"}},
		},
		{
			name:         "malformed body",
			body:         `{"symbol":`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "service failure",
			body:         `{"symbol":"SOLUSDT"}`,
			selectErr:    fmt.Errorf("save: %w", ports.ErrUpdateFailed),
			expectedCode: http.StatusInternalServerError,
			expectedSel:  []domain.Selection{{Symbol: "SOLUSDT", Interval: "15m"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockChartService()
			svc.SelectFunc = func(domain.Selection) error { return tt.selectErr }
			router := setupRouter(svc, chart.NewStore())

			w := doRequest(router, http.MethodPut, "/api/selection", tt.body)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			if tt.expectedCode != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
			assert.Equal(t, tt.expectedSel, svc.selected)
		})
	}
}

func TestHandler_PutIndicator(t *testing.T) {
	t.Run("enable sma", func(t *testing.T) {
		svc := newMockChartService()
		router := setupRouter(svc, chart.NewStore())

		w := doRequest(router, http.MethodPut, "/api/indicators/sma", `{"enabled":true}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"indicators":{"sma":true,"rsi":false,"macd":false,"bb":false}}`, w.Body.String())
	})

	t.Run("explicit false is accepted", func(t *testing.T) {
		svc := newMockChartService()
		svc.indicators["rsi"] = true
		router := setupRouter(svc, chart.NewStore())

		w := doRequest(router, http.MethodPut, "/api/indicators/rsi", `{"enabled":false}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, svc.indicators["rsi"])
	})

	t.Run("missing enabled", func(t *testing.T) {
		router := setupRouter(newMockChartService(), chart.NewStore())
		w := doRequest(router, http.MethodPut, "/api/indicators/sma", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown indicator", func(t *testing.T) {
		svc := newMockChartService()
		svc.ToggleFunc = func(name string, _ bool) error {
			return fmt.Errorf("unknown indicator %q: %w", name, ports.ErrInvalidRequest)
		}
		router := setupRouter(svc, chart.NewStore())

		w := doRequest(router, http.MethodPut, "/api/indicators/ichimoku", `{"enabled":true}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"unknown indicator \"ichimoku\": invalid request parameters or format"}`, w.Body.String())
	})
}

func TestRouter_CORS(t *testing.T) {
	router := setupRouter(newMockChartService(), chart.NewStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chart", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestID(t *testing.T) {
	router := setupRouter(newMockChartService(), chart.NewStore())

	w := doRequest(router, http.MethodGet, "/healthz", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestHandler_GetJobs(t *testing.T) {
	router := setupRouter(newMockChartService(), chart.NewStore())

	w := doRequest(router, http.MethodGet, "/api/jobs", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[
		{"name":"snapshot-poll","once":false,"interval":"2s","runs":3,"lastRun":"2024-03-01T12:00:00Z"},
		{"name":"history-reload","once":false,"interval":"30s","runs":0,"lastError":"boom"},
		{"name":"stream-start","once":true,"runs":0}
	]}`, w.Body.String())
}
