package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ctreader/internal/domain"
	"ctreader/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// BaseURLProduction is the public spot REST endpoint.
	BaseURLProduction = "https://api.binance.com"

	defaultRequestTimeout = 10 * time.Second
)

// Client implements ports.MarketDataClient using the go-binance spot client.
// Only public market data endpoints are used, so no API keys are needed.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	BaseURL        string // defaults to BaseURLProduction
	RequestTimeout time.Duration
	Logger         ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient("", "")
	client.BaseURL = BaseURLProduction
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "timeout": timeout.String(),
	})

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1120, -1115: // Invalid interval
			mappedErr = ports.ErrInvalidInterval
		case -1121: // Invalid symbol
			mappedErr = ports.ErrInvalidSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1116, -1117, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1006, -1007, -1008: // Server side trouble
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Debug(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Non-API errors (network, context cancellation, decoding inside the adapter).
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	// Fallback is routine for this application, so failures are not logged as errors here.
	c.logger.Debug(ctx, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// GetKlines retrieves up to limit of the most recent klines, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.RawKline, error) {
	op := "GetKlines"
	klines, err := c.spotClient.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]domain.RawKline, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		out = append(out, domain.RawKline{
			OpenTimeMs: k.OpenTime,
			Open:       k.Open,
			High:       k.High,
			Low:        k.Low,
			Close:      k.Close,
			Volume:     k.Volume,
		})
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "interval": interval, "count": len(out),
	})
	return out, nil
}

// GetTicker24h retrieves the rolling 24h statistics for symbol.
func (c *Client) GetTicker24h(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	op := "GetTicker24h"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(strings.ToUpper(symbol)).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 || stats[0] == nil {
		err := fmt.Errorf("no ticker data returned for symbol %s: %w", symbol, ports.ErrEmptyResponse)
		return nil, c.handleError(ctx, err, op)
	}

	s := stats[0]
	snap := &domain.PriceSnapshot{Symbol: s.Symbol}
	if snap.Symbol == "" {
		snap.Symbol = strings.ToUpper(symbol)
	}
	for _, f := range []struct {
		name   string
		raw    string
		dst    *float64
		signed bool
	}{
		{"openPrice", s.OpenPrice, &snap.Open, false},
		{"highPrice", s.HighPrice, &snap.High, false},
		{"lowPrice", s.LowPrice, &snap.Low, false},
		{"lastPrice", s.LastPrice, &snap.Close, false},
		{"priceChangePercent", s.PriceChangePercent, &snap.ChangePercent, true},
		{"volume", s.Volume, &snap.Volume, false},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse %s '%s': %w: %w", f.name, f.raw, ports.ErrDecode, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || (v < 0 && !f.signed) {
			rangeErr := fmt.Errorf("%s '%s' is out of range: %w", f.name, f.raw, ports.ErrDecode)
			return nil, c.handleError(ctx, rangeErr, op)
		}
		*f.dst = v
	}
	return snap, nil
}
