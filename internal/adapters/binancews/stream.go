package binancews

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// BaseURLProduction is the public spot kline stream endpoint.
const BaseURLProduction = "wss://stream.binance.com:9443/ws"

// Streamer implements ports.KlineStreamer over a raw websocket. It does not reconnect:
// one call is one connection, and the caller decides what happens after doneCh closes.
type Streamer struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  ports.Logger
}

// Config holds configuration for the stream transport.
type Config struct {
	BaseURL          string // defaults to BaseURLProduction
	HandshakeTimeout time.Duration
	Logger           ports.Logger
}

// New creates a Streamer.
func New(cfg Config) (*Streamer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance stream")
	}
	base := BaseURLProduction
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return &Streamer{baseURL: base, dialer: &dialer, logger: cfg.Logger}, nil
}

// URL returns the endpoint for a stream key.
func (s *Streamer) URL(key domain.StreamKey) string {
	return s.baseURL + "/" + key.String()
}

// StreamKlines dials the kline stream for key and pumps messages into handler until the
// connection fails, ctx is cancelled or stopCh is closed.
func (s *Streamer) StreamKlines(ctx context.Context, key domain.StreamKey, handler func(msg []byte), errHandler func(err error)) (<-chan struct{}, chan<- struct{}, error) {
	if key.String() == "" {
		return nil, nil, fmt.Errorf("stream key: %w", ports.ErrInvalidRequest)
	}
	u := s.URL(key)

	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w: %w", u, ports.ErrConnectionFailed, err)
	}
	s.logger.Debug(ctx, "Kline stream connected", map[string]interface{}{"url": u})

	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	var closeOnce sync.Once
	var stopping bool
	var mu sync.Mutex
	shutdown := func() {
		closeOnce.Do(func() {
			mu.Lock()
			stopping = true
			mu.Unlock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	// Close the connection when asked to stop.
	go func() {
		select {
		case <-stopCh:
		case <-ctx.Done():
		case <-doneCh:
		}
		shutdown()
	}()

	go func() {
		defer close(doneCh)
		defer shutdown()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				mu.Lock()
				clean := stopping
				mu.Unlock()
				if clean {
					s.logger.Debug(ctx, "Kline stream stopped", map[string]interface{}{"url": u})
				} else if errHandler != nil {
					errHandler(fmt.Errorf("read %s: %w", u, err))
				}
				return
			}
			handler(msg)
		}
	}()

	return doneCh, stopCh, nil
}
