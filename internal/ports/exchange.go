package ports

import (
	"context"

	"ctreader/internal/domain"
)

// MarketDataClient is the REST side of the exchange: historical klines and 24h tickers.
type MarketDataClient interface {
	// GetKlines returns up to limit of the most recent raw klines, oldest first.
	// interval is the exchange's wire-level token.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.RawKline, error)

	// GetTicker24h returns the rolling 24h statistics for symbol.
	GetTicker24h(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

// KlineStreamer opens the streaming side of the exchange for one kline subscription.
//
// StreamKlines dials the stream for key and returns once the transport is ready.
// handler receives every raw message and errHandler receives the read error that ended
// the connection, if any. doneCh is closed when the connection ends for any reason.
// Closing stopCh asks the transport to shut down.
type KlineStreamer interface {
	StreamKlines(ctx context.Context, key domain.StreamKey, handler func(msg []byte), errHandler func(err error)) (doneCh <-chan struct{}, stopCh chan<- struct{}, err error)
}
