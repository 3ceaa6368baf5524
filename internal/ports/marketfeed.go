package ports

import (
	"context"
	"time"

	"binarylab/internal/domain"
)

// MarketFeed defines the interface for pulling market data from an
// external source (exchange or broker API). This abstraction decouples
// the candle pipeline from specific feed implementations.
type MarketFeed interface {
	// StreamTicks starts a streaming subscription for raw ticks on the
	// given asset. Ticks and errors are delivered via the handlers.
	// Returns channels to observe/control the stream lifetime.
	StreamTicks(ctx context.Context, asset string, handler func(tick *domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// GetCandleHistory retrieves up to limit historical candles for the
	// asset at the given timeframe (seconds), oldest first.
	GetCandleHistory(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error)

	// Ping checks connectivity to the feed.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the feed's current server time.
	GetServerTime(ctx context.Context) (time.Time, error)
}
