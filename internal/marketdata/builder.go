package marketdata

import (
	"context"
	"fmt"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

// Builder aggregates a tick stream into timeframe-bucketed OHLC candles
// for a single asset. It is a synchronous state machine: AddTick either
// mutates the current candle in place or closes it and opens a new one.
// Builder is not safe for concurrent use; callers own any locking.
type Builder struct {
	asset     string
	timeframe int64 // Bucket length in seconds
	logger    ports.Logger

	current *domain.Candle
	closed  []*domain.Candle

	updateSubs []func(candle *domain.Candle)
	closeSubs  []func(candle *domain.Candle)

	droppedTicks int
}

// NewBuilder creates a candle builder for one asset+timeframe pair.
func NewBuilder(asset string, timeframe int64, logger ports.Logger) (*Builder, error) {
	if asset == "" {
		return nil, fmt.Errorf("%w: asset is required", ports.ErrConfigurationError)
	}
	if timeframe <= 0 {
		return nil, fmt.Errorf("%w: timeframe must be positive, got %d", ports.ErrConfigurationError, timeframe)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &Builder{asset: asset, timeframe: timeframe, logger: logger}, nil
}

// OnUpdate registers a subscriber invoked whenever the live candle
// changes, including the first tick of a freshly opened candle.
func (b *Builder) OnUpdate(fn func(candle *domain.Candle)) {
	b.updateSubs = append(b.updateSubs, fn)
}

// OnClose registers a subscriber invoked with each finalized candle.
// When a tick rolls the period over, the close event for the old candle
// fires before the update event for the new one.
func (b *Builder) OnClose(fn func(candle *domain.Candle)) {
	b.closeSubs = append(b.closeSubs, fn)
}

// AddTick feeds one tick into the builder. Ticks for a different asset
// are rejected with ErrMismatchedAsset. Ticks whose period is older than
// the current candle are dropped and counted rather than reconciled: a
// late tick must never close or reopen the live candle, and silently
// reordering would mask upstream feed bugs.
func (b *Builder) AddTick(ctx context.Context, tick *domain.Tick) error {
	if tick.Asset != b.asset {
		return fmt.Errorf("%w: got %q, builder is configured for %q", ports.ErrMismatchedAsset, tick.Asset, b.asset)
	}

	period := tick.PeriodStart(b.timeframe)

	if b.current == nil {
		b.open(tick, period)
		b.emitUpdate()
		return nil
	}

	switch {
	case period == b.current.Timestamp:
		b.applyTick(tick)
		b.emitUpdate()
	case period < b.current.Timestamp:
		b.droppedTicks++
		b.logger.Warn(ctx, "Dropped out-of-order tick", map[string]interface{}{
			"asset":         b.asset,
			"tickPeriod":    period,
			"currentPeriod": b.current.Timestamp,
			"droppedTotal":  b.droppedTicks,
		})
	default:
		b.closeCurrent()
		b.open(tick, period)
		b.emitUpdate()
	}
	return nil
}

// Current returns a snapshot of the live (not yet closed) candle, or nil
// if no tick has been seen yet.
func (b *Builder) Current() *domain.Candle {
	if b.current == nil {
		return nil
	}
	return b.current.Clone()
}

// Closed returns the finalized candles, oldest first. The returned slice
// is a copy; the candles themselves are immutable once closed.
func (b *Builder) Closed() []*domain.Candle {
	out := make([]*domain.Candle, len(b.closed))
	copy(out, b.closed)
	return out
}

// DroppedTicks reports how many out-of-order ticks have been discarded.
func (b *Builder) DroppedTicks() int {
	return b.droppedTicks
}

func (b *Builder) open(tick *domain.Tick, period int64) {
	b.current = &domain.Candle{
		Asset:     b.asset,
		Timeframe: b.timeframe,
		Timestamp: period,
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Quantity,
	}
}

func (b *Builder) applyTick(tick *domain.Tick) {
	c := b.current
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.Volume += tick.Quantity
}

func (b *Builder) closeCurrent() {
	closed := b.current
	b.current = nil
	b.closed = append(b.closed, closed)
	for _, fn := range b.closeSubs {
		fn(closed)
	}
}

func (b *Builder) emitUpdate() {
	// Subscribers get a snapshot so the live candle cannot be mutated
	// from outside the builder.
	for _, fn := range b.updateSubs {
		fn(b.current.Clone())
	}
}
