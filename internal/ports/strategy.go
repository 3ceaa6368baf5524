package ports

import (
	"context"

	"binarylab/internal/domain"
)

// Strategy defines the interface for entry-signal strategies. A strategy
// reacts to closed candles and decides whether to open a hypothetical
// position; everything after the signal (execution, exit resolution) is
// owned by the simulator.
type Strategy interface {
	// Name returns the strategy's name, recorded on emitted signals.
	Name() string

	// RequiredCandles returns the minimum number of candles needed for
	// the strategy's calculations.
	RequiredCandles() int

	// CheckEntry inspects the candle history (oldest first, last element
	// is the most recently closed bar) and returns an entry signal, or
	// nil when no entry condition is met.
	CheckEntry(ctx context.Context, candles []*domain.Candle) *domain.Signal
}
