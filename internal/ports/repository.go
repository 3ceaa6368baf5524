package ports

import (
	"context"

	"binarylab/internal/domain"
)

// CandleRepository defines the interface for storing and retrieving candles.
type CandleRepository interface {
	// SaveCandles persists a batch of closed candles.
	SaveCandles(ctx context.Context, candles []*domain.Candle) error
	// FindCandles retrieves up to limit candles for an asset+timeframe,
	// oldest first.
	FindCandles(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error)
}

// TradeRepository defines the interface for storing and retrieving
// simulated trade records.
type TradeRepository interface {
	// SaveTrade persists a completed trade and returns its assigned ID.
	SaveTrade(ctx context.Context, trade *domain.TradeWithContext) (int64, error)
	// FindByAsset retrieves the most recent trades for an asset, up to a limit.
	FindByAsset(ctx context.Context, asset string, limit int) ([]*domain.TradeWithContext, error)
	// FindOutcomes retrieves the win/loss outcome list for an asset in
	// chronological order, for statistical validation.
	FindOutcomes(ctx context.Context, asset string) ([]domain.TradeOutcome, error)
}

// BootstrapRepository defines the interface for recording bootstrap
// validation runs alongside the trades they judged.
type BootstrapRepository interface {
	// SaveRun persists the summary of one bootstrap validation run.
	SaveRun(ctx context.Context, run *BootstrapRun) (int64, error)
}

// BootstrapRun is the persisted summary of a bootstrap validation.
type BootstrapRun struct {
	ID              int64
	Asset           string
	TradeCount      int
	OriginalWinRate float64
	BootstrapMean   float64
	BootstrapStdDev float64
	CILower         float64
	CIUpper         float64
	PValue          float64
	Iterations      int
	IsStable        bool
	CreatedAt       int64 // Seconds since epoch
}
