package backtesting

import (
	"context"
	"fmt"

	"binarylab/internal/analytics"
	"binarylab/internal/domain"
	"binarylab/internal/ports"
	"binarylab/internal/simulation"
	"binarylab/internal/sizing"
	"binarylab/internal/validation"
)

// Config holds configuration for a backtest run.
type Config struct {
	InitialBalance float64
	TakeProfitPct  float64 // Fractional TP distance from entry; 0 disables the level
	StopLossPct    float64 // Fractional SL distance from entry; 0 disables the level
	ExitPolicy     simulation.ExitPolicy
	Bootstrap      validation.BootstrapConfig
}

// Validate fails fast on a malformed backtest config.
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: InitialBalance must be positive, got %v", ports.ErrConfigurationError, c.InitialBalance)
	}
	if c.TakeProfitPct < 0 || c.StopLossPct < 0 {
		return fmt.Errorf("%w: TP/SL percentages cannot be negative", ports.ErrConfigurationError)
	}
	if err := c.ExitPolicy.Validate(); err != nil {
		return err
	}
	return c.Bootstrap.Validate()
}

// Result bundles the trade list with its aggregate report and the
// statistical verdict on the observed win rate.
type Result struct {
	Trades    []*domain.TradeWithContext
	Report    *analytics.PerformanceReport
	Bootstrap *validation.BootstrapResult // nil when no trades were taken
}

// Run replays the candle history through the strategy, resolving each
// signal against the candles that followed it. While a simulated
// position is open no new entries are taken; the stake for each entry
// comes from the sizer, which is reset at the start of the run.
func Run(ctx context.Context, strat ports.Strategy, sizer sizing.Sizer, candles []*domain.Candle, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(candles) <= strat.RequiredCandles() {
		return nil, fmt.Errorf("%w: need more than %d candles for strategy %q, got %d",
			ports.ErrInvalidRequest, strat.RequiredCandles(), strat.Name(), len(candles))
	}

	sizer.Reset()
	var trades []*domain.TradeWithContext

	for i := strat.RequiredCandles() - 1; i < len(candles)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: backtest aborted: %v", ports.ErrContextCanceled, err)
		}

		signal := strat.CheckEntry(ctx, candles[:i+1])
		if signal == nil {
			continue
		}

		entry := buildEntry(signal, candles[i], sizer.NextStake(), cfg)
		trade, err := simulation.Simulate(entry, candles[i+1:], cfg.ExitPolicy)
		if err != nil {
			return nil, err
		}
		if trade == nil {
			// No future candles left to resolve the entry.
			break
		}

		trades = append(trades, trade)
		sizer.RecordOutcome(trade.Result.Outcome)

		// Stay flat until the bar that closed the trade has passed.
		i += trade.Exit.BarsHeld
	}

	result := &Result{
		Trades: trades,
		Report: analytics.AnalyzePerformance(trades, cfg.InitialBalance),
	}
	if len(trades) > 0 {
		bootstrap, err := validation.RunBootstrapTest(analytics.Outcomes(trades), cfg.Bootstrap)
		if err != nil {
			return nil, err
		}
		result.Bootstrap = bootstrap
	}
	return result, nil
}

// buildEntry converts a signal into a hypothetical position entered at
// the close of the signal bar, with TP/SL levels derived from the
// configured fractional distances.
func buildEntry(signal *domain.Signal, bar *domain.Candle, stake float64, cfg Config) *domain.TradeEntry {
	sign := signal.Direction.Sign()

	var tpPrice, slPrice float64
	if cfg.TakeProfitPct > 0 {
		tpPrice = bar.Close * (1 + sign*cfg.TakeProfitPct)
	}
	if cfg.StopLossPct > 0 {
		slPrice = bar.Close * (1 - sign*cfg.StopLossPct)
	}

	return &domain.TradeEntry{
		Timestamp:  bar.Timestamp + bar.Timeframe,
		Direction:  signal.Direction,
		EntryPrice: bar.Close,
		Stake:      stake,
		TPPrice:    tpPrice,
		SLPrice:    slPrice,
		Signal:     signal,
	}
}
