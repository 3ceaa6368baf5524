package backtesting

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"binarylab/internal/domain"
	"binarylab/internal/simulation"
	"binarylab/internal/sizing"
	"binarylab/internal/validation"
)

// stubStrategy signals at fixed candle indices, keyed by the index of
// the latest candle in the window it is shown.
type stubStrategy struct {
	required int
	signalAt map[int]domain.TradeDirection
}

func (s *stubStrategy) Name() string         { return "stub" }
func (s *stubStrategy) RequiredCandles() int { return s.required }

func (s *stubStrategy) CheckEntry(ctx context.Context, candles []*domain.Candle) *domain.Signal {
	dir, ok := s.signalAt[len(candles)-1]
	if !ok {
		return nil
	}
	last := candles[len(candles)-1]
	return &domain.Signal{
		ID:        uuid.New(),
		Strategy:  s.Name(),
		Asset:     last.Asset,
		Direction: dir,
		Price:     last.Close,
		Timestamp: last.Timestamp + last.Timeframe,
	}
}

// flatCandles builds n candles closing at 100 with a 99-101 range.
func flatCandles(n int) []*domain.Candle {
	candles := make([]*domain.Candle, n)
	base := int64(1700000000)
	for i := 0; i < n; i++ {
		candles[i] = &domain.Candle{
			Asset:     "R_75",
			Timeframe: 60,
			Timestamp: base + int64(i)*60,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1,
		}
	}
	return candles
}

func testBacktestConfig() Config {
	seed := int64(42)
	return Config{
		InitialBalance: 1000,
		TakeProfitPct:  0.05,
		StopLossPct:    0.03,
		ExitPolicy: simulation.ExitPolicy{
			MaxBarsInTrade:   5,
			PayoutMultiplier: 1,
		},
		Bootstrap: validation.BootstrapConfig{Iterations: 200, ConfidenceLevel: 0.95, Seed: &seed},
	}
}

func fixedSizer(t *testing.T, stake float64) sizing.Sizer {
	t.Helper()
	s, err := sizing.NewFixedSizer(stake)
	if err != nil {
		t.Fatalf("NewFixedSizer failed: %v", err)
	}
	return s
}

func TestRun_TakeProfitTrade(t *testing.T) {
	candles := flatCandles(20)
	candles[5].High = 106 // TP at 105 hits one bar after the signal

	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{4: domain.Call}}
	result, err := Run(context.Background(), strat, fixedSizer(t, 10), candles, testBacktestConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Exit.Reason != domain.ExitReasonTakeProfit {
		t.Errorf("Exit.Reason = %v, want TP", trade.Exit.Reason)
	}
	if trade.Entry.ExecutedPrice != 100 || trade.Entry.TPPrice != 105 || trade.Entry.SLPrice != 97 {
		t.Errorf("entry levels wrong: %+v", trade.Entry)
	}
	if trade.Result.PNL != 0.5 {
		t.Errorf("PNL = %v, want 0.5 (5%% of a 10 stake)", trade.Result.PNL)
	}
	if trade.Exit.BarsHeld != 1 {
		t.Errorf("BarsHeld = %d, want 1", trade.Exit.BarsHeld)
	}
	if result.Report.TotalTrades != 1 || result.Report.WinningTrades != 1 {
		t.Errorf("report counts wrong: %+v", result.Report)
	}
	if result.Bootstrap == nil {
		t.Fatal("expected a bootstrap result when trades exist")
	}
	if result.Bootstrap.OriginalWinRate != 1.0 {
		t.Errorf("OriginalWinRate = %v, want 1.0", result.Bootstrap.OriginalWinRate)
	}
}

func TestRun_NoOverlappingTrades(t *testing.T) {
	candles := flatCandles(20)
	candles[6].High = 106 // Trade from index 4 resolves on its second bar

	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{
		4: domain.Call,
		5: domain.Call, // In-trade, must be skipped
		6: domain.Call, // Exit bar, must be skipped
	}}
	result, err := Run(context.Background(), strat, fixedSizer(t, 10), candles, testBacktestConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade (signals during the open trade ignored), got %d", len(result.Trades))
	}
	if result.Trades[0].Exit.BarsHeld != 2 {
		t.Errorf("BarsHeld = %d, want 2", result.Trades[0].Exit.BarsHeld)
	}
}

func TestRun_MartingaleStakesEscalateAfterLoss(t *testing.T) {
	candles := flatCandles(20)
	candles[5].Low = 96  // SL at 97 ends the first trade at a loss
	candles[9].High = 106 // Second trade wins at TP

	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{
		4: domain.Call,
		8: domain.Call,
	}}
	sizer, err := sizing.NewMartingaleSizer(sizing.MartingaleConfig{BaseStake: 10, Multiplier: 2, MaxSteps: 3})
	if err != nil {
		t.Fatalf("NewMartingaleSizer failed: %v", err)
	}

	result, err := Run(context.Background(), strat, sizer, candles, testBacktestConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	if result.Trades[0].Result.Outcome != domain.Loss {
		t.Errorf("first trade outcome = %v, want Loss", result.Trades[0].Result.Outcome)
	}
	if result.Trades[0].Entry.Stake != 10 {
		t.Errorf("first stake = %v, want base 10", result.Trades[0].Entry.Stake)
	}
	if result.Trades[1].Entry.Stake != 20 {
		t.Errorf("second stake = %v, want escalated 20", result.Trades[1].Entry.Stake)
	}
}

func TestRun_NoSignals(t *testing.T) {
	strat := &stubStrategy{required: 3, signalAt: nil}
	result, err := Run(context.Background(), strat, fixedSizer(t, 10), flatCandles(20), testBacktestConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 0 || result.Report.TotalTrades != 0 {
		t.Errorf("expected an empty result, got %d trades", len(result.Trades))
	}
	if result.Bootstrap != nil {
		t.Error("bootstrap should be skipped when no trades were taken")
	}
}

func TestRun_InsufficientCandles(t *testing.T) {
	strat := &stubStrategy{required: 30}
	if _, err := Run(context.Background(), strat, fixedSizer(t, 10), flatCandles(20), testBacktestConfig()); err == nil {
		t.Error("expected an error with too little history")
	}
}

func TestRun_ConfigValidation(t *testing.T) {
	cfg := testBacktestConfig()
	cfg.InitialBalance = 0
	strat := &stubStrategy{required: 3}
	if _, err := Run(context.Background(), strat, fixedSizer(t, 10), flatCandles(20), cfg); err == nil {
		t.Error("expected a config error")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strat := &stubStrategy{required: 3}
	if _, err := Run(ctx, strat, fixedSizer(t, 10), flatCandles(20), testBacktestConfig()); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}
