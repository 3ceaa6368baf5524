package optimization

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"binarylab/internal/analytics"
	"binarylab/internal/domain"
	"binarylab/internal/simulation"
	"binarylab/internal/sizing"
	"binarylab/internal/strategy/backtesting"
	"binarylab/internal/validation"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// alwaysCall signals CALL on every bar once warmed up.
type alwaysCall struct{}

func (alwaysCall) Name() string         { return "always_call" }
func (alwaysCall) RequiredCandles() int { return 2 }

func (alwaysCall) CheckEntry(ctx context.Context, candles []*domain.Candle) *domain.Signal {
	last := candles[len(candles)-1]
	return &domain.Signal{
		ID:        uuid.New(),
		Strategy:  "always_call",
		Asset:     last.Asset,
		Direction: domain.Call,
		Price:     last.Close,
		Timestamp: last.Timestamp + last.Timeframe,
	}
}

func trendingCandles(n int) []*domain.Candle {
	candles := make([]*domain.Candle, n)
	base := int64(1700000000)
	for i := 0; i < n; i++ {
		close := 100 + float64(i)*0.5
		candles[i] = &domain.Candle{
			Asset:     "R_75",
			Timeframe: 60,
			Timestamp: base + int64(i)*60,
			Open:      close - 0.5,
			High:      close + 1,
			Low:       close - 1,
			Close:     close,
			Volume:    1,
		}
	}
	return candles
}

func baseConfig() Config {
	seed := int64(7)
	return Config{
		ParameterRanges: []ParameterRange{
			{Name: ParamTakeProfitPct, Min: 0.01, Max: 0.02, Step: 0.01},
			{Name: ParamMaxBarsInTrade, Min: 2, Max: 4, Step: 2, IsInt: true},
		},
		Backtest: backtesting.Config{
			InitialBalance: 1000,
			StopLossPct:    0.05,
			ExitPolicy: simulation.ExitPolicy{
				MaxBarsInTrade:   3,
				PayoutMultiplier: 1,
			},
			Bootstrap: validation.BootstrapConfig{Iterations: 100, ConfidenceLevel: 0.95, Seed: &seed},
		},
	}
}

// newFixed is called from optimizer goroutines, so it cannot use
// t.Fatalf; a 10 stake never fails validation.
func newFixed() func() sizing.Sizer {
	return func() sizing.Sizer {
		s, _ := sizing.NewFixedSizer(10)
		return s
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(baseConfig(), nil); err == nil {
		t.Error("expected an error for nil logger")
	}

	cfg := baseConfig()
	cfg.ParameterRanges = nil
	if _, err := New(cfg, nopLogger{}); err == nil {
		t.Error("expected an error for empty ranges")
	}

	cfg = baseConfig()
	cfg.ParameterRanges = []ParameterRange{{Name: "bogus", Min: 1, Max: 2, Step: 1}}
	if _, err := New(cfg, nopLogger{}); err == nil {
		t.Error("expected an error for an unknown parameter name")
	}

	cfg = baseConfig()
	cfg.ParameterRanges = []ParameterRange{{Name: ParamTakeProfitPct, Min: 2, Max: 1, Step: 1}}
	if _, err := New(cfg, nopLogger{}); err == nil {
		t.Error("expected an error for an inverted range")
	}
}

func TestGenerateCombinations(t *testing.T) {
	o, err := New(baseConfig(), nopLogger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	combinations := o.generateCombinations()
	// 2 TP values x 2 bar counts
	if len(combinations) != 4 {
		t.Fatalf("expected 4 combinations, got %d", len(combinations))
	}
	for _, c := range combinations {
		if _, ok := c[ParamTakeProfitPct]; !ok {
			t.Errorf("combination missing %s: %v", ParamTakeProfitPct, c)
		}
		if _, ok := c[ParamMaxBarsInTrade]; !ok {
			t.Errorf("combination missing %s: %v", ParamMaxBarsInTrade, c)
		}
	}
}

func TestOptimize_ScoresAllCombinations(t *testing.T) {
	o, err := New(baseConfig(), nopLogger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	results, err := o.Optimize(context.Background(), alwaysCall{}, newFixed(), trendingCandles(60))
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Errorf("results not in descending score order at %d: %v < %v", i, results[i-1].Score, results[i].Score)
		}
	}
	for _, r := range results {
		if r.Report == nil {
			t.Error("result is missing its performance report")
		}
		if r.Report.TotalTrades > 0 && r.Bootstrap == nil {
			t.Error("traded combination is missing its bootstrap result")
		}
	}
}

func TestApplyParams(t *testing.T) {
	base := baseConfig().Backtest
	cfg := applyParams(base, map[string]float64{
		ParamTakeProfitPct:       0.03,
		ParamMaxBarsInTrade:      7,
		ParamTrailingDistancePct: 0.01,
	})

	if cfg.TakeProfitPct != 0.03 {
		t.Errorf("TakeProfitPct = %v, want 0.03", cfg.TakeProfitPct)
	}
	if cfg.ExitPolicy.MaxBarsInTrade != 7 {
		t.Errorf("MaxBarsInTrade = %d, want 7", cfg.ExitPolicy.MaxBarsInTrade)
	}
	if !cfg.ExitPolicy.UseTrailingStop || cfg.ExitPolicy.TrailingDistancePct != 0.01 {
		t.Errorf("trailing stop not enabled by sweep: %+v", cfg.ExitPolicy)
	}
	// The base config must not be mutated.
	if base.TakeProfitPct != baseConfig().Backtest.TakeProfitPct {
		t.Error("applyParams mutated the base config")
	}
}

func TestDefaultScoreFunction(t *testing.T) {
	if score := DefaultScoreFunction(&analytics.PerformanceReport{}, nil); score != 0 {
		t.Errorf("zero-trade score = %v, want 0", score)
	}

	report := &analytics.PerformanceReport{TotalTrades: 10, WinRate: 0.6, ProfitFactor: 1.5, Expectancy: 2}
	unstable := DefaultScoreFunction(report, &validation.BootstrapResult{IsStable: false})
	stable := DefaultScoreFunction(report, &validation.BootstrapResult{IsStable: true})
	if stable <= unstable {
		t.Errorf("stable score %v should exceed unstable score %v", stable, unstable)
	}
}
