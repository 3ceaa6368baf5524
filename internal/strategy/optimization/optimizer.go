package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"binarylab/internal/analytics"
	"binarylab/internal/domain"
	"binarylab/internal/ports"
	"binarylab/internal/sizing"
	"binarylab/internal/strategy/backtesting"
	"binarylab/internal/validation"
)

// Supported sweep parameter names. Each one overrides the matching field
// of the base backtest config for its combination.
const (
	ParamTakeProfitPct         = "take_profit_pct"
	ParamStopLossPct           = "stop_loss_pct"
	ParamMaxBarsInTrade        = "max_bars_in_trade"
	ParamTrailingActivationPct = "trailing_activation_pct"
	ParamTrailingDistancePct   = "trailing_distance_pct"
)

// ParameterRange defines a sweep range for one exit parameter.
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// Result holds the outcome of one parameter combination.
type Result struct {
	Parameters map[string]float64
	Report     *analytics.PerformanceReport
	Bootstrap  *validation.BootstrapResult
	Score      float64
}

// Config holds configuration for the optimizer. Backtest supplies the
// base settings; each combination overrides the swept fields.
type Config struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.Config
	ScoreFunction   func(*analytics.PerformanceReport, *validation.BootstrapResult) float64
}

// Optimizer grid-searches exit parameters against a candle history.
type Optimizer struct {
	config Config
	logger ports.Logger
}

// New creates an optimizer, validating the sweep ranges up front.
func New(config Config, logger ports.Logger) (*Optimizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for optimizer", ports.ErrConfigurationError)
	}
	if len(config.ParameterRanges) == 0 {
		return nil, fmt.Errorf("%w: at least one parameter range is required", ports.ErrConfigurationError)
	}
	for _, pr := range config.ParameterRanges {
		switch pr.Name {
		case ParamTakeProfitPct, ParamStopLossPct, ParamMaxBarsInTrade,
			ParamTrailingActivationPct, ParamTrailingDistancePct:
		default:
			return nil, fmt.Errorf("%w: unknown sweep parameter %q", ports.ErrConfigurationError, pr.Name)
		}
		if pr.Step <= 0 || pr.Min > pr.Max {
			return nil, fmt.Errorf("%w: invalid range for %q", ports.ErrConfigurationError, pr.Name)
		}
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config, logger: logger}, nil
}

// Optimize runs a backtest per parameter combination, concurrently, and
// returns all scored results in descending score order. newSizer must
// produce a fresh sizer per call since sizers carry run state.
func (o *Optimizer) Optimize(ctx context.Context, strat ports.Strategy, newSizer func() sizing.Sizer, candles []*domain.Candle) ([]Result, error) {
	combinations := o.generateCombinations()

	resultChan := make(chan Result, len(combinations))
	var wg sync.WaitGroup

	for _, params := range combinations {
		wg.Add(1)
		go func(params map[string]float64) {
			defer wg.Done()

			cfg := applyParams(o.config.Backtest, params)
			run, err := backtesting.Run(ctx, strat, newSizer(), candles, cfg)
			if err != nil {
				o.logger.Warn(ctx, "Optimization combination failed", map[string]interface{}{
					"params": params,
					"error":  err.Error(),
				})
				return
			}

			resultChan <- Result{
				Parameters: params,
				Report:     run.Report,
				Bootstrap:  run.Bootstrap,
				Score:      o.config.ScoreFunction(run.Report, run.Bootstrap),
			}
		}(params)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Result, 0, len(combinations))
	for result := range resultChan {
		results = append(results, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: optimization aborted: %v", ports.ErrContextCanceled, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// generateCombinations expands the parameter ranges into the full grid.
func (o *Optimizer) generateCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		value := param.Min
		for value <= param.Max+param.Step/2 { // Epsilon for float step accumulation
			if param.IsInt {
				value = math.Round(value)
			}
			current[param.Name] = value
			generate(paramIndex + 1)
			value += param.Step
		}
	}

	generate(0)
	return combinations
}

// applyParams overrides the swept fields of the base backtest config.
func applyParams(base backtesting.Config, params map[string]float64) backtesting.Config {
	cfg := base
	for name, value := range params {
		switch name {
		case ParamTakeProfitPct:
			cfg.TakeProfitPct = value
		case ParamStopLossPct:
			cfg.StopLossPct = value
		case ParamMaxBarsInTrade:
			cfg.ExitPolicy.MaxBarsInTrade = int(value)
		case ParamTrailingActivationPct:
			cfg.ExitPolicy.TrailingActivationPct = value
			cfg.ExitPolicy.UseTrailingStop = true
		case ParamTrailingDistancePct:
			cfg.ExitPolicy.TrailingDistancePct = value
			cfg.ExitPolicy.UseTrailingStop = true
		}
	}
	return cfg
}

// DefaultScoreFunction weighs profitability against drawdown and adds a
// bonus when the win rate survives bootstrap validation. Combinations
// that never traded score zero.
func DefaultScoreFunction(report *analytics.PerformanceReport, bootstrap *validation.BootstrapResult) float64 {
	if report == nil || report.TotalTrades == 0 {
		return 0
	}

	score := report.WinRate * 0.3
	score += report.ProfitFactor * 0.2
	score += (1 - report.MaxDrawdown) * 0.2
	score += report.Expectancy * 0.2

	if bootstrap != nil && bootstrap.IsStable {
		score += 0.3
	}
	return score
}
