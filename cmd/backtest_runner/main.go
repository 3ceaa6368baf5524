package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"binarylab/config"
	"binarylab/internal/adapters/logger"
	"binarylab/internal/analytics"
	"binarylab/internal/domain"
	"binarylab/internal/simulation"
	"binarylab/internal/sizing"
	"binarylab/internal/strategy"
	"binarylab/internal/strategy/backtesting"
	"binarylab/internal/strategy/optimization"
	"binarylab/internal/utils"
	"binarylab/internal/validation"
)

var (
	candlesFile    = flag.String("candles", "data/candles.csv", "CSV file with candle history")
	initialBalance = flag.Float64("balance", 1000.0, "initial balance for the equity curve")
	optimize       = flag.Bool("optimize", false, "sweep exit parameters instead of a single run")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 2. Load candle history from CSV
	candles, err := utils.ReadCandlesFromCSV(*candlesFile)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error loading candles", map[string]interface{}{"filename": *candlesFile})
		log.Fatalf("Error loading candles: %v", err)
	}
	appLogger.Info(context.Background(), "Loaded candles", map[string]interface{}{
		"filename": *candlesFile,
		"count":    len(candles),
	})

	// 3. Build strategy and backtest configuration from the environment
	strat, err := strategy.New(strategy.Config{
		RSIPeriod:            cfg.StrategyRSIPeriod,
		RSIOverbought:        cfg.StrategyRSIOverbought,
		RSIOversold:          cfg.StrategyRSIOversold,
		TrendMAPeriod:        cfg.StrategyTrendMAPeriod,
		MaxTrendDeviationPct: cfg.StrategyMaxTrendDeviation,
		ATRPeriod:            cfg.StrategyATRPeriod,
		MinATR:               cfg.StrategyMinATR,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to create strategy")
		log.Fatalf("Failed to create strategy: %v", err)
	}

	backtestCfg := backtesting.Config{
		InitialBalance: *initialBalance,
		TakeProfitPct:  cfg.TakeProfit,
		StopLossPct:    cfg.StopLoss,
		ExitPolicy: simulation.ExitPolicy{
			MaxBarsInTrade:        cfg.MaxBarsInTrade,
			UseTrailingStop:       cfg.UseTrailingStop,
			TrailingActivationPct: cfg.TrailingActivation,
			TrailingDistancePct:   cfg.TrailingDistance,
			PayoutMultiplier:      cfg.PayoutMultiplier,
		},
		Bootstrap: validation.BootstrapConfig{
			Iterations:      cfg.BootstrapIterations,
			ConfidenceLevel: cfg.BootstrapConfidence,
			Seed:            cfg.BootstrapSeed,
		},
	}

	if *optimize {
		runOptimization(cfg, appLogger, strat, backtestCfg, candles)
		return
	}

	// 4. Single backtest run
	sizer, err := newSizer(cfg)
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to create sizer")
		log.Fatalf("Failed to create sizer: %v", err)
	}

	result, err := backtesting.Run(context.Background(), strat, sizer, candles, backtestCfg)
	if err != nil {
		appLogger.Error(context.Background(), err, "Backtest error")
		log.Fatalf("Backtest error: %v", err)
	}

	printReport(result.Report)
	printBootstrap(result.Bootstrap)
}

func runOptimization(cfg *config.Config, appLogger *logger.StdLogger, strat *strategy.RSIReversion, backtestCfg backtesting.Config, candles []*domain.Candle) {
	opt, err := optimization.New(optimization.Config{
		ParameterRanges: []optimization.ParameterRange{
			{Name: optimization.ParamTakeProfitPct, Min: 0.005, Max: 0.02, Step: 0.005},
			{Name: optimization.ParamStopLossPct, Min: 0.005, Max: 0.015, Step: 0.005},
			{Name: optimization.ParamMaxBarsInTrade, Min: 3, Max: 10, Step: 1, IsInt: true},
		},
		Backtest: backtestCfg,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to create optimizer")
		log.Fatalf("Failed to create optimizer: %v", err)
	}

	results, err := opt.Optimize(context.Background(), strat, func() sizing.Sizer {
		s, err := newSizer(cfg)
		if err != nil {
			// Config was already validated; this cannot happen for a valid config.
			panic(err)
		}
		return s
	}, candles)
	if err != nil {
		appLogger.Error(context.Background(), err, "Optimization error")
		log.Fatalf("Optimization error: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Score\tTP%\tSL%\tMaxBars\tTrades\tWinRate\tPnL\tStable\t")
	for _, r := range results {
		stable := "-"
		if r.Bootstrap != nil {
			stable = fmt.Sprintf("%t", r.Bootstrap.IsStable)
		}
		fmt.Fprintf(w, "%.4f\t%.2f\t%.2f\t%.0f\t%d\t%.2f\t%.2f\t%s\t\n",
			r.Score,
			r.Parameters[optimization.ParamTakeProfitPct]*100,
			r.Parameters[optimization.ParamStopLossPct]*100,
			r.Parameters[optimization.ParamMaxBarsInTrade],
			r.Report.TotalTrades,
			r.Report.WinRate*100,
			r.Report.TotalProfit,
			stable,
		)
	}
	w.Flush()
}

func printReport(report *analytics.PerformanceReport) {
	fmt.Println("## Backtest Report")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintf(w, "Trades\t%d\t\n", report.TotalTrades)
	fmt.Fprintf(w, "WinRate\t%.2f%%\t\n", report.WinRate*100)
	fmt.Fprintf(w, "TotalPnL\t%.2f\t\n", report.TotalProfit)
	fmt.Fprintf(w, "Expectancy\t%.4f\t\n", report.Expectancy)
	fmt.Fprintf(w, "ProfitFactor\t%.2f\t\n", report.ProfitFactor)
	fmt.Fprintf(w, "AvgWin\t%.4f\t\n", report.AverageWin)
	fmt.Fprintf(w, "AvgLoss\t%.4f\t\n", report.AverageLoss)
	fmt.Fprintf(w, "MaxDrawdown\t%.2f%%\t\n", report.MaxDrawdown*100)
	fmt.Fprintf(w, "MaxConsecLosses\t%d\t\n", report.MaxConsecutiveLosses)
	w.Flush()

	if len(report.ExitReasons) > 0 {
		fmt.Println("\n## Exit Reasons")
		reasons := make([]string, 0, len(report.ExitReasons))
		for reason := range report.ExitReasons {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Printf("%-16s %d\n", reason, report.ExitReasons[domain.ExitReason(reason)])
		}
	}
}

func printBootstrap(result *validation.BootstrapResult) {
	if result == nil {
		fmt.Println("\nNo trades taken; bootstrap validation skipped.")
		return
	}
	fmt.Println("\n## Bootstrap Validation")
	fmt.Printf("WinRate:     %.4f\n", result.OriginalWinRate)
	fmt.Printf("Mean:        %.4f (stddev %.4f)\n", result.BootstrapMean, result.BootstrapStdDev)
	fmt.Printf("CI:          [%.4f, %.4f]\n", result.ConfidenceIntervalLower, result.ConfidenceIntervalUpper)
	fmt.Printf("PValue:      %.4f\n", result.PValue)
	fmt.Printf("Stable:      %t\n", result.IsStable)
}

func newSizer(cfg *config.Config) (sizing.Sizer, error) {
	if cfg.Sizer == config.SizerMartingale {
		return sizing.NewMartingaleSizer(sizing.MartingaleConfig{
			BaseStake:  cfg.Stake,
			Multiplier: cfg.MartingaleMultiplier,
			MaxSteps:   cfg.MartingaleMaxSteps,
		})
	}
	return sizing.NewFixedSizer(cfg.Stake)
}
