package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"binarylab/config"
	"binarylab/internal/adapters/logger"
	"binarylab/internal/adapters/sqlite"
	"binarylab/internal/ports"
	"binarylab/internal/validation"
)

var persist = flag.Bool("persist", true, "record the validation run in the database")

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	// 4. Load recorded outcomes and run the bootstrap test
	outcomes, err := repo.FindOutcomes(context.Background(), cfg.Asset)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error loading trade outcomes")
		log.Fatalf("Error loading trade outcomes: %v", err)
	}
	if len(outcomes) < cfg.BootstrapMinTrades {
		fmt.Printf("Only %d recorded trades for %s; need at least %d for validation.\n",
			len(outcomes), cfg.Asset, cfg.BootstrapMinTrades)
		return
	}

	result, err := validation.RunBootstrapTest(outcomes, validation.BootstrapConfig{
		Iterations:      cfg.BootstrapIterations,
		ConfidenceLevel: cfg.BootstrapConfidence,
		Seed:            cfg.BootstrapSeed,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Bootstrap validation failed")
		log.Fatalf("Bootstrap validation failed: %v", err)
	}

	// 5. Print the verdict
	fmt.Printf("## Bootstrap Validation: %s (%d trades, %d iterations)\n",
		cfg.Asset, len(outcomes), result.Iterations)
	fmt.Printf("WinRate:     %.4f\n", result.OriginalWinRate)
	fmt.Printf("Mean:        %.4f (stddev %.4f)\n", result.BootstrapMean, result.BootstrapStdDev)
	fmt.Printf("CI:          [%.4f, %.4f]\n", result.ConfidenceIntervalLower, result.ConfidenceIntervalUpper)
	fmt.Printf("PValue:      %.4f\n", result.PValue)
	fmt.Printf("Stable:      %t\n", result.IsStable)

	// 6. Optionally record the run
	if *persist {
		run := &ports.BootstrapRun{
			Asset:           cfg.Asset,
			TradeCount:      len(outcomes),
			OriginalWinRate: result.OriginalWinRate,
			BootstrapMean:   result.BootstrapMean,
			BootstrapStdDev: result.BootstrapStdDev,
			CILower:         result.ConfidenceIntervalLower,
			CIUpper:         result.ConfidenceIntervalUpper,
			PValue:          result.PValue,
			Iterations:      result.Iterations,
			IsStable:        result.IsStable,
		}
		id, err := repo.SaveRun(context.Background(), run)
		if err != nil {
			appLogger.Error(context.Background(), err, "Error recording validation run")
			log.Fatalf("Error recording validation run: %v", err)
		}
		appLogger.Info(context.Background(), "Validation run recorded", map[string]interface{}{"id": id})
	}
}
