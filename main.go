package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"binarylab/config"
	"binarylab/internal/adapters/binanceclient"
	"binarylab/internal/adapters/derivclient"
	"binarylab/internal/adapters/logger"
	"binarylab/internal/adapters/sqlite"
	"binarylab/internal/app"
	"binarylab/internal/ports"
	"binarylab/internal/sizing"
	"binarylab/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := newLogger(cfg)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{
		"level":  cfg.LogLevel.String(),
		"format": cfg.LogFormat,
	})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Market Data Feed
	feed, err := newFeed(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data feed")
		log.Fatalf("FATAL: Failed to initialize market data feed: %v", err)
	}
	appLogger.Info(context.Background(), "Market data feed initialized", map[string]interface{}{"feed": cfg.Feed})

	// 5. Initialize Strategy
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
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy")
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy initialized", map[string]interface{}{"strategy": strat.Name()})

	// 6. Initialize Stake Sizer
	sizer, err := newSizer(cfg)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize stake sizer")
		log.Fatalf("FATAL: Failed to initialize stake sizer: %v", err)
	}
	appLogger.Info(context.Background(), "Stake sizer initialized", map[string]interface{}{"sizer": sizer.Name()})

	// 7. Initialize Application Service
	researchService, err := app.NewResearchService(
		cfg,
		appLogger,
		feed,
		repo, // Pass the concrete implementation, service expects the interfaces
		repo,
		repo,
		strat,
		sizer,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize research service")
		log.Fatalf("FATAL: Failed to initialize research service: %v", err)
	}
	appLogger.Info(context.Background(), "Research service initialized")

	// 8. Start the Service
	// Use context.Background() as the base context for the application run
	if err := researchService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Research service exited with error")
		log.Fatalf("FATAL: Research service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// newLogger builds the structured logger from config, falling back to
// the plain stderr logger if zap cannot be constructed.
func newLogger(cfg *config.Config) ports.Logger {
	zl, err := logger.NewZapLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Printf("WARN: falling back to standard logger: %v", err)
		return logger.NewStdLogger(cfg.LogLevel)
	}
	return zl
}

// newFeed builds the configured market data adapter.
func newFeed(cfg *config.Config, appLogger ports.Logger) (ports.MarketFeed, error) {
	switch cfg.Feed {
	case config.FeedBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	default: // config.FeedDeriv, validated by LoadConfig
		return derivclient.New(derivclient.Config{
			AppID:                cfg.DerivAppID,
			Endpoint:             cfg.DerivEndpoint,
			Logger:               appLogger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	}
}

// newSizer builds the configured stake sizer.
func newSizer(cfg *config.Config) (sizing.Sizer, error) {
	switch cfg.Sizer {
	case config.SizerMartingale:
		return sizing.NewMartingaleSizer(sizing.MartingaleConfig{
			BaseStake:  cfg.Stake,
			Multiplier: cfg.MartingaleMultiplier,
			MaxSteps:   cfg.MartingaleMaxSteps,
		})
	default: // config.SizerFixed, validated by LoadConfig
		return sizing.NewFixedSizer(cfg.Stake)
	}
}
