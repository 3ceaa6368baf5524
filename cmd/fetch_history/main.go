package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"binarylab/config"
	"binarylab/internal/adapters/binanceclient"
	"binarylab/internal/adapters/derivclient"
	"binarylab/internal/adapters/logger"
	"binarylab/internal/ports"
	"binarylab/internal/utils"
)

var (
	count   = flag.Int("count", 5000, "number of candles to fetch")
	outFile = flag.String("out", "", "output CSV file (default data/<asset>_<timeframe>.csv)")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Market Data Feed
	feed, err := newFeed(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data feed")
		log.Fatalf("FATAL: Failed to initialize market data feed: %v", err)
	}
	appLogger.Info(context.Background(), "Market data feed initialized", map[string]interface{}{"feed": cfg.Feed})

	// 4. Fetch candle history
	fmt.Printf("Fetching %d candles for %s at %ds timeframe...\n", *count, cfg.Asset, cfg.Timeframe)
	candles, err := feed.GetCandleHistory(context.Background(), cfg.Asset, cfg.Timeframe, *count)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched candles", map[string]interface{}{"count": len(candles)})

	// 5. Write to CSV
	filename := *outFile
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%ds.csv", cfg.Asset, cfg.Timeframe)
	}
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}

func newFeed(cfg *config.Config, appLogger ports.Logger) (ports.MarketFeed, error) {
	if cfg.Feed == config.FeedBinance {
		return binanceclient.New(binanceclient.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	}
	return derivclient.New(derivclient.Config{
		AppID:                cfg.DerivAppID,
		Endpoint:             cfg.DerivEndpoint,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
}
