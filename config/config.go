package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"binarylab/internal/adapters/logger" // Import the logger package for LogLevel
)

// Feed identifiers.
const (
	FeedDeriv   = "deriv"
	FeedBinance = "binance"
)

// Sizer identifiers.
const (
	SizerFixed      = "fixed"
	SizerMartingale = "martingale"
)

// Config holds all application configuration.
type Config struct {
	// Market data feed
	Feed string // "deriv" or "binance"

	// Deriv API
	DerivAppID    string
	DerivEndpoint string // Empty = default public endpoint

	// Binance API (only used when Feed == "binance")
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Asset     string
	Timeframe int64 // Candle timeframe in seconds

	// Staking
	Stake                float64 // Base stake per contract
	Sizer                string  // "fixed" or "martingale"
	MartingaleMultiplier float64
	MartingaleMaxSteps   int

	// Exit rules
	TakeProfit         float64 // Fractional TP distance from entry
	StopLoss           float64 // Fractional SL distance from entry
	MaxBarsInTrade     int
	PayoutMultiplier   float64
	UseTrailingStop    bool
	TrailingActivation float64
	TrailingDistance   float64

	// Strategy Parameters
	StrategyRSIPeriod         int     // e.g., 14
	StrategyRSIOverbought     float64 // e.g., 70.0
	StrategyRSIOversold       float64 // e.g., 30.0
	StrategyTrendMAPeriod     int     // e.g., 50
	StrategyMaxTrendDeviation float64 // e.g., 0.05
	StrategyATRPeriod         int     // e.g., 14
	StrategyMinATR            float64 // 0 disables the volatility floor

	// Bootstrap validation
	BootstrapIterations int
	BootstrapConfidence float64
	BootstrapSeed       *int64 // Optional, reproducible runs
	BootstrapMinTrades  int    // Minimum trades before running validation
	ValidateEveryTrades int    // Re-validate after this many new trades

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Feed selection
	cfg.Feed = strings.ToLower(getEnv("FEED", FeedDeriv))
	if cfg.Feed != FeedDeriv && cfg.Feed != FeedBinance {
		errs = append(errs, fmt.Sprintf("FEED must be %q or %q", FeedDeriv, FeedBinance))
	}

	// Deriv API
	cfg.DerivAppID = getEnv("DERIV_APP_ID", "1089") // Public demo app ID
	cfg.DerivEndpoint = getEnv("DERIV_ENDPOINT", "")
	if cfg.Feed == FeedDeriv && cfg.DerivAppID == "" {
		errs = append(errs, "DERIV_APP_ID must be set when FEED=deriv")
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Market
	cfg.Asset = getEnv("ASSET", "R_75")
	if cfg.Asset == "" {
		errs = append(errs, "ASSET must be set")
	}

	timeframe, err := getEnvAsIntRequired("TIMEFRAME", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEFRAME: %v", err))
	} else if timeframe <= 0 {
		errs = append(errs, "TIMEFRAME must be positive")
	}
	cfg.Timeframe = int64(timeframe)

	// Staking
	cfg.Stake, err = getEnvAsFloatRequired("STAKE", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STAKE: %v", err))
	} else if cfg.Stake <= 0 {
		errs = append(errs, "STAKE must be positive")
	}

	cfg.Sizer = strings.ToLower(getEnv("SIZER", SizerFixed))
	if cfg.Sizer != SizerFixed && cfg.Sizer != SizerMartingale {
		errs = append(errs, fmt.Sprintf("SIZER must be %q or %q", SizerFixed, SizerMartingale))
	}
	cfg.MartingaleMultiplier = getEnvAsFloat("MARTINGALE_MULTIPLIER", 2.0)
	cfg.MartingaleMaxSteps = getEnvAsInt("MARTINGALE_MAX_STEPS", 3)
	if cfg.Sizer == SizerMartingale {
		if cfg.MartingaleMultiplier <= 1 {
			errs = append(errs, "MARTINGALE_MULTIPLIER must be greater than 1")
		}
		if cfg.MartingaleMaxSteps <= 0 {
			errs = append(errs, "MARTINGALE_MAX_STEPS must be positive")
		}
	}

	// Exit rules
	cfg.TakeProfit, err = getEnvAsFloatRequired("TAKE_PROFIT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT: %v", err))
	} else if cfg.TakeProfit < 0 {
		errs = append(errs, "TAKE_PROFIT cannot be negative")
	}

	cfg.StopLoss, err = getEnvAsFloatRequired("STOP_LOSS", 0.0075)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS: %v", err))
	} else if cfg.StopLoss < 0 || cfg.StopLoss >= 1.0 {
		errs = append(errs, "STOP_LOSS must be between 0.0 and 1.0")
	}

	cfg.MaxBarsInTrade = getEnvAsInt("MAX_BARS_IN_TRADE", 5)
	if cfg.MaxBarsInTrade <= 0 {
		errs = append(errs, "MAX_BARS_IN_TRADE must be positive")
	}

	cfg.PayoutMultiplier = getEnvAsFloat("PAYOUT_MULTIPLIER", 1.0)
	if cfg.PayoutMultiplier <= 0 {
		errs = append(errs, "PAYOUT_MULTIPLIER must be positive")
	}

	cfg.UseTrailingStop = getEnvAsBool("USE_TRAILING_STOP", false)
	cfg.TrailingActivation = getEnvAsFloat("TRAILING_ACTIVATION", 0.005)
	cfg.TrailingDistance = getEnvAsFloat("TRAILING_DISTANCE", 0.0025)
	if cfg.UseTrailingStop && cfg.TrailingDistance <= 0 {
		errs = append(errs, "TRAILING_DISTANCE must be positive when USE_TRAILING_STOP is enabled")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	cfg.StrategyTrendMAPeriod = getEnvAsInt("STRATEGY_TREND_MA_PERIOD", 50)
	cfg.StrategyMaxTrendDeviation = getEnvAsFloat("STRATEGY_MAX_TREND_DEVIATION", 0.05)
	cfg.StrategyATRPeriod = getEnvAsInt("STRATEGY_ATR_PERIOD", 14)
	cfg.StrategyMinATR = getEnvAsFloat("STRATEGY_MIN_ATR", 0)

	// Validate strategy periods
	if cfg.StrategyRSIPeriod <= 0 || cfg.StrategyTrendMAPeriod <= 0 || cfg.StrategyATRPeriod <= 0 {
		errs = append(errs, "strategy periods (RSI, MA, ATR) must be positive")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Bootstrap validation
	cfg.BootstrapIterations = getEnvAsInt("BOOTSTRAP_ITERATIONS", 1000)
	if cfg.BootstrapIterations <= 0 {
		errs = append(errs, "BOOTSTRAP_ITERATIONS must be positive")
	}
	cfg.BootstrapConfidence = getEnvAsFloat("BOOTSTRAP_CONFIDENCE", 0.95)
	if cfg.BootstrapConfidence <= 0 || cfg.BootstrapConfidence >= 1 {
		errs = append(errs, "BOOTSTRAP_CONFIDENCE must be in (0, 1)")
	}
	if seedStr := os.Getenv("BOOTSTRAP_SEED"); seedStr != "" {
		seed, seedErr := strconv.ParseInt(seedStr, 10, 64)
		if seedErr != nil {
			errs = append(errs, fmt.Sprintf("invalid BOOTSTRAP_SEED: %v", seedErr))
		} else {
			cfg.BootstrapSeed = &seed
		}
	}
	cfg.BootstrapMinTrades = getEnvAsInt("BOOTSTRAP_MIN_TRADES", 30)
	if cfg.BootstrapMinTrades <= 0 {
		errs = append(errs, "BOOTSTRAP_MIN_TRADES must be positive")
	}
	cfg.ValidateEveryTrades = getEnvAsInt("VALIDATE_EVERY_TRADES", 20)
	if cfg.ValidateEveryTrades <= 0 {
		errs = append(errs, "VALIDATE_EVERY_TRADES must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/binarylab.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
