package strategy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
	"binarylab/internal/strategy/indicators"
)

// Config holds parameters for the RSI mean-reversion strategy.
type Config struct {
	RSIPeriod            int     // e.g., 14
	RSIOverbought        float64 // e.g., 70.0
	RSIOversold          float64 // e.g., 30.0
	TrendMAPeriod        int     // SMA period for the trend filter, e.g., 50
	MaxTrendDeviationPct float64 // Skip entries when price strays further from the SMA
	ATRPeriod            int     // e.g., 14
	MinATR               float64 // Volatility floor; 0 disables the filter
}

// RSIReversion is a contrarian entry strategy: it emits a CALL signal
// when RSI is oversold and a PUT signal when RSI is overbought, with an
// SMA deviation filter to stand aside in strongly trending markets and
// an ATR floor to skip dead markets.
type RSIReversion struct {
	cfg    Config
	logger ports.Logger

	rsi *indicators.RSI
	sma *indicators.MovingAverage
	atr *indicators.ATR
}

// New creates a new RSIReversion strategy instance.
func New(cfg Config, logger ports.Logger) (*RSIReversion, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for strategy", ports.ErrConfigurationError)
	}
	if cfg.RSIPeriod <= 0 || cfg.TrendMAPeriod <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("%w: strategy periods must be positive", ports.ErrConfigurationError)
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		return nil, fmt.Errorf("%w: invalid RSI thresholds (Overbought must be > Oversold, between 0-100)", ports.ErrConfigurationError)
	}
	if cfg.MaxTrendDeviationPct < 0 {
		return nil, fmt.Errorf("%w: MaxTrendDeviationPct cannot be negative", ports.ErrConfigurationError)
	}

	return &RSIReversion{
		cfg:    cfg,
		logger: logger,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		sma: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.TrendMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod},
		}),
	}, nil
}

// Name returns the strategy's name, recorded on emitted signals.
func (s *RSIReversion) Name() string { return "rsi_reversion" }

// RequiredCandles returns the minimum number of candles needed for the
// strategy calculations. RSI and ATR look one step further back than
// their periods.
func (s *RSIReversion) RequiredCandles() int {
	required := s.cfg.TrendMAPeriod
	if s.cfg.RSIPeriod+1 > required {
		required = s.cfg.RSIPeriod + 1
	}
	if s.cfg.ATRPeriod+1 > required {
		required = s.cfg.ATRPeriod + 1
	}
	return required
}

// CheckEntry inspects the candle history and returns an entry signal,
// or nil when no entry condition is met.
func (s *RSIReversion) CheckEntry(ctx context.Context, candles []*domain.Candle) *domain.Signal {
	if len(candles) < s.RequiredCandles() {
		return nil
	}
	last := candles[len(candles)-1]

	rsiValue, err := s.rsi.Calculate(ctx, candles)
	if err != nil {
		s.logger.Warn(ctx, "RSI calculation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var direction domain.TradeDirection
	switch {
	case s.rsi.IsOversold(rsiValue):
		direction = domain.Call
	case s.rsi.IsOverbought(rsiValue):
		direction = domain.Put
	default:
		return nil
	}

	smaValue, err := s.sma.Calculate(ctx, candles)
	if err != nil {
		s.logger.Warn(ctx, "SMA calculation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	// Mean reversion is unsafe against a strong trend: stand aside when
	// price has strayed too far from its average.
	if s.cfg.MaxTrendDeviationPct > 0 {
		deviation := (last.Close - smaValue) / smaValue
		if deviation > s.cfg.MaxTrendDeviationPct || deviation < -s.cfg.MaxTrendDeviationPct {
			s.logger.Debug(ctx, "Entry skipped: trend deviation filter", map[string]interface{}{
				"asset":     last.Asset,
				"deviation": deviation,
			})
			return nil
		}
	}

	atrValue, err := s.atr.Calculate(ctx, candles)
	if err != nil {
		s.logger.Warn(ctx, "ATR calculation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if s.cfg.MinATR > 0 && atrValue < s.cfg.MinATR {
		s.logger.Debug(ctx, "Entry skipped: volatility floor", map[string]interface{}{
			"asset": last.Asset,
			"atr":   atrValue,
		})
		return nil
	}

	return &domain.Signal{
		ID:        uuid.New(),
		Strategy:  s.Name(),
		Asset:     last.Asset,
		Direction: direction,
		Price:     last.Close,
		Timestamp: last.Timestamp + last.Timeframe, // The moment the bar closed
		Meta: map[string]float64{
			"rsi": rsiValue,
			"sma": smaValue,
			"atr": atrValue,
		},
	}
}
