package indicators

import (
	"context"
	"fmt"

	"binarylab/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate computes the configured moving average over the candle
// closes. The SMA is the mean of the trailing Period closes; the EMA is
// seeded with the mean of the first Period closes and then updated
// incrementally across the rest of the history.
func (m *MovingAverage) Calculate(ctx context.Context, candles []*domain.Candle) (float64, error) {
	period := m.Config.Period
	if len(candles) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate %s for period %d", len(candles), m.config.Type, period)
	}

	switch m.config.Type {
	case SimpleMovingAverage:
		return meanClose(candles[len(candles)-period:]), nil
	case ExponentialMovingAverage:
		weight := 2.0 / float64(period+1)
		ema := meanClose(candles[:period])
		for _, bar := range candles[period:] {
			ema += (bar.Close - ema) * weight
		}
		return ema, nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func meanClose(candles []*domain.Candle) float64 {
	var sum float64
	for _, bar := range candles {
		sum += bar.Close
	}
	return sum / float64(len(candles))
}
