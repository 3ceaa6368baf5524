package indicators

import (
	"context"
	"fmt"
	"math"

	"binarylab/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	config ATRConfig
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{
		config: config,
	}
}

// Calculate computes the ATR over the candle history: the first Period
// true ranges seed a simple average, later bars are folded in with
// Wilder's smoothing.
func (a *ATR) Calculate(ctx context.Context, candles []*domain.Candle) (float64, error) {
	period := a.config.Period
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(candles))
	}

	// The first bar has no previous close; its range is the only
	// information available.
	atr := candles[0].High - candles[0].Low
	for i := 1; i < period; i++ {
		atr += trueRange(candles[i], candles[i-1].Close)
	}
	atr /= float64(period)

	for i := period; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles[i], candles[i-1].Close)) / float64(period)
	}
	return atr, nil
}

// trueRange is the bar's high-low span widened to cover any gap from the
// previous close.
func trueRange(bar *domain.Candle, prevClose float64) float64 {
	tr := bar.High - bar.Low
	if gap := math.Abs(bar.High - prevClose); gap > tr {
		tr = gap
	}
	if gap := math.Abs(bar.Low - prevClose); gap > tr {
		tr = gap
	}
	return tr
}
