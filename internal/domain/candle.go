package domain

// Candle represents a single OHLC bar aggregated over a fixed time bucket.
type Candle struct {
	Asset     string  // Asset/symbol identifier
	Timeframe int64   // Bucket length in seconds, > 0
	Timestamp int64   // Period start in seconds, aligned to Timeframe
	Open      float64 // Opening price
	High      float64 // Highest price
	Low       float64 // Lowest price
	Close     float64 // Closing price
	Volume    float64 // Traded volume, 0 when the source reports none
}

// Clone returns an independent copy of the candle.
func (c *Candle) Clone() *Candle {
	cp := *c
	return &cp
}
