package domain

// Tick is a single timestamped price observation for one asset.
// Ticks arrive in non-decreasing timestamp order per asset; ordering
// across assets is not guaranteed.
type Tick struct {
	Asset     string  // Asset/symbol identifier (e.g., "R_75", "ETHUSDT")
	Price     float64 // Observed price, > 0
	Timestamp int64   // Milliseconds since epoch, > 0
	Quantity  float64 // Traded quantity, 0 when the source reports none
	Direction int     // -1 downtick, 0 unknown, +1 uptick
}

// PeriodStart returns the start of the candle period (in seconds,
// aligned to the timeframe) that this tick falls into.
func (t *Tick) PeriodStart(timeframe int64) int64 {
	sec := t.Timestamp / 1000
	return sec / timeframe * timeframe
}
