package domain

import "github.com/google/uuid"

// Signal carries the market snapshot and strategy metadata captured at
// entry time. It is opaque to the simulator, which only echoes it back
// on the resulting trade record.
type Signal struct {
	ID        uuid.UUID          // Unique signal identifier
	Strategy  string             // Name of the strategy that produced the signal
	Asset     string             // Asset the signal applies to
	Direction TradeDirection     // Requested contract direction
	Price     float64            // Market price when the signal fired
	Timestamp int64              // Signal time in seconds since epoch
	Meta      map[string]float64 // Indicator values and other strategy context
}

// TradeEntry describes a hypothetical position to be resolved by the
// simulator against a window of future candles.
type TradeEntry struct {
	Timestamp      int64          // Entry time in seconds since epoch
	Direction      TradeDirection // CALL or PUT
	EntryPrice     float64        // Executed entry price
	RequestedPrice float64        // Price requested at signal time (0 = same as EntryPrice)
	LatencyMs      int64          // Signal-to-execution latency, when known
	Stake          float64        // Amount staked on the contract
	TPPrice        float64        // Take-profit level
	SLPrice        float64        // Stop-loss level
	Signal         *Signal        // Strategy context, opaque to the simulator
}

// EntryRecord captures everything about how a simulated position was opened.
type EntryRecord struct {
	Timestamp      int64
	RequestedPrice float64
	ExecutedPrice  float64
	SlippagePct    float64 // Direction-adjusted (executed - requested) / requested
	LatencyMs      int64
	Stake          float64
	TPPrice        float64
	SLPrice        float64
	TPPct          float64 // Direction-adjusted distance from entry to TP
	SLPct          float64 // Direction-adjusted distance from entry to SL (negative)
}

// ExitRecord captures the market state at the moment the simulated
// position closed.
type ExitRecord struct {
	Reason        ExitReason
	ExecutedPrice float64
	Candle        *Candle // Snapshot of the bar that closed the trade
	Timestamp     int64   // Exit time in seconds since epoch
	DurationMs    int64   // (exit candle timestamp - entry timestamp) * 1000
	BarsHeld      int     // Number of bars processed before exit
}

// TradeResult holds the financial outcome of a simulated trade.
type TradeResult struct {
	PNL             float64 // Direction-adjusted price change * stake * multiplier
	PNLPct          float64 // Direction-adjusted fractional price change
	Outcome         Outcome // WIN iff PNL > 0
	MaxFavorable    float64 // Best unrealized move from entry, in price units
	MaxAdverse      float64 // Worst unrealized move from entry, in price units (<= 0)
	MaxFavorablePct float64
	MaxAdversePct   float64
}

// TradeWithContext is the full record of one simulated trade: the
// originating signal, how the position was opened, how it closed, and
// the resulting outcome. It is never mutated after construction.
type TradeWithContext struct {
	ID     uuid.UUID
	Asset  string
	Signal *Signal
	Entry  EntryRecord
	Exit   ExitRecord
	Result TradeResult
}

// ToOutcome returns the reduced win/loss view of the trade used by the
// bootstrap validator.
func (t *TradeWithContext) ToOutcome() TradeOutcome {
	return TradeOutcome{
		Outcome:   t.Result.Outcome,
		PNL:       t.Result.PNL,
		Timestamp: t.Exit.Timestamp,
	}
}

// TradeOutcome is the minimal per-trade record consumed by statistical
// validation. List order is conventionally chronological.
type TradeOutcome struct {
	Outcome   Outcome
	PNL       float64
	Timestamp int64
}
