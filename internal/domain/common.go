package domain

// TradeDirection represents the direction of a binary contract.
type TradeDirection string

const (
	Call TradeDirection = "CALL"
	Put  TradeDirection = "PUT"
)

// Sign returns +1 for CALL and -1 for PUT, used to direction-adjust
// price moves so that positive always means favorable.
func (d TradeDirection) Sign() float64 {
	if d == Put {
		return -1
	}
	return 1
}

// Outcome classifies a finished trade. Zero PnL counts as a loss.
type Outcome string

const (
	Win  Outcome = "WIN"
	Loss Outcome = "LOSS"
)

// ExitReason indicates why a simulated trade was closed.
type ExitReason string

const (
	ExitReasonTakeProfit   ExitReason = "TP"
	ExitReasonStopLoss     ExitReason = "SL"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
	ExitReasonTimeout      ExitReason = "TIMEOUT"
)
