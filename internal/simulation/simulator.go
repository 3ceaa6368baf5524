package simulation

import (
	"fmt"

	"github.com/google/uuid"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

// ExitPolicy controls how a simulated position is allowed to close.
// The entry's own TP/SL levels complete the policy.
type ExitPolicy struct {
	MaxBarsInTrade        int     // Bars to hold before a TIMEOUT exit, > 0
	UseTrailingStop       bool    // Enables the ratcheting trailing stop
	TrailingActivationPct float64 // Favorable excursion that arms the trailing stop
	TrailingDistancePct   float64 // Distance the stop trails behind the bar extreme
	PayoutMultiplier      float64 // Multiplier applied to the staked percent move
}

// Validate fails fast on a malformed policy rather than letting it
// produce nonsensical trade records.
func (p ExitPolicy) Validate() error {
	if p.MaxBarsInTrade <= 0 {
		return fmt.Errorf("%w: MaxBarsInTrade must be positive, got %d", ports.ErrConfigurationError, p.MaxBarsInTrade)
	}
	if p.PayoutMultiplier <= 0 {
		return fmt.Errorf("%w: PayoutMultiplier must be positive, got %v", ports.ErrConfigurationError, p.PayoutMultiplier)
	}
	if p.TrailingActivationPct < 0 || p.TrailingDistancePct < 0 {
		return fmt.Errorf("%w: trailing percentages cannot be negative", ports.ErrConfigurationError)
	}
	if p.UseTrailingStop && p.TrailingDistancePct == 0 {
		return fmt.Errorf("%w: TrailingDistancePct is required when the trailing stop is enabled", ports.ErrConfigurationError)
	}
	return nil
}

// tradeState carries the mutable bookkeeping for one simulation run.
type tradeState struct {
	entry *domain.TradeEntry
	sign  float64

	seenBar   bool
	maxFavPct float64
	maxAdvPct float64

	trailActive bool
	trailStop   float64
}

// exitDecision is a resolved exit: why and at what price.
type exitDecision struct {
	reason domain.ExitReason
	price  float64
}

type exitCheck struct {
	name  string
	check func(s *tradeState, p ExitPolicy, bar *domain.Candle) *exitDecision
}

// exitChecks is the ordered exit rule sequence applied to every bar,
// first match wins. TP precedes SL: when both are touchable within one
// bar's high-low range, the optimistic tie-break awards TP. The fixed
// stop is skipped once the trailing stop has engaged.
var exitChecks = []exitCheck{
	{name: "trailing_stop", check: checkTrailingStop},
	{name: "take_profit", check: checkTakeProfit},
	{name: "stop_loss", check: checkStopLoss},
}

// Simulate resolves how a hypothetical position would have closed given
// the candles that followed its entry. It processes at most
// min(len(future), policy.MaxBarsInTrade) bars and returns nil (without
// error) when the candle window is empty.
func Simulate(entry *domain.TradeEntry, future []*domain.Candle, policy ExitPolicy) (*domain.TradeWithContext, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if len(future) == 0 {
		return nil, nil
	}

	s := &tradeState{entry: entry, sign: entry.Direction.Sign()}

	bars := policy.MaxBarsInTrade
	if len(future) < bars {
		bars = len(future)
	}

	var exitBar *domain.Candle
	var decision *exitDecision
	barsHeld := 0

	for i := 0; i < bars; i++ {
		bar := future[i]
		exitBar = bar
		barsHeld = i + 1

		s.updateExcursions(bar)

		for _, c := range exitChecks {
			if d := c.check(s, policy, bar); d != nil {
				decision = d
				break
			}
		}
		if decision != nil {
			break
		}
	}

	if decision == nil {
		decision = &exitDecision{reason: domain.ExitReasonTimeout, price: exitBar.Close}
	}

	return buildTrade(entry, policy, s, exitBar, barsHeld, decision), nil
}

// updateExcursions tracks the best and worst direction-adjusted moves
// from entry seen so far, using the bar's high/low extremes.
func (s *tradeState) updateExcursions(bar *domain.Candle) {
	favExtreme, advExtreme := bar.High, bar.Low
	if s.entry.Direction == domain.Put {
		favExtreme, advExtreme = bar.Low, bar.High
	}

	favPct := s.sign * (favExtreme - s.entry.EntryPrice) / s.entry.EntryPrice
	advPct := s.sign * (advExtreme - s.entry.EntryPrice) / s.entry.EntryPrice

	if !s.seenBar {
		s.seenBar = true
		s.maxFavPct = favPct
		s.maxAdvPct = advPct
		return
	}
	if favPct > s.maxFavPct {
		s.maxFavPct = favPct
	}
	if advPct < s.maxAdvPct {
		s.maxAdvPct = advPct
	}
}

func checkTrailingStop(s *tradeState, p ExitPolicy, bar *domain.Candle) *exitDecision {
	if !p.UseTrailingStop {
		return nil
	}
	if !s.trailActive {
		if s.maxFavPct < p.TrailingActivationPct {
			return nil
		}
		s.trailActive = true
	}

	// Ratchet toward the bar extreme; the stop only ever moves in the
	// trade's favor.
	if s.entry.Direction == domain.Call {
		candidate := bar.High * (1 - p.TrailingDistancePct)
		if s.trailStop == 0 || candidate > s.trailStop {
			s.trailStop = candidate
		}
		if bar.Low <= s.trailStop {
			return &exitDecision{reason: domain.ExitReasonTrailingStop, price: s.trailStop}
		}
	} else {
		candidate := bar.Low * (1 + p.TrailingDistancePct)
		if s.trailStop == 0 || candidate < s.trailStop {
			s.trailStop = candidate
		}
		if bar.High >= s.trailStop {
			return &exitDecision{reason: domain.ExitReasonTrailingStop, price: s.trailStop}
		}
	}
	return nil
}

func checkTakeProfit(s *tradeState, _ ExitPolicy, bar *domain.Candle) *exitDecision {
	tp := s.entry.TPPrice
	if tp <= 0 {
		return nil
	}
	if s.entry.Direction == domain.Call && bar.High >= tp {
		return &exitDecision{reason: domain.ExitReasonTakeProfit, price: tp}
	}
	if s.entry.Direction == domain.Put && bar.Low <= tp {
		return &exitDecision{reason: domain.ExitReasonTakeProfit, price: tp}
	}
	return nil
}

func checkStopLoss(s *tradeState, _ ExitPolicy, bar *domain.Candle) *exitDecision {
	// The trailing stop supersedes the fixed stop once engaged.
	if s.trailActive {
		return nil
	}
	sl := s.entry.SLPrice
	if sl <= 0 {
		return nil
	}
	if s.entry.Direction == domain.Call && bar.Low <= sl {
		return &exitDecision{reason: domain.ExitReasonStopLoss, price: sl}
	}
	if s.entry.Direction == domain.Put && bar.High >= sl {
		return &exitDecision{reason: domain.ExitReasonStopLoss, price: sl}
	}
	return nil
}

func buildTrade(entry *domain.TradeEntry, policy ExitPolicy, s *tradeState, exitBar *domain.Candle, barsHeld int, decision *exitDecision) *domain.TradeWithContext {
	requested := entry.RequestedPrice
	if requested == 0 {
		requested = entry.EntryPrice
	}

	var slippagePct float64
	if requested > 0 {
		slippagePct = s.sign * (entry.EntryPrice - requested) / requested
	}

	var tpPct, slPct float64
	if entry.TPPrice > 0 {
		tpPct = s.sign * (entry.TPPrice - entry.EntryPrice) / entry.EntryPrice
	}
	if entry.SLPrice > 0 {
		slPct = s.sign * (entry.SLPrice - entry.EntryPrice) / entry.EntryPrice
	}

	pnlPct := s.sign * (decision.price - entry.EntryPrice) / entry.EntryPrice
	pnl := pnlPct * entry.Stake * policy.PayoutMultiplier

	outcome := domain.Loss
	if pnl > 0 {
		outcome = domain.Win
	}

	return &domain.TradeWithContext{
		ID:     uuid.New(),
		Asset:  exitBar.Asset,
		Signal: entry.Signal,
		Entry: domain.EntryRecord{
			Timestamp:      entry.Timestamp,
			RequestedPrice: requested,
			ExecutedPrice:  entry.EntryPrice,
			SlippagePct:    slippagePct,
			LatencyMs:      entry.LatencyMs,
			Stake:          entry.Stake,
			TPPrice:        entry.TPPrice,
			SLPrice:        entry.SLPrice,
			TPPct:          tpPct,
			SLPct:          slPct,
		},
		Exit: domain.ExitRecord{
			Reason:        decision.reason,
			ExecutedPrice: decision.price,
			Candle:        exitBar.Clone(),
			Timestamp:     exitBar.Timestamp,
			DurationMs:    (exitBar.Timestamp - entry.Timestamp) * 1000,
			BarsHeld:      barsHeld,
		},
		Result: domain.TradeResult{
			PNL:             pnl,
			PNLPct:          pnlPct,
			Outcome:         outcome,
			MaxFavorable:    s.maxFavPct * entry.EntryPrice,
			MaxAdverse:      s.maxAdvPct * entry.EntryPrice,
			MaxFavorablePct: s.maxFavPct,
			MaxAdversePct:   s.maxAdvPct,
		},
	}
}
