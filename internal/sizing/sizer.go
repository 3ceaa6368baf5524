package sizing

import (
	"fmt"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

// Sizer decides the stake for the next contract based on the history of
// outcomes fed to it.
type Sizer interface {
	// Name returns the sizer's name for reporting.
	Name() string
	// NextStake returns the stake for the next trade.
	NextStake() float64
	// RecordOutcome feeds the result of the latest trade back into the sizer.
	RecordOutcome(outcome domain.Outcome)
	// Reset restores the sizer to its initial state.
	Reset()
}

// FixedSizer stakes the same amount on every contract.
type FixedSizer struct {
	stake float64
}

// NewFixedSizer creates a sizer with a constant stake.
func NewFixedSizer(stake float64) (*FixedSizer, error) {
	if stake <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive, got %v", ports.ErrConfigurationError, stake)
	}
	return &FixedSizer{stake: stake}, nil
}

func (s *FixedSizer) Name() string { return "fixed" }

func (s *FixedSizer) NextStake() float64 { return s.stake }

func (s *FixedSizer) RecordOutcome(outcome domain.Outcome) {}

func (s *FixedSizer) Reset() {}

// MartingaleSizer multiplies the stake after each loss and resets to the
// base stake after a win. MaxSteps caps the doubling ladder; once
// reached the stake stays at the cap until a win resets it.
type MartingaleSizer struct {
	baseStake  float64
	multiplier float64
	maxSteps   int

	step int
}

// MartingaleConfig holds parameters for the martingale ladder.
type MartingaleConfig struct {
	BaseStake  float64
	Multiplier float64 // Stake multiplier per consecutive loss, > 1
	MaxSteps   int     // Maximum consecutive escalations, > 0
}

// NewMartingaleSizer creates a loss-escalating sizer.
func NewMartingaleSizer(cfg MartingaleConfig) (*MartingaleSizer, error) {
	if cfg.BaseStake <= 0 {
		return nil, fmt.Errorf("%w: BaseStake must be positive, got %v", ports.ErrConfigurationError, cfg.BaseStake)
	}
	if cfg.Multiplier <= 1 {
		return nil, fmt.Errorf("%w: Multiplier must be greater than 1, got %v", ports.ErrConfigurationError, cfg.Multiplier)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("%w: MaxSteps must be positive, got %d", ports.ErrConfigurationError, cfg.MaxSteps)
	}
	return &MartingaleSizer{baseStake: cfg.BaseStake, multiplier: cfg.Multiplier, maxSteps: cfg.MaxSteps}, nil
}

func (s *MartingaleSizer) Name() string { return "martingale" }

func (s *MartingaleSizer) NextStake() float64 {
	stake := s.baseStake
	for i := 0; i < s.step; i++ {
		stake *= s.multiplier
	}
	return stake
}

func (s *MartingaleSizer) RecordOutcome(outcome domain.Outcome) {
	if outcome == domain.Win {
		s.step = 0
		return
	}
	if s.step < s.maxSteps {
		s.step++
	}
}

func (s *MartingaleSizer) Reset() { s.step = 0 }
