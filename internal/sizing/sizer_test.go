package sizing

import (
	"testing"

	"binarylab/internal/domain"
)

func TestFixedSizer(t *testing.T) {
	s, err := NewFixedSizer(10)
	if err != nil {
		t.Fatalf("NewFixedSizer failed: %v", err)
	}

	s.RecordOutcome(domain.Loss)
	s.RecordOutcome(domain.Loss)
	if s.NextStake() != 10 {
		t.Errorf("fixed stake changed after losses: %v", s.NextStake())
	}

	if _, err := NewFixedSizer(0); err == nil {
		t.Error("expected error for zero stake")
	}
}

func TestMartingaleSizer_EscalatesAndResets(t *testing.T) {
	s, err := NewMartingaleSizer(MartingaleConfig{BaseStake: 10, Multiplier: 2, MaxSteps: 3})
	if err != nil {
		t.Fatalf("NewMartingaleSizer failed: %v", err)
	}

	if s.NextStake() != 10 {
		t.Errorf("initial stake = %v, want 10", s.NextStake())
	}

	s.RecordOutcome(domain.Loss)
	if s.NextStake() != 20 {
		t.Errorf("stake after 1 loss = %v, want 20", s.NextStake())
	}
	s.RecordOutcome(domain.Loss)
	if s.NextStake() != 40 {
		t.Errorf("stake after 2 losses = %v, want 40", s.NextStake())
	}

	s.RecordOutcome(domain.Win)
	if s.NextStake() != 10 {
		t.Errorf("stake after win = %v, want base 10", s.NextStake())
	}
}

func TestMartingaleSizer_CapsAtMaxSteps(t *testing.T) {
	s, err := NewMartingaleSizer(MartingaleConfig{BaseStake: 10, Multiplier: 2, MaxSteps: 2})
	if err != nil {
		t.Fatalf("NewMartingaleSizer failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.RecordOutcome(domain.Loss)
	}
	if s.NextStake() != 40 {
		t.Errorf("capped stake = %v, want 40 (2 steps)", s.NextStake())
	}
}

func TestMartingaleSizer_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  MartingaleConfig
	}{
		{"zero base stake", MartingaleConfig{BaseStake: 0, Multiplier: 2, MaxSteps: 3}},
		{"multiplier at one", MartingaleConfig{BaseStake: 10, Multiplier: 1, MaxSteps: 3}},
		{"zero max steps", MartingaleConfig{BaseStake: 10, Multiplier: 2, MaxSteps: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMartingaleSizer(tt.cfg); err == nil {
				t.Error("expected a config error")
			}
		})
	}
}
