package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func candle(ts int64, close float64) *domain.Candle {
	return &domain.Candle{
		Asset:     "R_75",
		Timeframe: 60,
		Timestamp: ts,
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    10,
	}
}

func sampleTrade(exitTs int64, pnl float64) *domain.TradeWithContext {
	outcome := domain.Loss
	if pnl > 0 {
		outcome = domain.Win
	}
	return &domain.TradeWithContext{
		ID:    uuid.New(),
		Asset: "R_75",
		Signal: &domain.Signal{
			ID:        uuid.New(),
			Strategy:  "rsi_reversion",
			Asset:     "R_75",
			Direction: domain.Call,
			Price:     100,
			Timestamp: exitTs - 120,
		},
		Entry: domain.EntryRecord{
			Timestamp:      exitTs - 120,
			RequestedPrice: 100,
			ExecutedPrice:  100,
			Stake:          10,
			TPPrice:        105,
			SLPrice:        97,
			TPPct:          0.05,
			SLPct:          -0.03,
		},
		Exit: domain.ExitRecord{
			Reason:        domain.ExitReasonTakeProfit,
			ExecutedPrice: 105,
			Candle:        candle(exitTs, 104),
			Timestamp:     exitTs,
			DurationMs:    120000,
			BarsHeld:      2,
		},
		Result: domain.TradeResult{
			PNL:             pnl,
			PNLPct:          pnl / 10,
			Outcome:         outcome,
			MaxFavorablePct: 0.06,
			MaxAdversePct:   -0.01,
		},
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	if _, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")}); err == nil {
		t.Error("expected an error without a logger")
	}
}

func TestSaveAndFindCandles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	candles := []*domain.Candle{
		candle(1700000000, 100),
		candle(1700000060, 101),
		candle(1700000120, 102),
		candle(1700000180, 103),
	}
	if err := repo.SaveCandles(ctx, candles); err != nil {
		t.Fatalf("SaveCandles failed: %v", err)
	}

	found, err := repo.FindCandles(ctx, "R_75", 60, 3)
	if err != nil {
		t.Fatalf("FindCandles failed: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 candles (limit), got %d", len(found))
	}
	// The newest 3, oldest first.
	if found[0].Timestamp != 1700000060 || found[2].Timestamp != 1700000180 {
		t.Errorf("candles not oldest-first within limit: %d..%d", found[0].Timestamp, found[2].Timestamp)
	}
	if found[2].Close != 103 {
		t.Errorf("Close = %v, want 103", found[2].Close)
	}
}

func TestSaveCandles_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveCandles(ctx, []*domain.Candle{candle(1700000000, 100)}); err != nil {
		t.Fatalf("SaveCandles failed: %v", err)
	}
	// Same bar again with a revised close.
	if err := repo.SaveCandles(ctx, []*domain.Candle{candle(1700000000, 99)}); err != nil {
		t.Fatalf("re-saving the same bar should not fail: %v", err)
	}

	found, err := repo.FindCandles(ctx, "R_75", 60, 10)
	if err != nil {
		t.Fatalf("FindCandles failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 candle after overwrite, got %d", len(found))
	}
	if found[0].Close != 99 {
		t.Errorf("Close = %v, want overwritten 99", found[0].Close)
	}
}

func TestFindCandles_Empty(t *testing.T) {
	repo := newTestRepo(t)

	found, err := repo.FindCandles(context.Background(), "R_100", 60, 10)
	if err != nil {
		t.Fatalf("FindCandles failed: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected no candles, got %d", len(found))
	}
}

func TestSaveAndFindTrades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	saved := sampleTrade(1700000300, 0.5)
	if _, err := repo.SaveTrade(ctx, saved); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}

	trades, err := repo.FindByAsset(ctx, "R_75", 10)
	if err != nil {
		t.Fatalf("FindByAsset failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	got := trades[0]
	if got.ID != saved.ID {
		t.Errorf("ID = %v, want %v", got.ID, saved.ID)
	}
	if got.Signal == nil || got.Signal.Strategy != "rsi_reversion" || got.Signal.Direction != domain.Call {
		t.Errorf("signal not restored: %+v", got.Signal)
	}
	if got.Entry.TPPrice != 105 || got.Entry.SLPrice != 97 {
		t.Errorf("entry levels not restored: %+v", got.Entry)
	}
	if got.Exit.Reason != domain.ExitReasonTakeProfit || got.Exit.BarsHeld != 2 {
		t.Errorf("exit record not restored: %+v", got.Exit)
	}
	if got.Exit.Candle == nil || got.Exit.Candle.Close != 104 {
		t.Errorf("exit candle not restored: %+v", got.Exit.Candle)
	}
	if got.Result.PNL != 0.5 || got.Result.Outcome != domain.Win {
		t.Errorf("result not restored: %+v", got.Result)
	}
}

func TestSaveTrade_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trade := sampleTrade(1700000300, 0.5)
	if _, err := repo.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}
	if _, err := repo.SaveTrade(ctx, trade); err == nil {
		t.Error("expected an error saving the same trade ID twice")
	}
}

func TestFindOutcomes_Chronological(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Insert out of chronological order.
	for _, tr := range []*domain.TradeWithContext{
		sampleTrade(1700000600, -0.3),
		sampleTrade(1700000300, 0.5),
		sampleTrade(1700000450, 0.5),
	} {
		if _, err := repo.SaveTrade(ctx, tr); err != nil {
			t.Fatalf("SaveTrade failed: %v", err)
		}
	}

	outcomes, err := repo.FindOutcomes(ctx, "R_75")
	if err != nil {
		t.Fatalf("FindOutcomes failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Timestamp != 1700000300 || outcomes[2].Timestamp != 1700000600 {
		t.Errorf("outcomes not chronological: %+v", outcomes)
	}
	if outcomes[2].Outcome != domain.Loss {
		t.Errorf("last outcome = %v, want Loss", outcomes[2].Outcome)
	}
}

func TestSaveRun(t *testing.T) {
	repo := newTestRepo(t)

	run := &ports.BootstrapRun{
		Asset:           "R_75",
		TradeCount:      200,
		OriginalWinRate: 0.52,
		BootstrapMean:   0.521,
		BootstrapStdDev: 0.035,
		CILower:         0.45,
		CIUpper:         0.59,
		PValue:          0.61,
		Iterations:      1000,
		IsStable:        true,
	}
	id, err := repo.SaveRun(context.Background(), run)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Errorf("run ID not assigned: id=%d run.ID=%d", id, run.ID)
	}
	if run.CreatedAt == 0 {
		t.Error("CreatedAt should default to now")
	}
}
