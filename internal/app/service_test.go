package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"binarylab/config"
	"binarylab/internal/domain"
	"binarylab/internal/ports"
	"binarylab/internal/sizing"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockFeed struct {
	history []*domain.Candle
	doneCh  chan struct{}
	stopCh  chan struct{}
}

func newMockFeed(history []*domain.Candle) *mockFeed {
	return &mockFeed{
		history: history,
		doneCh:  make(chan struct{}),
		stopCh:  make(chan struct{}, 1),
	}
}

func (f *mockFeed) StreamTicks(ctx context.Context, asset string, handler func(tick *domain.Tick), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	go func() {
		<-f.stopCh
		close(f.doneCh)
	}()
	return f.doneCh, f.stopCh, nil
}

func (f *mockFeed) GetCandleHistory(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error) {
	return f.history, nil
}

func (f *mockFeed) Ping(ctx context.Context) error { return nil }

func (f *mockFeed) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Unix(1700000000, 0), nil
}

type mockCandleRepo struct {
	saved [][]*domain.Candle
}

func (r *mockCandleRepo) SaveCandles(ctx context.Context, candles []*domain.Candle) error {
	r.saved = append(r.saved, candles)
	return nil
}

func (r *mockCandleRepo) FindCandles(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error) {
	return nil, nil
}

type mockTradeRepo struct {
	saved []*domain.TradeWithContext
}

func (r *mockTradeRepo) SaveTrade(ctx context.Context, trade *domain.TradeWithContext) (int64, error) {
	r.saved = append(r.saved, trade)
	return int64(len(r.saved)), nil
}

func (r *mockTradeRepo) FindByAsset(ctx context.Context, asset string, limit int) ([]*domain.TradeWithContext, error) {
	return r.saved, nil
}

func (r *mockTradeRepo) FindOutcomes(ctx context.Context, asset string) ([]domain.TradeOutcome, error) {
	outcomes := make([]domain.TradeOutcome, 0, len(r.saved))
	for _, t := range r.saved {
		outcomes = append(outcomes, t.ToOutcome())
	}
	return outcomes, nil
}

type mockBootstrapRepo struct {
	runs []*ports.BootstrapRun
}

func (r *mockBootstrapRepo) SaveRun(ctx context.Context, run *ports.BootstrapRun) (int64, error) {
	r.runs = append(r.runs, run)
	return int64(len(r.runs)), nil
}

// stubStrategy emits a signal when the candle history reaches one of
// the configured lengths.
type stubStrategy struct {
	required int
	signalAt map[int]domain.TradeDirection
}

func (s *stubStrategy) Name() string         { return "stub" }
func (s *stubStrategy) RequiredCandles() int { return s.required }

func (s *stubStrategy) CheckEntry(ctx context.Context, candles []*domain.Candle) *domain.Signal {
	dir, ok := s.signalAt[len(candles)]
	if !ok {
		return nil
	}
	last := candles[len(candles)-1]
	return &domain.Signal{
		ID:        uuid.New(),
		Strategy:  "stub",
		Asset:     last.Asset,
		Direction: dir,
		Price:     last.Close,
		Timestamp: last.Timestamp + last.Timeframe,
	}
}

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Asset:               "R_75",
		Timeframe:           60,
		Stake:               10,
		TakeProfit:          0.05,
		StopLoss:            0.03,
		MaxBarsInTrade:      3,
		PayoutMultiplier:    1.0,
		BootstrapIterations: 200,
		BootstrapConfidence: 0.95,
		BootstrapMinTrades:  30,
		ValidateEveryTrades: 100,
	}
}

// bar builds a flat candle at close 100 with a custom high/low range.
func bar(i int, high, low float64) *domain.Candle {
	return &domain.Candle{
		Asset:     "R_75",
		Timeframe: 60,
		Timestamp: 1700000000 + int64(i)*60,
		Open:      100,
		High:      high,
		Low:       low,
		Close:     100,
		Volume:    1,
	}
}

type fixture struct {
	svc           *ResearchService
	candleRepo    *mockCandleRepo
	tradeRepo     *mockTradeRepo
	bootstrapRepo *mockBootstrapRepo
}

func newFixture(t *testing.T, cfg *config.Config, strat ports.Strategy, sizer sizing.Sizer) *fixture {
	t.Helper()
	f := &fixture{
		candleRepo:    &mockCandleRepo{},
		tradeRepo:     &mockTradeRepo{},
		bootstrapRepo: &mockBootstrapRepo{},
	}
	svc, err := NewResearchService(cfg, &mockLogger{}, newMockFeed(nil), f.candleRepo, f.tradeRepo, f.bootstrapRepo, strat, sizer)
	if err != nil {
		t.Fatalf("NewResearchService failed: %v", err)
	}
	f.svc = svc
	return f
}

func fixedSizer(t *testing.T, stake float64) sizing.Sizer {
	t.Helper()
	s, err := sizing.NewFixedSizer(stake)
	if err != nil {
		t.Fatalf("NewFixedSizer failed: %v", err)
	}
	return s
}

// --- Tests ---

func TestNewResearchService_MissingDependencies(t *testing.T) {
	cfg := testConfig()
	strat := &stubStrategy{required: 3}
	sizer := fixedSizer(t, 10)
	logger := &mockLogger{}
	feed := newMockFeed(nil)
	candleRepo := &mockCandleRepo{}
	tradeRepo := &mockTradeRepo{}
	bootstrapRepo := &mockBootstrapRepo{}

	if _, err := NewResearchService(nil, logger, feed, candleRepo, tradeRepo, bootstrapRepo, strat, sizer); err == nil {
		t.Error("expected an error without a config")
	}
	if _, err := NewResearchService(cfg, nil, feed, candleRepo, tradeRepo, bootstrapRepo, strat, sizer); err == nil {
		t.Error("expected an error without a logger")
	}
	if _, err := NewResearchService(cfg, logger, nil, candleRepo, tradeRepo, bootstrapRepo, strat, sizer); err == nil {
		t.Error("expected an error without a feed")
	}
	if _, err := NewResearchService(cfg, logger, feed, candleRepo, tradeRepo, bootstrapRepo, nil, sizer); err == nil {
		t.Error("expected an error without a strategy")
	}
	if _, err := NewResearchService(cfg, logger, feed, candleRepo, tradeRepo, bootstrapRepo, strat, nil); err == nil {
		t.Error("expected an error without a sizer")
	}
}

func TestNewResearchService_InvalidExitPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBarsInTrade = 0

	_, err := NewResearchService(cfg, &mockLogger{}, newMockFeed(nil), &mockCandleRepo{}, &mockTradeRepo{}, &mockBootstrapRepo{}, &stubStrategy{required: 3}, fixedSizer(t, 10))
	if err == nil {
		t.Error("expected an error for an invalid exit policy")
	}
}

func TestHandleClosedCandle_TakeProfitTrade(t *testing.T) {
	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{3: domain.Call}}
	f := newFixture(t, testConfig(), strat, fixedSizer(t, 10))

	// Three flat bars trigger the signal; entry opens at close 100 with
	// TP 105 / SL 97.
	for i := 0; i < 3; i++ {
		f.svc.handleClosedCandle(bar(i, 101, 99))
	}
	if len(f.tradeRepo.saved) != 0 {
		t.Fatalf("no trade should be saved before the position resolves, got %d", len(f.tradeRepo.saved))
	}

	// The next bar tags the take-profit level.
	f.svc.handleClosedCandle(bar(3, 106, 99))

	if len(f.tradeRepo.saved) != 1 {
		t.Fatalf("expected 1 saved trade, got %d", len(f.tradeRepo.saved))
	}
	trade := f.tradeRepo.saved[0]
	if trade.Exit.Reason != domain.ExitReasonTakeProfit {
		t.Errorf("Exit.Reason = %q, want take profit", trade.Exit.Reason)
	}
	if trade.Result.Outcome != domain.Win {
		t.Errorf("Outcome = %q, want WIN", trade.Result.Outcome)
	}
	if trade.Entry.ExecutedPrice != 100 || trade.Entry.Stake != 10 {
		t.Errorf("entry record wrong: %+v", trade.Entry)
	}
	if trade.Result.PNL != 0.5 {
		t.Errorf("PNL = %v, want 0.5", trade.Result.PNL)
	}
	if trade.Exit.BarsHeld != 1 {
		t.Errorf("BarsHeld = %d, want 1", trade.Exit.BarsHeld)
	}

	// Every closed bar must be persisted.
	if len(f.candleRepo.saved) != 4 {
		t.Errorf("expected 4 candle save calls, got %d", len(f.candleRepo.saved))
	}
}

func TestHandleClosedCandle_TimeoutOnlyAfterFullWindow(t *testing.T) {
	// Signals at history lengths 3 and 4 prove no overlapping entry is
	// taken while a position is pending.
	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{
		3: domain.Call,
		4: domain.Call,
	}}
	f := newFixture(t, testConfig(), strat, fixedSizer(t, 10))

	for i := 0; i < 3; i++ {
		f.svc.handleClosedCandle(bar(i, 101, 99))
	}

	// Two more flat bars: neither TP nor SL trigger, and the bar budget
	// (3) is not yet exhausted, so the trade must stay open.
	f.svc.handleClosedCandle(bar(3, 101, 99))
	f.svc.handleClosedCandle(bar(4, 101, 99))
	if len(f.tradeRepo.saved) != 0 {
		t.Fatalf("trade finalized on a partial window: %d saved", len(f.tradeRepo.saved))
	}

	// Third bar exhausts the budget: TIMEOUT at the bar close.
	f.svc.handleClosedCandle(bar(5, 101, 99))
	if len(f.tradeRepo.saved) != 1 {
		t.Fatalf("expected 1 saved trade, got %d", len(f.tradeRepo.saved))
	}
	trade := f.tradeRepo.saved[0]
	if trade.Exit.Reason != domain.ExitReasonTimeout {
		t.Errorf("Exit.Reason = %q, want timeout", trade.Exit.Reason)
	}
	if trade.Exit.BarsHeld != 3 {
		t.Errorf("BarsHeld = %d, want 3", trade.Exit.BarsHeld)
	}
	// Flat close means zero PnL, which counts as a loss.
	if trade.Result.Outcome != domain.Loss {
		t.Errorf("Outcome = %q, want LOSS", trade.Result.Outcome)
	}
}

func TestHandleClosedCandle_MartingaleEscalatesAfterLoss(t *testing.T) {
	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{
		3: domain.Call,
		5: domain.Call,
	}}
	sizer, err := sizing.NewMartingaleSizer(sizing.MartingaleConfig{BaseStake: 10, Multiplier: 2, MaxSteps: 3})
	if err != nil {
		t.Fatalf("NewMartingaleSizer failed: %v", err)
	}
	f := newFixture(t, testConfig(), strat, sizer)

	// First entry at bar 2, stopped out on bar 3 (low 96 < SL 97).
	for i := 0; i < 3; i++ {
		f.svc.handleClosedCandle(bar(i, 101, 99))
	}
	f.svc.handleClosedCandle(bar(3, 101, 96))

	// Second entry at bar 4, take profit on bar 5 (high 106 > TP 105).
	f.svc.handleClosedCandle(bar(4, 101, 99))
	f.svc.handleClosedCandle(bar(5, 106, 99))

	if len(f.tradeRepo.saved) != 2 {
		t.Fatalf("expected 2 saved trades, got %d", len(f.tradeRepo.saved))
	}
	first, second := f.tradeRepo.saved[0], f.tradeRepo.saved[1]
	if first.Result.Outcome != domain.Loss {
		t.Errorf("first trade outcome = %q, want LOSS", first.Result.Outcome)
	}
	if first.Entry.Stake != 10 {
		t.Errorf("first stake = %v, want base stake 10", first.Entry.Stake)
	}
	if second.Entry.Stake != 20 {
		t.Errorf("second stake = %v, want escalated stake 20", second.Entry.Stake)
	}
}

func TestHandleClosedCandle_ValidationTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.ValidateEveryTrades = 1
	cfg.BootstrapMinTrades = 1
	seed := int64(42)
	cfg.BootstrapSeed = &seed

	strat := &stubStrategy{required: 3, signalAt: map[int]domain.TradeDirection{3: domain.Call}}
	f := newFixture(t, cfg, strat, fixedSizer(t, 10))

	for i := 0; i < 3; i++ {
		f.svc.handleClosedCandle(bar(i, 101, 99))
	}
	f.svc.handleClosedCandle(bar(3, 106, 99))

	if len(f.bootstrapRepo.runs) != 1 {
		t.Fatalf("expected 1 bootstrap run, got %d", len(f.bootstrapRepo.runs))
	}
	run := f.bootstrapRepo.runs[0]
	if run.Asset != "R_75" {
		t.Errorf("run asset = %q, want R_75", run.Asset)
	}
	if run.TradeCount != 1 {
		t.Errorf("run trade count = %d, want 1", run.TradeCount)
	}
	if run.OriginalWinRate != 1.0 {
		t.Errorf("run win rate = %v, want 1.0", run.OriginalWinRate)
	}
}

func TestStart_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	strat := &stubStrategy{required: 3}

	history := make([]*domain.Candle, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, bar(i, 101, 99))
	}
	feed := newMockFeed(history)
	candleRepo := &mockCandleRepo{}

	svc, err := NewResearchService(cfg, &mockLogger{}, feed, candleRepo, &mockTradeRepo{}, &mockBootstrapRepo{}, strat, fixedSizer(t, 10))
	if err != nil {
		t.Fatalf("NewResearchService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned error on graceful shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not shut down in time")
	}

	// Warmup candles must have been persisted.
	if len(candleRepo.saved) == 0 {
		t.Error("expected warmup candles to be persisted")
	}
}
