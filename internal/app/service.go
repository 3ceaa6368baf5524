package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"binarylab/config"
	"binarylab/internal/domain"
	"binarylab/internal/marketdata"
	"binarylab/internal/ports"
	"binarylab/internal/simulation"
	"binarylab/internal/sizing"
	"binarylab/internal/validation"
)

const (
	maxCandleCacheSize = 500 // Limit cache size to avoid memory issues
)

// ResearchService orchestrates the live paper-trading pipeline: ticks
// from the feed are aggregated into candles, the strategy proposes
// entries, the simulator resolves them against the bars that follow,
// and finished trades are persisted and periodically validated.
type ResearchService struct {
	cfg           *config.Config
	logger        ports.Logger
	feed          ports.MarketFeed
	candleRepo    ports.CandleRepository
	tradeRepo     ports.TradeRepository
	bootstrapRepo ports.BootstrapRepository
	strategy      ports.Strategy
	sizer         sizing.Sizer

	builder *marketdata.Builder

	// State fields
	mu                    sync.Mutex // Protects access to state fields below
	candleCache           []*domain.Candle
	pendingEntry          *domain.TradeEntry // At most one open simulated position
	pendingWindow         []*domain.Candle   // Bars seen since the pending entry
	tradesSinceValidation int
}

// NewResearchService creates a new application service instance.
func NewResearchService(
	cfg *config.Config,
	logger ports.Logger,
	feed ports.MarketFeed,
	candleRepo ports.CandleRepository,
	tradeRepo ports.TradeRepository,
	bootstrapRepo ports.BootstrapRepository,
	strat ports.Strategy,
	sizer sizing.Sizer,
) (*ResearchService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || feed == nil || candleRepo == nil || tradeRepo == nil || bootstrapRepo == nil || strat == nil || sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for ResearchService")
	}

	// The exit policy is applied on every closed bar; fail fast if it
	// cannot be valid.
	s := &ResearchService{
		cfg:           cfg,
		logger:        logger,
		feed:          feed,
		candleRepo:    candleRepo,
		tradeRepo:     tradeRepo,
		bootstrapRepo: bootstrapRepo,
		strategy:      strat,
		sizer:         sizer,
		candleCache:   make([]*domain.Candle, 0, maxCandleCacheSize),
	}
	if err := s.exitPolicy().Validate(); err != nil {
		return nil, err
	}

	builder, err := marketdata.NewBuilder(cfg.Asset, cfg.Timeframe, logger)
	if err != nil {
		return nil, err
	}
	builder.OnClose(s.handleClosedCandle)
	s.builder = builder

	return s, nil
}

func (s *ResearchService) exitPolicy() simulation.ExitPolicy {
	return simulation.ExitPolicy{
		MaxBarsInTrade:        s.cfg.MaxBarsInTrade,
		UseTrailingStop:       s.cfg.UseTrailingStop,
		TrailingActivationPct: s.cfg.TrailingActivation,
		TrailingDistancePct:   s.cfg.TrailingDistance,
		PayoutMultiplier:      s.cfg.PayoutMultiplier,
	}
}

// Start begins the research service's main loop.
func (s *ResearchService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Research Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel() // Cancel the main context
	}()

	// --- Initialization Steps ---
	// 1. Check feed connectivity
	if err := s.feed.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Market data feed is unreachable")
		return fmt.Errorf("feed ping failed: %w", err)
	}
	serverTime, err := s.feed.GetServerTime(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch feed server time")
		return fmt.Errorf("failed to fetch server time: %w", err)
	}
	s.logger.Info(ctx, "Feed connectivity verified", map[string]interface{}{"serverTime": serverTime.UTC().Format(time.RFC3339)})

	// 2. Warm up the candle cache from history
	required := s.strategy.RequiredCandles() + s.cfg.MaxBarsInTrade
	warmup := required
	if warmup < 200 {
		warmup = 200
	}
	s.logger.Info(ctx, "Loading warmup candle history", map[string]interface{}{"count": warmup})
	history, err := s.feed.GetCandleHistory(ctx, s.cfg.Asset, s.cfg.Timeframe, warmup)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load warmup candle history")
		return fmt.Errorf("failed to load warmup candles: %w", err)
	}
	if len(history) < required {
		err := fmt.Errorf("not enough warmup candles loaded (%d) to meet strategy requirement (%d)", len(history), required)
		s.logger.Error(ctx, err, "Insufficient historical data")
		return err
	}

	s.mu.Lock()
	s.candleCache = append(s.candleCache, history...)
	s.trimCacheLocked()
	s.mu.Unlock()

	if err := s.candleRepo.SaveCandles(ctx, history); err != nil {
		// Persistence of warmup bars is best effort; live bars matter more.
		s.logger.Warn(ctx, "Failed to persist warmup candles", map[string]interface{}{"error": err.Error()})
	}
	s.logger.Info(ctx, "Warmup candles loaded", map[string]interface{}{"count": len(history)})

	// --- Start Tick Stream ---
	wsDoneCh, wsStopCh, err := s.feed.StreamTicks(ctx, s.cfg.Asset, s.handleTick, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start tick stream")
		return fmt.Errorf("failed to start tick stream: %w", err)
	}
	s.logger.Info(ctx, "Tick stream started", map[string]interface{}{"asset": s.cfg.Asset, "timeframe": s.cfg.Timeframe})

	// --- Main Loop ---
	// The main work happens in handleTick/handleClosedCandle triggered by
	// the tick stream. We just wait for the context to be canceled or the
	// stream to finish.

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
		select {
		case wsStopCh <- struct{}{}:
			s.logger.Info(ctx, "Stop signal sent to tick stream")
		default:
			s.logger.Warn(ctx, "Failed to send stop signal to tick stream (already closed?)")
		}
		select {
		case <-wsDoneCh:
			s.logger.Info(ctx, "Tick stream shut down gracefully")
		case <-time.After(5 * time.Second): // Timeout for stream shutdown
			s.logger.Warn(ctx, "Timeout waiting for tick stream to shut down")
		}
	case <-wsDoneCh:
		// Stream closed unexpectedly (e.g., max reconnect attempts failed)
		s.logger.Error(ctx, fmt.Errorf("tick stream closed unexpectedly"), "Tick stream stopped")
		return fmt.Errorf("tick stream stopped unexpectedly")
	}

	s.logger.Info(ctx, "Research Service stopped.")
	return nil
}

// handleTick feeds raw ticks into the candle builder. Closed candles
// come back via handleClosedCandle.
func (s *ResearchService) handleTick(tick *domain.Tick) {
	ctx := context.Background()
	if err := s.builder.AddTick(ctx, tick); err != nil {
		s.logger.Warn(ctx, "Tick rejected by candle builder", map[string]interface{}{
			"asset": tick.Asset,
			"error": err.Error(),
		})
	}
}

// handleStreamError handles errors reported by the tick stream. The
// reconnection logic lives in the feed adapter; this is for visibility.
func (s *ResearchService) handleStreamError(err error) {
	s.logger.Error(context.Background(), err, "Tick stream error reported")
}

// handleClosedCandle is the core logic loop, triggered once per
// completed bar: persist the bar, advance any open simulated position,
// then look for a fresh entry.
func (s *ResearchService) handleClosedCandle(candle *domain.Candle) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug(ctx, "Candle closed", map[string]interface{}{
		"asset":     candle.Asset,
		"timestamp": candle.Timestamp,
		"close":     candle.Close,
	})

	// Update candle cache
	s.candleCache = append(s.candleCache, candle)
	s.trimCacheLocked()

	if err := s.candleRepo.SaveCandles(ctx, []*domain.Candle{candle}); err != nil {
		s.logger.Error(ctx, err, "Failed to persist closed candle", map[string]interface{}{"timestamp": candle.Timestamp})
		// Keep going; the in-memory pipeline is still consistent.
	}

	// --- Advance Open Position ---
	if s.pendingEntry != nil {
		s.pendingWindow = append(s.pendingWindow, candle)
		if done := s.resolvePendingLocked(ctx); !done {
			// Still open; no new entries while a position is pending.
			return
		}
	}

	// --- Check Entry Conditions ---
	if len(s.candleCache) < s.strategy.RequiredCandles() {
		return
	}
	sig := s.strategy.CheckEntry(ctx, s.candleCache)
	if sig == nil {
		return
	}

	stake := s.sizer.NextStake()
	sign := sig.Direction.Sign()
	entry := &domain.TradeEntry{
		Timestamp:  candle.Timestamp + candle.Timeframe,
		Direction:  sig.Direction,
		EntryPrice: candle.Close,
		Stake:      stake,
		Signal:     sig,
	}
	if s.cfg.TakeProfit > 0 {
		entry.TPPrice = candle.Close * (1 + sign*s.cfg.TakeProfit)
	}
	if s.cfg.StopLoss > 0 {
		entry.SLPrice = candle.Close * (1 - sign*s.cfg.StopLoss)
	}

	s.pendingEntry = entry
	s.pendingWindow = nil
	s.logger.Info(ctx, "Entry opened", map[string]interface{}{
		"strategy":  sig.Strategy,
		"direction": string(sig.Direction),
		"price":     entry.EntryPrice,
		"stake":     stake,
		"tp":        entry.TPPrice,
		"sl":        entry.SLPrice,
	})
}

// resolvePendingLocked re-simulates the pending entry against the bars
// seen so far. Returns true when the trade is finished. An exit rule
// firing inside the window finishes it; a TIMEOUT verdict is only final
// once the full bar budget has been observed.
func (s *ResearchService) resolvePendingLocked(ctx context.Context) bool {
	trade, err := simulation.Simulate(s.pendingEntry, s.pendingWindow, s.exitPolicy())
	if err != nil {
		s.logger.Error(ctx, err, "Simulation of pending entry failed; dropping entry")
		s.pendingEntry = nil
		s.pendingWindow = nil
		return true
	}
	if trade == nil {
		return false
	}
	if trade.Exit.Reason == domain.ExitReasonTimeout && len(s.pendingWindow) < s.cfg.MaxBarsInTrade {
		return false // Not a real timeout yet, just an exhausted partial window
	}

	s.pendingEntry = nil
	s.pendingWindow = nil

	if _, err := s.tradeRepo.SaveTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, "Failed to persist finished trade", map[string]interface{}{"tradeID": trade.ID.String()})
	}
	s.sizer.RecordOutcome(trade.Result.Outcome)
	s.tradesSinceValidation++

	s.logger.Info(ctx, "Trade finished", map[string]interface{}{
		"tradeID":  trade.ID.String(),
		"reason":   string(trade.Exit.Reason),
		"outcome":  string(trade.Result.Outcome),
		"pnl":      trade.Result.PNL,
		"barsHeld": trade.Exit.BarsHeld,
	})

	if s.tradesSinceValidation >= s.cfg.ValidateEveryTrades {
		s.runValidationLocked(ctx)
	}
	return true
}

// runValidationLocked bootstraps the accumulated trade outcomes and
// records the verdict.
func (s *ResearchService) runValidationLocked(ctx context.Context) {
	outcomes, err := s.tradeRepo.FindOutcomes(ctx, s.cfg.Asset)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load trade outcomes for validation")
		return
	}
	if len(outcomes) < s.cfg.BootstrapMinTrades {
		s.logger.Debug(ctx, "Not enough trades for validation yet", map[string]interface{}{
			"have": len(outcomes),
			"need": s.cfg.BootstrapMinTrades,
		})
		return
	}

	result, err := validation.RunBootstrapTest(outcomes, validation.BootstrapConfig{
		Iterations:      s.cfg.BootstrapIterations,
		ConfidenceLevel: s.cfg.BootstrapConfidence,
		Seed:            s.cfg.BootstrapSeed,
	})
	if err != nil {
		s.logger.Error(ctx, err, "Bootstrap validation failed")
		return
	}

	run := &ports.BootstrapRun{
		Asset:           s.cfg.Asset,
		TradeCount:      len(outcomes),
		OriginalWinRate: result.OriginalWinRate,
		BootstrapMean:   result.BootstrapMean,
		BootstrapStdDev: result.BootstrapStdDev,
		CILower:         result.ConfidenceIntervalLower,
		CIUpper:         result.ConfidenceIntervalUpper,
		PValue:          result.PValue,
		Iterations:      result.Iterations,
		IsStable:        result.IsStable,
	}
	if _, err := s.bootstrapRepo.SaveRun(ctx, run); err != nil {
		s.logger.Error(ctx, err, "Failed to persist bootstrap run")
	}
	s.tradesSinceValidation = 0

	s.logger.Info(ctx, "Bootstrap validation recorded", map[string]interface{}{
		"trades":   run.TradeCount,
		"winRate":  run.OriginalWinRate,
		"ciLower":  run.CILower,
		"ciUpper":  run.CIUpper,
		"pValue":   run.PValue,
		"isStable": run.IsStable,
	})
}

// trimCacheLocked keeps the candle cache bounded.
func (s *ResearchService) trimCacheLocked() {
	if len(s.candleCache) > maxCandleCacheSize {
		s.candleCache = s.candleCache[len(s.candleCache)-maxCandleCacheSize:]
	}
}
