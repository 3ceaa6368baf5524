package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

// Repository implements the ports.CandleRepository, ports.TradeRepository
// and ports.BootstrapRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/binarylab.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS candles (
		asset TEXT NOT NULL,
		timeframe INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (asset, timeframe, timestamp)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		asset TEXT NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		signal_id TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		signal_price REAL NOT NULL DEFAULT 0,
		signal_time INTEGER NOT NULL DEFAULT 0,
		entry_time INTEGER NOT NULL,
		requested_price REAL NOT NULL,
		executed_price REAL NOT NULL,
		slippage_pct REAL NOT NULL,
		latency_ms INTEGER NOT NULL,
		stake REAL NOT NULL,
		tp_price REAL NOT NULL,
		sl_price REAL NOT NULL,
		tp_pct REAL NOT NULL,
		sl_pct REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		exit_price REAL NOT NULL,
		exit_time INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		bars_held INTEGER NOT NULL,
		exit_timeframe INTEGER NOT NULL DEFAULT 0,
		exit_open REAL NOT NULL DEFAULT 0,
		exit_high REAL NOT NULL DEFAULT 0,
		exit_low REAL NOT NULL DEFAULT 0,
		exit_close REAL NOT NULL DEFAULT 0,
		exit_volume REAL NOT NULL DEFAULT 0,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		outcome TEXT NOT NULL,
		max_favorable_pct REAL NOT NULL,
		max_adverse_pct REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bootstrap_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset TEXT NOT NULL,
		trade_count INTEGER NOT NULL,
		original_win_rate REAL NOT NULL,
		bootstrap_mean REAL NOT NULL,
		bootstrap_stddev REAL NOT NULL,
		ci_lower REAL NOT NULL,
		ci_upper REAL NOT NULL,
		p_value REAL NOT NULL,
		iterations INTEGER NOT NULL,
		is_stable INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_candles_asset_timeframe_ts ON candles (asset, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_asset_exit_time ON trades (asset, exit_time);
	CREATE INDEX IF NOT EXISTS idx_bootstrap_runs_asset ON bootstrap_runs (asset, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- CandleRepository Implementation ---

// SaveCandles persists a batch of closed candles. Re-saving a candle for
// the same asset, timeframe and timestamp overwrites it, so replays of
// the same stream are idempotent.
func (r *Repository) SaveCandles(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin candle batch transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
	INSERT OR REPLACE INTO candles (asset, timeframe, timestamp, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Asset, c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to insert candle %s/%d@%d: %w", c.Asset, c.Timeframe, c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candle batch: %w", err)
	}
	r.logger.Debug(ctx, "Candle batch saved", map[string]interface{}{"count": len(candles)})
	return nil
}

// FindCandles retrieves the most recent candles for an asset+timeframe,
// returned oldest first, up to limit.
func (r *Repository) FindCandles(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error) {
	const query = `
	SELECT asset, timeframe, timestamp, open, high, low, close, volume
	FROM candles
	WHERE asset = ? AND timeframe = ?
	ORDER BY timestamp DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, asset, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s/%d: %w", asset, timeframe, err)
	}
	defer rows.Close()

	candles := make([]*domain.Candle, 0)
	for rows.Next() {
		c := &domain.Candle{}
		if err := rows.Scan(&c.Asset, &c.Timeframe, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle during FindCandles: %w", err)
		}
		candles = append(candles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}

	// Query runs newest-first to honor the limit; callers get oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// --- TradeRepository Implementation ---

// SaveTrade persists a completed trade record.
func (r *Repository) SaveTrade(ctx context.Context, trade *domain.TradeWithContext) (int64, error) {
	const query = `
	INSERT INTO trades (id, asset, strategy, signal_id, direction, signal_price, signal_time,
	                    entry_time, requested_price, executed_price, slippage_pct, latency_ms,
	                    stake, tp_price, sl_price, tp_pct, sl_pct,
	                    exit_reason, exit_price, exit_time, duration_ms, bars_held,
	                    exit_timeframe, exit_open, exit_high, exit_low, exit_close, exit_volume,
	                    pnl, pnl_pct, outcome, max_favorable_pct, max_adverse_pct)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var strategy, signalID string
	var signalPrice float64
	var signalTime int64
	direction := string(domain.Call)
	if trade.Signal != nil {
		strategy = trade.Signal.Strategy
		signalID = trade.Signal.ID.String()
		signalPrice = trade.Signal.Price
		signalTime = trade.Signal.Timestamp
		direction = string(trade.Signal.Direction)
	}

	var exitTimeframe int64
	var exitOpen, exitHigh, exitLow, exitClose, exitVolume float64
	if trade.Exit.Candle != nil {
		exitTimeframe = trade.Exit.Candle.Timeframe
		exitOpen = trade.Exit.Candle.Open
		exitHigh = trade.Exit.Candle.High
		exitLow = trade.Exit.Candle.Low
		exitClose = trade.Exit.Candle.Close
		exitVolume = trade.Exit.Candle.Volume
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.ID.String(), trade.Asset, strategy, signalID, direction, signalPrice, signalTime,
		trade.Entry.Timestamp, trade.Entry.RequestedPrice, trade.Entry.ExecutedPrice, trade.Entry.SlippagePct, trade.Entry.LatencyMs,
		trade.Entry.Stake, trade.Entry.TPPrice, trade.Entry.SLPrice, trade.Entry.TPPct, trade.Entry.SLPct,
		string(trade.Exit.Reason), trade.Exit.ExecutedPrice, trade.Exit.Timestamp, trade.Exit.DurationMs, trade.Exit.BarsHeld,
		exitTimeframe, exitOpen, exitHigh, exitLow, exitClose, exitVolume,
		trade.Result.PNL, trade.Result.PNLPct, string(trade.Result.Outcome), trade.Result.MaxFavorablePct, trade.Result.MaxAdversePct)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade %s for asset %s: %w", trade.ID, trade.Asset, err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.ID, err)
	}
	r.logger.Debug(ctx, "Trade saved", map[string]interface{}{"tradeID": trade.ID.String(), "asset": trade.Asset, "pnl": trade.Result.PNL})
	return rowID, nil
}

// FindByAsset retrieves the most recent trades for an asset, up to a limit.
func (r *Repository) FindByAsset(ctx context.Context, asset string, limit int) ([]*domain.TradeWithContext, error) {
	const query = `
	SELECT id, asset, strategy, signal_id, direction, signal_price, signal_time,
	       entry_time, requested_price, executed_price, slippage_pct, latency_ms,
	       stake, tp_price, sl_price, tp_pct, sl_pct,
	       exit_reason, exit_price, exit_time, duration_ms, bars_held,
	       exit_timeframe, exit_open, exit_high, exit_low, exit_close, exit_volume,
	       pnl, pnl_pct, outcome, max_favorable_pct, max_adverse_pct
	FROM trades
	WHERE asset = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, asset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for asset %s: %w", asset, err)
	}
	defer rows.Close()

	trades := make([]*domain.TradeWithContext, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindByAsset: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// FindOutcomes retrieves the win/loss list for an asset in exit-time
// order, the form consumed by bootstrap validation.
func (r *Repository) FindOutcomes(ctx context.Context, asset string) ([]domain.TradeOutcome, error) {
	const query = `SELECT outcome, pnl, exit_time FROM trades WHERE asset = ? ORDER BY exit_time ASC`

	rows, err := r.db.QueryContext(ctx, query, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade outcomes for asset %s: %w", asset, err)
	}
	defer rows.Close()

	outcomes := make([]domain.TradeOutcome, 0)
	for rows.Next() {
		var outcome string
		var o domain.TradeOutcome
		if err := rows.Scan(&outcome, &o.PNL, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade outcome: %w", err)
		}
		o.Outcome = domain.Outcome(outcome)
		outcomes = append(outcomes, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}
	return outcomes, nil
}

// --- BootstrapRepository Implementation ---

// SaveRun persists the summary of one bootstrap validation run and
// returns its assigned ID.
func (r *Repository) SaveRun(ctx context.Context, run *ports.BootstrapRun) (int64, error) {
	const query = `
	INSERT INTO bootstrap_runs (asset, trade_count, original_win_rate, bootstrap_mean, bootstrap_stddev,
	                            ci_lower, ci_upper, p_value, iterations, is_stable, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := run.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	result, err := r.db.ExecContext(ctx, query,
		run.Asset, run.TradeCount, run.OriginalWinRate, run.BootstrapMean, run.BootstrapStdDev,
		run.CILower, run.CIUpper, run.PValue, run.Iterations, run.IsStable, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert bootstrap run for asset %s: %w", run.Asset, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for bootstrap run %s: %w", run.Asset, err)
	}
	run.ID = id
	run.CreatedAt = createdAt
	r.logger.Debug(ctx, "Bootstrap run saved", map[string]interface{}{"runID": id, "asset": run.Asset, "isStable": run.IsStable})
	return id, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.TradeWithContext struct.
func scanTrade(s scanner) (*domain.TradeWithContext, error) {
	trade := &domain.TradeWithContext{}
	var id, strategy, signalID, direction, exitReason, outcome string
	var signalPrice float64
	var signalTime, exitTimeframe int64
	var exitOpen, exitHigh, exitLow, exitClose, exitVolume float64

	err := s.Scan(
		&id, &trade.Asset, &strategy, &signalID, &direction, &signalPrice, &signalTime,
		&trade.Entry.Timestamp, &trade.Entry.RequestedPrice, &trade.Entry.ExecutedPrice, &trade.Entry.SlippagePct, &trade.Entry.LatencyMs,
		&trade.Entry.Stake, &trade.Entry.TPPrice, &trade.Entry.SLPrice, &trade.Entry.TPPct, &trade.Entry.SLPct,
		&exitReason, &trade.Exit.ExecutedPrice, &trade.Exit.Timestamp, &trade.Exit.DurationMs, &trade.Exit.BarsHeld,
		&exitTimeframe, &exitOpen, &exitHigh, &exitLow, &exitClose, &exitVolume,
		&trade.Result.PNL, &trade.Result.PNLPct, &outcome, &trade.Result.MaxFavorablePct, &trade.Result.MaxAdversePct)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	tradeID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid trade ID %q: %w", id, err)
	}
	trade.ID = tradeID
	trade.Exit.Reason = domain.ExitReason(exitReason)
	trade.Result.Outcome = domain.Outcome(outcome)
	trade.Result.MaxFavorable = trade.Result.MaxFavorablePct * trade.Entry.ExecutedPrice
	trade.Result.MaxAdverse = trade.Result.MaxAdversePct * trade.Entry.ExecutedPrice

	if strategy != "" {
		sigID, err := uuid.Parse(signalID)
		if err != nil {
			sigID = uuid.Nil
		}
		trade.Signal = &domain.Signal{
			ID:        sigID,
			Strategy:  strategy,
			Asset:     trade.Asset,
			Direction: domain.TradeDirection(direction),
			Price:     signalPrice,
			Timestamp: signalTime,
		}
	}

	if exitTimeframe > 0 {
		trade.Exit.Candle = &domain.Candle{
			Asset:     trade.Asset,
			Timeframe: exitTimeframe,
			Timestamp: trade.Exit.Timestamp,
			Open:      exitOpen,
			High:      exitHigh,
			Low:       exitLow,
			Close:     exitClose,
			Volume:    exitVolume,
		}
	}
	return trade, nil
}
