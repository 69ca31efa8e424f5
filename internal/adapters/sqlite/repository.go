package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"
)

// Repository implements the ports.BacktestResultRepository and
// ports.SignalRepository interfaces using SQLite.
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
		dbPath = "./data/signal_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Evaluators journal concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)
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
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS backtest_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		start_date TIMESTAMP NOT NULL,
		num_trades INTEGER NOT NULL,
		return_percentage REAL NOT NULL,
		winrate REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		tp_m REAL NOT NULL,
		sl_m REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		tp TEXT NOT NULL,
		sl TEXT NOT NULL,
		max_leverage INTEGER NOT NULL DEFAULT 0,
		candle_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_backtest_results_pair_start ON backtest_results (symbol, timeframe, start_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_candle ON signals (symbol, timeframe, signal_type, candle_time);
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

// --- BacktestResultRepository Implementation ---

// InsertBacktestResult saves a backtest row and returns its assigned ID.
func (r *Repository) InsertBacktestResult(ctx context.Context, res *domain.BacktestResult) (int64, error) {
	const query = `
	INSERT INTO backtest_results (symbol, timeframe, start_date, num_trades, return_percentage,
	                              winrate, max_drawdown, tp_m, sl_m, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, query,
		res.Symbol, res.Timeframe, res.StartDate.UTC(), res.NumTrades, res.ReturnPercentage,
		res.WinRate, res.MaxDrawdown, res.TPMultiplier, res.SLMultiplier, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest result for %s %s: %w: %w", res.Symbol, res.Timeframe, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for backtest result %s: %w", res.Symbol, err)
	}
	res.ID = id
	res.CreatedAt = createdAt
	r.logger.Debug(ctx, "Backtest result stored", map[string]interface{}{"id": id, "symbol": res.Symbol, "timeframe": res.Timeframe})
	return id, nil
}

// FetchQualifyingResults returns the backtest rows passing the filter,
// newest start date first.
func (r *Repository) FetchQualifyingResults(ctx context.Context, filter ports.ResultFilter) ([]*domain.BacktestResult, error) {
	const query = `
	SELECT id, symbol, timeframe, start_date, num_trades, return_percentage,
	       winrate, max_drawdown, tp_m, sl_m, created_at
	FROM backtest_results
	WHERE max_drawdown > ? AND return_percentage > ? AND start_date >= ?
	ORDER BY start_date DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, filter.MaxDrawdownFloor, filter.MinReturnPercentage, filter.StartedAfter.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	results := make([]*domain.BacktestResult, 0)
	for rows.Next() {
		res, err := scanBacktestResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w: %w", ports.ErrQueryFailed, err)
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest result rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return results, nil
}

// --- SignalRepository Implementation ---

// SaveSignal journals an emitted signal and returns its assigned ID.
// A second signal for the same pair, direction and candle is rejected with
// ports.ErrDuplicateEntry.
func (r *Repository) SaveSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	const query = `
	INSERT INTO signals (signal_type, symbol, timeframe, entry_price, tp, sl, max_leverage,
	                     candle_time, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	status := sig.Status
	if status == "" {
		status = domain.SignalOpen
	}
	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, query,
		string(sig.Direction), sig.Symbol, sig.Timeframe,
		sig.Levels.EntryPrice.String(), sig.Levels.TakeProfit.String(), sig.Levels.StopLoss.String(),
		sig.MaxLeverage, sig.CandleTime.UTC(), string(status), createdAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("signal %s %s %s already journaled: %w", sig.Symbol, sig.Timeframe, sig.Direction, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert signal for %s: %w: %w", sig.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for signal %s: %w", sig.Symbol, err)
	}
	sig.ID = id
	sig.Status = status
	sig.CreatedAt = createdAt
	r.logger.Debug(ctx, "Signal journaled", map[string]interface{}{"signalID": id, "symbol": sig.Symbol, "direction": sig.Direction})
	return id, nil
}

// RecentSignals returns up to limit journaled signals, newest first.
func (r *Repository) RecentSignals(ctx context.Context, limit int) ([]*domain.Signal, error) {
	const query = `
	SELECT id, signal_type, symbol, timeframe, entry_price, tp, sl, max_leverage,
	       candle_time, status, created_at
	FROM signals
	ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	signals := make([]*domain.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w: %w", ports.ErrQueryFailed, err)
		}
		signals = append(signals, sig)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return signals, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBacktestResult(s scanner) (*domain.BacktestResult, error) {
	res := &domain.BacktestResult{}
	err := s.Scan(
		&res.ID, &res.Symbol, &res.Timeframe, &res.StartDate, &res.NumTrades, &res.ReturnPercentage,
		&res.WinRate, &res.MaxDrawdown, &res.TPMultiplier, &res.SLMultiplier, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func scanSignal(s scanner) (*domain.Signal, error) {
	sig := &domain.Signal{}
	var direction, status, entry, tp, sl string
	err := s.Scan(
		&sig.ID, &direction, &sig.Symbol, &sig.Timeframe, &entry, &tp, &sl, &sig.MaxLeverage,
		&sig.CandleTime, &status, &sig.CreatedAt)
	if err != nil {
		return nil, err
	}
	sig.Direction = domain.Direction(direction)
	sig.Status = domain.SignalStatus(status)
	if sig.Levels.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, fmt.Errorf("parsing entry price %q: %w", entry, err)
	}
	if sig.Levels.TakeProfit, err = decimal.NewFromString(tp); err != nil {
		return nil, fmt.Errorf("parsing take profit %q: %w", tp, err)
	}
	if sig.Levels.StopLoss, err = decimal.NewFromString(sl); err != nil {
		return nil, fmt.Errorf("parsing stop loss %q: %w", sl, err)
	}
	return sig, nil
}
