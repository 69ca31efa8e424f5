package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Column names of backtest_results follow the table the backtesting job
// already writes (winrate, tp_m, sl_m).
const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
    id                BIGSERIAL        PRIMARY KEY,
    symbol            VARCHAR(50)      NOT NULL,
    timeframe         VARCHAR(20)      NOT NULL,
    start_date        TIMESTAMPTZ      NOT NULL,
    num_trades        INTEGER          NOT NULL,
    return_percentage DOUBLE PRECISION NOT NULL,
    winrate           DOUBLE PRECISION NOT NULL,
    max_drawdown      DOUBLE PRECISION NOT NULL,
    tp_m              DOUBLE PRECISION NOT NULL,
    sl_m              DOUBLE PRECISION NOT NULL,
    created_at        TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_backtest_results_pair_start
    ON backtest_results (symbol, timeframe, start_date DESC);

CREATE TABLE IF NOT EXISTS signals (
    id           BIGSERIAL   PRIMARY KEY,
    signal_type  VARCHAR(20) NOT NULL,
    symbol       VARCHAR(50) NOT NULL,
    timeframe    VARCHAR(20) NOT NULL,
    entry_price  NUMERIC     NOT NULL,
    tp           NUMERIC     NOT NULL,
    sl           NUMERIC     NOT NULL,
    max_leverage INTEGER     NOT NULL DEFAULT 0,
    candle_time  TIMESTAMPTZ NOT NULL,
    status       VARCHAR(20) NOT NULL DEFAULT 'open',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (symbol, timeframe, signal_type, candle_time)
);
`

const uniqueViolation = "23505"

// PgxPool is the subset of *pgxpool.Pool used by the repository.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements the ports.BacktestResultRepository and
// ports.SignalRepository interfaces on PostgreSQL.
type Repository struct {
	pool   PgxPool
	logger ports.Logger
}

// Connect opens a pool for the DATABASE_URL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w: %w", ports.ErrDBConnection, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", ports.ErrDBConnection, err)
	}
	return pool, nil
}

// NewRepository creates a repository on top of the pool.
func NewRepository(pool PgxPool, logger ports.Logger) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required for postgres repository")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for postgres repository")
	}
	return &Repository{pool: pool, logger: logger}, nil
}

// RunMigrations creates the tables if they don't exist.
func (r *Repository) RunMigrations(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	r.logger.Info(ctx, "Database schema initialized/verified")
	return nil
}

// InsertBacktestResult saves a backtest row and returns its assigned ID.
func (r *Repository) InsertBacktestResult(ctx context.Context, res *domain.BacktestResult) (int64, error) {
	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO backtest_results (symbol, timeframe, start_date, num_trades, return_percentage,
		                               winrate, max_drawdown, tp_m, sl_m, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		res.Symbol, res.Timeframe, res.StartDate, res.NumTrades, res.ReturnPercentage,
		res.WinRate, res.MaxDrawdown, res.TPMultiplier, res.SLMultiplier, createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest result for %s %s: %w", res.Symbol, res.Timeframe, translateError(err))
	}
	res.ID = id
	res.CreatedAt = createdAt
	r.logger.Debug(ctx, "Backtest result stored", map[string]interface{}{"id": id, "symbol": res.Symbol, "timeframe": res.Timeframe})
	return id, nil
}

// FetchQualifyingResults returns the backtest rows passing the filter,
// newest start date first.
func (r *Repository) FetchQualifyingResults(ctx context.Context, filter ports.ResultFilter) ([]*domain.BacktestResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, timeframe, start_date, num_trades, return_percentage,
		        winrate, max_drawdown, tp_m, sl_m, created_at
		 FROM backtest_results
		 WHERE max_drawdown > $1 AND return_percentage > $2 AND start_date >= $3
		 ORDER BY start_date DESC, id DESC`,
		filter.MaxDrawdownFloor, filter.MinReturnPercentage, filter.StartedAfter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", translateError(err))
	}
	defer rows.Close()

	results := make([]*domain.BacktestResult, 0)
	for rows.Next() {
		res := &domain.BacktestResult{}
		if err := rows.Scan(&res.ID, &res.Symbol, &res.Timeframe, &res.StartDate, &res.NumTrades, &res.ReturnPercentage,
			&res.WinRate, &res.MaxDrawdown, &res.TPMultiplier, &res.SLMultiplier, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w: %w", ports.ErrQueryFailed, err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest result rows: %w", translateError(err))
	}
	return results, nil
}

// SaveSignal journals an emitted signal and returns its assigned ID.
func (r *Repository) SaveSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	status := sig.Status
	if status == "" {
		status = domain.SignalOpen
	}
	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO signals (signal_type, symbol, timeframe, entry_price, tp, sl, max_leverage,
		                      candle_time, status, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10)
		 RETURNING id`,
		string(sig.Direction), sig.Symbol, sig.Timeframe,
		sig.Levels.EntryPrice.String(), sig.Levels.TakeProfit.String(), sig.Levels.StopLoss.String(),
		sig.MaxLeverage, sig.CandleTime, string(status), createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal for %s %s: %w", sig.Symbol, sig.Timeframe, translateError(err))
	}
	sig.ID = id
	sig.Status = status
	sig.CreatedAt = createdAt
	r.logger.Debug(ctx, "Signal journaled", map[string]interface{}{"signalID": id, "symbol": sig.Symbol, "direction": sig.Direction})
	return id, nil
}

// RecentSignals returns up to limit journaled signals, newest first.
func (r *Repository) RecentSignals(ctx context.Context, limit int) ([]*domain.Signal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, signal_type, symbol, timeframe, entry_price::text, tp::text, sl::text,
		        max_leverage, candle_time, status, created_at
		 FROM signals
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", translateError(err))
	}
	defer rows.Close()

	signals := make([]*domain.Signal, 0)
	for rows.Next() {
		sig := &domain.Signal{}
		var direction, status, entry, tp, sl string
		if err := rows.Scan(&sig.ID, &direction, &sig.Symbol, &sig.Timeframe, &entry, &tp, &sl,
			&sig.MaxLeverage, &sig.CandleTime, &status, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w: %w", ports.ErrQueryFailed, err)
		}
		sig.Direction = domain.Direction(direction)
		sig.Status = domain.SignalStatus(status)
		if sig.Levels, err = parseLevels(entry, sl, tp); err != nil {
			return nil, fmt.Errorf("signal %d: %w: %w", sig.ID, ports.ErrQueryFailed, err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", translateError(err))
	}
	return signals, nil
}

func parseLevels(entry, sl, tp string) (domain.OrderLevels, error) {
	var levels domain.OrderLevels
	var err error
	if levels.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return levels, fmt.Errorf("parsing entry price %q: %w", entry, err)
	}
	if levels.StopLoss, err = decimal.NewFromString(sl); err != nil {
		return levels, fmt.Errorf("parsing stop loss %q: %w", sl, err)
	}
	if levels.TakeProfit, err = decimal.NewFromString(tp); err != nil {
		return levels, fmt.Errorf("parsing take profit %q: %w", tp, err)
	}
	return levels, nil
}

// translateError maps driver errors onto the ports sentinels.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %w", ports.ErrDuplicateEntry, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		return fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	default:
		return fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
}
