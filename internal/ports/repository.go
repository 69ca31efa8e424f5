package ports

import (
	"context"
	"time"

	"atrSignalBot/internal/domain"
)

// ResultFilter is the server-side quality gate applied when fetching
// backtest results.
type ResultFilter struct {
	MaxDrawdownFloor    float64   // Keep rows with max_drawdown > MaxDrawdownFloor
	MinReturnPercentage float64   // Keep rows with return_percentage > MinReturnPercentage
	StartedAfter        time.Time // Keep rows with start_date >= StartedAfter
}

// BacktestResultRepository gives access to the persisted backtest results.
type BacktestResultRepository interface {
	// FetchQualifyingResults returns the rows passing the filter.
	FetchQualifyingResults(ctx context.Context, filter ResultFilter) ([]*domain.BacktestResult, error)
	// InsertBacktestResult stores a new row and returns its assigned ID.
	InsertBacktestResult(ctx context.Context, result *domain.BacktestResult) (int64, error)
}

// SignalRepository journals emitted signals.
type SignalRepository interface {
	// SaveSignal stores a signal and returns its assigned ID.
	SaveSignal(ctx context.Context, signal *domain.Signal) (int64, error)
	// RecentSignals returns up to limit signals, newest first.
	RecentSignals(ctx context.Context, limit int) ([]*domain.Signal, error)
}
