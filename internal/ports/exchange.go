package ports

import (
	"context"

	"atrSignalBot/internal/domain"
)

// MarketDataSource defines the read-only exchange access the signal
// evaluators need. Implementations must return errors wrapping one of the
// transient sentinels (see IsTransient) for connectivity failures.
type MarketDataSource interface {
	// GetKlines retrieves the most recent klines for the symbol, oldest first.
	// The last kline may still be forming.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// GetMaxLeverage returns the highest initial leverage allowed for the symbol.
	GetMaxLeverage(ctx context.Context, symbol string) (int, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
