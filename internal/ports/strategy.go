package ports

import (
	"context"

	"atrSignalBot/internal/domain"
)

// SignalStrategy derives the indicator columns and entry flags of a
// MarketSnapshot from raw klines.
type SignalStrategy interface {
	// RequiredDataPoints returns the minimum number of klines needed to produce flags.
	RequiredDataPoints() int

	// BuildSnapshot computes the volatility column and long/short flags for every kline.
	BuildSnapshot(ctx context.Context, symbol, timeframe string, klines []*domain.Kline) (*domain.MarketSnapshot, error)
}
