package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
)

var (
	// ErrInvalidVolatility is returned for a non-positive or non-finite volatility.
	ErrInvalidVolatility = errors.New("volatility must be positive")
	// ErrInvalidDirection is returned for a direction other than long or short.
	ErrInvalidDirection = errors.New("unrecognized direction")
)

// ComputeLevels derives stop-loss and take-profit prices from an entry price
// and a volatility measure (ATR) scaled by the given multipliers.
//
// For a long signal the stop sits below entry and the target above; for a
// short both offsets are inverted. Offsets are rounded to the symbol's price
// precision half away from zero, on the signed value, so the long and short
// results mirror each other exactly around the entry price.
func ComputeLevels(entryPrice, volatility float64, symbol string, direction domain.Direction, tpMultiplier, slMultiplier float64, table PrecisionTable) (domain.OrderLevels, error) {
	if math.IsNaN(volatility) || math.IsInf(volatility, 0) || volatility <= 0 {
		return domain.OrderLevels{}, fmt.Errorf("compute levels for %s: %w: %v", symbol, ErrInvalidVolatility, volatility)
	}
	if !direction.Valid() {
		return domain.OrderLevels{}, fmt.Errorf("compute levels for %s: %w: %q", symbol, ErrInvalidDirection, direction)
	}
	if math.IsNaN(entryPrice) || entryPrice <= 0 {
		return domain.OrderLevels{}, fmt.Errorf("compute levels for %s: entry price %v: %w", symbol, entryPrice, ports.ErrInvalidRequest)
	}
	if tpMultiplier <= 0 || slMultiplier <= 0 {
		return domain.OrderLevels{}, fmt.Errorf("compute levels for %s: multipliers tp=%v sl=%v: %w", symbol, tpMultiplier, slMultiplier, ports.ErrInvalidRequest)
	}

	effectiveSl, effectiveTp := slMultiplier, tpMultiplier
	if direction == domain.Short {
		effectiveSl, effectiveTp = -slMultiplier, -tpMultiplier
	}

	precision := table.PricePrecision(symbol)
	vol := decimal.NewFromFloat(volatility)
	slOffset := vol.Mul(decimal.NewFromFloat(effectiveSl)).Round(precision)
	tpOffset := vol.Mul(decimal.NewFromFloat(effectiveTp)).Round(precision)

	entry := decimal.NewFromFloat(entryPrice)
	return domain.OrderLevels{
		EntryPrice: entry,
		StopLoss:   entry.Sub(slOffset),
		TakeProfit: entry.Add(tpOffset),
	}, nil
}
