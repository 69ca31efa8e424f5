package indicators

import (
	"context"
	"fmt"
	"math"

	"atrSignalBot/internal/domain"
)

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate computes the indicator value for the last kline
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// Series computes the indicator for every kline. The result has the same
	// length as klines; entries before the warm-up period are NaN.
	Series(ctx context.Context, klines []*domain.Kline) ([]float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func (b *BaseIndicator) validatePeriod(name string) error {
	if b.Config.Period <= 0 {
		return fmt.Errorf("%s period must be positive, got %d", name, b.Config.Period)
	}
	return nil
}

// nanSeries returns a slice of n NaN values.
func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// last returns the final element of a computed series.
func last(series []float64, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if len(series) == 0 {
		return 0, fmt.Errorf("empty indicator series")
	}
	return series[len(series)-1], nil
}
