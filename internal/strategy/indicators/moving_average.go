package indicators

import (
	"context"
	"fmt"

	"atrSignalBot/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate computes the moving average value for the last kline
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	return last(m.Series(ctx, klines))
}

// Series computes the moving average for every kline based on the configured type
func (m *MovingAverage) Series(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	if err := m.validatePeriod(m.Name()); err != nil {
		return nil, err
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return m.smaSeries(klines)
	case ExponentialMovingAverage:
		return m.emaSeries(klines)
	default:
		return nil, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// smaSeries computes the Simple Moving Average over a rolling window
func (m *MovingAverage) smaSeries(klines []*domain.Kline) ([]float64, error) {
	period := m.Config.Period
	if len(klines) < period {
		return nil, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(klines), period)
	}

	series := nanSeries(len(klines))
	total := 0.0
	for i, k := range klines {
		total += k.Close
		if i >= period {
			total -= klines[i-period].Close
		}
		if i >= period-1 {
			series[i] = total / float64(period)
		}
	}
	return series, nil
}

// emaSeries computes the Exponential Moving Average, seeded with the SMA of
// the first 'period' closes
func (m *MovingAverage) emaSeries(klines []*domain.Kline) ([]float64, error) {
	period := m.Config.Period
	if len(klines) < period {
		return nil, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(klines), period)
	}

	multiplier := 2.0 / float64(period+1)
	series := nanSeries(len(klines))

	ema := 0.0
	for i := 0; i < period; i++ {
		ema += klines[i].Close
	}
	ema /= float64(period)
	series[period-1] = ema

	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close-ema)*multiplier + ema
		series[i] = ema
	}
	return series, nil
}
