package indicators

import (
	"context"
	"fmt"

	"atrSignalBot/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// RequiredDataPoints returns period+1: RSI works on price changes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate computes the RSI value for the last kline
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	return last(r.Series(ctx, klines))
}

// Series computes the RSI for every kline using Wilder's smoothing method
func (r *RSI) Series(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	if err := r.validatePeriod("RSI"); err != nil {
		return nil, err
	}
	period := r.Config.Period
	if len(klines) <= period {
		return nil, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(klines), period)
	}

	series := nanSeries(len(klines))

	// Initial average gain and loss over the first 'period' changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	series[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
		series[i] = rsiValue(avgGain, avgLoss)
	}

	return series, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Neutral if no change
		}
		return 100
	}
	rsi := 100 - (100 / (1 + avgGain/avgLoss))
	if rsi > 100 {
		return 100
	} else if rsi < 0 {
		return 0
	}
	return rsi
}

// IsOverbought checks if the RSI value indicates an overbought condition
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold checks if the RSI value indicates an oversold condition
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
