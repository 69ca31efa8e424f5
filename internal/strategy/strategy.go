package strategy

import (
	"context"
	"fmt"
	"math"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
	"atrSignalBot/internal/strategy/indicators"
)

// Config holds parameters for the signal strategy.
type Config struct {
	FastEMAPeriod int     // e.g., 26
	SlowEMAPeriod int     // e.g., 100
	RSIPeriod     int     // e.g., 14
	RSIOverbought float64 // Long entries are skipped at or above this RSI
	RSIOversold   float64 // Short entries are skipped at or below this RSI
	ATRPeriod     int     // e.g., 14
}

// DefaultConfig returns the EMA26/EMA100 + RSI14 + ATR14 setup.
func DefaultConfig() Config {
	return Config{
		FastEMAPeriod: 26,
		SlowEMAPeriod: 100,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,
		ATRPeriod:     14,
	}
}

// Strategy flags EMA crossovers confirmed by RSI and attaches an ATR
// volatility column.
//
// A candle is long when the fast EMA closes above the slow EMA after being at
// or below it on the previous candle and RSI is not overbought. Short is the
// mirror image.
type Strategy struct {
	cfg     Config
	logger  ports.Logger
	fastEMA *indicators.MovingAverage
	slowEMA *indicators.MovingAverage
	rsi     *indicators.RSI
	atr     *indicators.ATR
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.FastEMAPeriod <= 0 || cfg.SlowEMAPeriod <= 0 || cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.FastEMAPeriod >= cfg.SlowEMAPeriod {
		return nil, fmt.Errorf("fast EMA period must be less than slow EMA period")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		return nil, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold, between 0-100)")
	}

	return &Strategy{
		cfg:    cfg,
		logger: logger,
		fastEMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.FastEMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		slowEMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.SlowEMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ATRPeriod},
		}),
	}, nil
}

// RequiredDataPoints returns the longest indicator warm-up plus one candle
// for the crossover comparison.
func (s *Strategy) RequiredDataPoints() int {
	required := s.slowEMA.RequiredDataPoints()
	for _, n := range []int{s.fastEMA.RequiredDataPoints(), s.rsi.RequiredDataPoints(), s.atr.RequiredDataPoints()} {
		if n > required {
			required = n
		}
	}
	return required + 1
}

// BuildSnapshot computes the ATR column and entry flags for every kline.
func (s *Strategy) BuildSnapshot(ctx context.Context, symbol, timeframe string, klines []*domain.Kline) (*domain.MarketSnapshot, error) {
	if len(klines) < s.RequiredDataPoints() {
		return nil, fmt.Errorf("not enough klines for %s %s: need %d, got %d", symbol, timeframe, s.RequiredDataPoints(), len(klines))
	}

	fast, err := s.fastEMA.Series(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("fast EMA: %w", err)
	}
	slow, err := s.slowEMA.Series(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("slow EMA: %w", err)
	}
	rsi, err := s.rsi.Series(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("RSI: %w", err)
	}
	atr, err := s.atr.Series(ctx, klines)
	if err != nil {
		return nil, fmt.Errorf("ATR: %w", err)
	}

	snapshot := &domain.MarketSnapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Rows:      make([]domain.SnapshotRow, len(klines)),
	}
	for i, k := range klines {
		row := domain.SnapshotRow{Kline: k, ATR: atr[i]}
		if i > 0 && defined(fast[i-1], slow[i-1], fast[i], slow[i], rsi[i]) {
			crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
			crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
			row.Long = crossedUp && !s.rsi.IsOverbought(rsi[i])
			row.Short = crossedDown && !s.rsi.IsOversold(rsi[i])
		}
		snapshot.Rows[i] = row
	}

	s.logger.Debug(ctx, "Snapshot built", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"rows":      len(snapshot.Rows),
	})
	return snapshot, nil
}

func defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
