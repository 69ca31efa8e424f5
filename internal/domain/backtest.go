package domain

import "time"

// BacktestResult is one row produced by the external backtesting process.
// It is read-only to the signal bot.
type BacktestResult struct {
	ID               int64     // Unique identifier (usually from DB)
	Symbol           string    // Trading symbol (e.g., "BTCUSDT")
	Timeframe        string    // Kline interval the backtest ran on (e.g., "1h")
	StartDate        time.Time // When the backtest window began
	NumTrades        int       // Number of trades taken during the backtest
	ReturnPercentage float64   // Return over the window, in percent
	WinRate          float64   // Winning trades, 0-100
	MaxDrawdown      float64   // Maximum drawdown, <= 0, percent of equity
	TPMultiplier     float64   // Take-profit distance in volatility units
	SLMultiplier     float64   // Stop-loss distance in volatility units
	CreatedAt        time.Time // When the row was inserted
}

// Key returns the (symbol, timeframe) pair of the result.
func (r *BacktestResult) Key() PairKey {
	return PairKey{Symbol: r.Symbol, Timeframe: r.Timeframe}
}

// TradeParameter is the active multiplier pair for one (symbol, timeframe).
type TradeParameter struct {
	Symbol       string
	Timeframe    string
	TPMultiplier float64
	SLMultiplier float64
}

// Key returns the (symbol, timeframe) pair of the parameter.
func (p TradeParameter) Key() PairKey {
	return PairKey{Symbol: p.Symbol, Timeframe: p.Timeframe}
}

// ParameterSet is an immutable snapshot of the active parameters.
// A refresh builds a new set and publishes it; sets are never patched in place.
type ParameterSet struct {
	Parameters []TradeParameter
	ComputedAt time.Time
}

// Len returns the number of parameters in the set. A nil set is empty.
func (s *ParameterSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Parameters)
}

// Lookup returns the parameter for the given pair, if present.
func (s *ParameterSet) Lookup(key PairKey) (TradeParameter, bool) {
	if s == nil {
		return TradeParameter{}, false
	}
	for _, p := range s.Parameters {
		if p.Key() == key {
			return p, true
		}
	}
	return TradeParameter{}, false
}
