package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotRow is one candle of a MarketSnapshot with its derived columns.
type SnapshotRow struct {
	Kline *Kline
	ATR   float64 // Volatility measure at this candle
	Long  bool    // Long entry condition on this candle
	Short bool    // Short entry condition on this candle
}

// MarketSnapshot is the recent candle history of one symbol/timeframe with
// indicator columns. The last row may still be forming.
type MarketSnapshot struct {
	Symbol    string
	Timeframe string
	Rows      []SnapshotRow
}

// Len returns the number of rows.
func (s *MarketSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// OrderLevels are the prices attached to a signal.
type OrderLevels struct {
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Signal is an emitted alert, journaled after delivery.
type Signal struct {
	ID          int64
	Symbol      string
	Timeframe   string
	Direction   Direction
	Levels      OrderLevels
	MaxLeverage int       // 0 when unknown
	CandleTime  time.Time // Open time of the closed candle that produced the signal
	Status      SignalStatus
	CreatedAt   time.Time
}
