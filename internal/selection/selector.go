// Package selection turns raw backtest rows into the active parameter set.
package selection

import (
	"sort"
	"time"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
)

// Criteria holds the thresholds a backtest result must pass to be considered.
type Criteria struct {
	MaxDrawdownFloor    float64       // Drawdown must be strictly above this (e.g., -10.0)
	MinReturnPercentage float64       // Return must be strictly above this (e.g., 20.0)
	Lookback            time.Duration // Only results started within this window qualify
}

// DefaultCriteria returns the production thresholds: drawdown above -10%,
// return above 20%, started within the last 30 days.
func DefaultCriteria() Criteria {
	return Criteria{
		MaxDrawdownFloor:    -10.0,
		MinReturnPercentage: 20.0,
		Lookback:            30 * 24 * time.Hour,
	}
}

// Filter converts the criteria into the repository-side filter for now.
func (c Criteria) Filter(now time.Time) ports.ResultFilter {
	return ports.ResultFilter{
		MaxDrawdownFloor:    c.MaxDrawdownFloor,
		MinReturnPercentage: c.MinReturnPercentage,
		StartedAfter:        now.Add(-c.Lookback),
	}
}

// SelectParameters applies DefaultCriteria. See Criteria.Select.
func SelectParameters(results []*domain.BacktestResult, now time.Time) []domain.TradeParameter {
	return DefaultCriteria().Select(results, now)
}

// Select picks, for every (symbol, timeframe) pair present in the qualifying
// results, the multipliers of its most recent backtest. Ties on StartDate are
// broken by the highest ID. The output is ordered by symbol, then timeframe,
// and is never nil.
func (c Criteria) Select(results []*domain.BacktestResult, now time.Time) []domain.TradeParameter {
	cutoff := now.Add(-c.Lookback)

	best := make(map[domain.PairKey]*domain.BacktestResult)
	for _, r := range results {
		if r == nil || !c.qualifies(r, cutoff) {
			continue
		}
		key := r.Key()
		if cur, ok := best[key]; !ok || newer(r, cur) {
			best[key] = r
		}
	}

	params := make([]domain.TradeParameter, 0, len(best))
	for _, r := range best {
		params = append(params, domain.TradeParameter{
			Symbol:       r.Symbol,
			Timeframe:    r.Timeframe,
			TPMultiplier: r.TPMultiplier,
			SLMultiplier: r.SLMultiplier,
		})
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].Symbol != params[j].Symbol {
			return params[i].Symbol < params[j].Symbol
		}
		return params[i].Timeframe < params[j].Timeframe
	})
	return params
}

func (c Criteria) qualifies(r *domain.BacktestResult, cutoff time.Time) bool {
	if !(r.MaxDrawdown > c.MaxDrawdownFloor) || !(r.ReturnPercentage > c.MinReturnPercentage) {
		return false
	}
	return !r.StartDate.Before(cutoff)
}

// newer orders by StartDate descending, then ID descending.
func newer(a, b *domain.BacktestResult) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	return a.ID > b.ID
}
