package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/metrics"
	"atrSignalBot/internal/ports"
	"atrSignalBot/internal/risk"
)

// State is the lifecycle state of an Evaluator.
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateSignaled
	StateNotifying
	StateBackoff
	StateTerminated
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSignaled:
		return "signaled"
	case StateNotifying:
		return "notifying"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EvaluatorConfig holds the polling and alerting settings shared by all evaluators.
type EvaluatorConfig struct {
	PollInterval        time.Duration // Pause between evaluations (1s)
	BackoffInterval     time.Duration // Pause after a transient failure (60s)
	KlineLimit          int           // Candles fetched per evaluation (500)
	NotifyOncePerCandle bool
	DedupeTTL           time.Duration
	RiskPercentage      float64 // Fraction of equity quoted in the disclaimer
	Precision           risk.PrecisionTable
}

// DefaultEvaluatorConfig returns the standard polling settings.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		PollInterval:        time.Second,
		BackoffInterval:     60 * time.Second,
		KlineLimit:          500,
		NotifyOncePerCandle: true,
		DedupeTTL:           72 * time.Hour,
		RiskPercentage:      0.005,
		Precision:           risk.DefaultPrecisionTable(),
	}
}

// EvaluatorDeps are the collaborators shared by all evaluators.
type EvaluatorDeps struct {
	Market   ports.MarketDataSource
	Strategy ports.SignalStrategy
	Notifier ports.Notifier
	Signals  ports.SignalRepository // Optional journal
	Deduper  ports.SignalDeduper    // Used when NotifyOncePerCandle is set
	Metrics  *metrics.Metrics
	Logger   ports.Logger
}

func (d EvaluatorDeps) validate() error {
	if d.Market == nil || d.Strategy == nil || d.Notifier == nil || d.Metrics == nil || d.Logger == nil {
		return fmt.Errorf("missing required dependencies for evaluator")
	}
	return nil
}

// Evaluator polls market data for one TradeParameter and emits alerts when
// the last closed candle carries an entry flag.
type Evaluator struct {
	param domain.TradeParameter
	cfg   EvaluatorConfig
	deps  EvaluatorDeps
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	state atomic.Int32
}

// NewEvaluator creates an evaluator in the Idle state.
func NewEvaluator(param domain.TradeParameter, cfg EvaluatorConfig, deps EvaluatorDeps) (*Evaluator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if param.Symbol == "" || param.Timeframe == "" {
		return nil, fmt.Errorf("evaluator parameter needs symbol and timeframe: %w", ports.ErrInvalidRequest)
	}
	if param.TPMultiplier <= 0 || param.SLMultiplier <= 0 {
		return nil, fmt.Errorf("evaluator %s multipliers must be positive: %w", param.Key(), ports.ErrInvalidRequest)
	}
	if cfg.KlineLimit < 2 {
		return nil, fmt.Errorf("kline limit must be at least 2, got %d", cfg.KlineLimit)
	}
	if cfg.NotifyOncePerCandle && deps.Deduper == nil {
		deps.Deduper = NewMemoryDeduper()
	}
	return &Evaluator{
		param: param,
		cfg:   cfg,
		deps:  deps,
		sleep: sleepContext,
		now:   time.Now,
	}, nil
}

// Param returns the parameter the evaluator runs with.
func (e *Evaluator) Param() domain.TradeParameter {
	return e.param
}

// State returns the current lifecycle state.
func (e *Evaluator) State() State {
	return State(e.state.Load())
}

func (e *Evaluator) setState(s State) {
	e.state.Store(int32(s))
}

// Run evaluates until ctx is canceled (returns nil) or an unexpected error
// occurs (returns an error wrapping ports.ErrUnexpected). Transient failures
// back off and retry.
func (e *Evaluator) Run(ctx context.Context) error {
	fields := map[string]interface{}{"symbol": e.param.Symbol, "timeframe": e.param.Timeframe}
	e.deps.Logger.Info(ctx, "Signal evaluator started", fields)
	defer e.setState(StateTerminated)

	for {
		if ctx.Err() != nil {
			e.deps.Logger.Info(ctx, "Signal evaluator stopped", fields)
			return nil
		}

		e.setState(StateEvaluating)
		delay := e.cfg.PollInterval
		if err := e.evaluate(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				e.deps.Logger.Info(ctx, "Signal evaluator stopped", fields)
				return nil
			case ports.IsTransient(err):
				e.deps.Metrics.EvaluationErrors.WithLabelValues(e.param.Symbol, "transient").Inc()
				e.deps.Logger.Error(ctx, err, "Transient market data failure, backing off", withField(fields, "backoff", e.cfg.BackoffInterval.String()))
				e.setState(StateBackoff)
				delay = e.cfg.BackoffInterval
			default:
				e.deps.Metrics.EvaluationErrors.WithLabelValues(e.param.Symbol, "unexpected").Inc()
				e.deps.Logger.Error(ctx, err, "Unexpected failure, terminating evaluator", fields)
				if errors.Is(err, ports.ErrUnexpected) {
					return fmt.Errorf("evaluator %s: %w", e.param.Key(), err)
				}
				return fmt.Errorf("evaluator %s: %w: %w", e.param.Key(), ports.ErrUnexpected, err)
			}
		}

		if err := e.sleep(ctx, delay); err != nil {
			e.deps.Logger.Info(ctx, "Signal evaluator stopped", fields)
			return nil
		}
	}
}

// evaluate runs one fetch/detect/notify cycle.
func (e *Evaluator) evaluate(ctx context.Context) error {
	klines, err := e.deps.Market.GetKlines(ctx, e.param.Symbol, e.param.Timeframe, e.cfg.KlineLimit)
	if err != nil {
		return err
	}
	snapshot, err := e.deps.Strategy.BuildSnapshot(ctx, e.param.Symbol, e.param.Timeframe, klines)
	if err != nil {
		return err
	}
	if snapshot.Len() < 2 {
		return fmt.Errorf("snapshot for %s has %d rows, need at least 2", e.param.Key(), snapshot.Len())
	}

	// The last row is the forming candle; flags come from the last closed one.
	closed := snapshot.Rows[snapshot.Len()-2]
	forming := snapshot.Rows[snapshot.Len()-1]
	direction, ok := signalDirection(closed)
	if !ok {
		return nil
	}
	if closed.Kline == nil || forming.Kline == nil {
		return fmt.Errorf("snapshot for %s is missing kline data", e.param.Key())
	}

	e.setState(StateSignaled)
	levels, err := risk.ComputeLevels(forming.Kline.Open, closed.ATR, e.param.Symbol, direction,
		e.param.TPMultiplier, e.param.SLMultiplier, e.cfg.Precision)
	if err != nil {
		return err
	}

	sig := &domain.Signal{
		Symbol:     e.param.Symbol,
		Timeframe:  e.param.Timeframe,
		Direction:  direction,
		Levels:     levels,
		CandleTime: closed.Kline.OpenTime,
		Status:     domain.SignalOpen,
		CreatedAt:  e.now(),
	}

	key, first := e.firstAlert(ctx, sig)
	if !first {
		return nil
	}

	if lev, err := e.deps.Market.GetMaxLeverage(ctx, e.param.Symbol); err != nil {
		e.deps.Logger.Warn(ctx, "Max leverage unavailable, omitting from alert", map[string]interface{}{"symbol": e.param.Symbol, "error": err.Error()})
	} else {
		sig.MaxLeverage = lev
	}

	e.setState(StateNotifying)
	if !e.notify(ctx, sig) {
		e.release(ctx, key)
		return nil
	}
	e.journal(ctx, sig)
	return nil
}

// signalDirection picks the entry side of a closed candle. Long wins when
// both flags are set.
func signalDirection(row domain.SnapshotRow) (domain.Direction, bool) {
	switch {
	case row.Long:
		return domain.Long, true
	case row.Short:
		return domain.Short, true
	default:
		return "", false
	}
}

// firstAlert reports whether the signal has not been alerted yet and returns
// the dedupe key it recorded, if any. Dedupe failures fall back to sending.
func (e *Evaluator) firstAlert(ctx context.Context, sig *domain.Signal) (string, bool) {
	if !e.cfg.NotifyOncePerCandle || e.deps.Deduper == nil {
		return "", true
	}
	key := fmt.Sprintf("%s/%s/%s/%d", sig.Symbol, sig.Timeframe, sig.Direction, sig.CandleTime.Unix())
	first, err := e.deps.Deduper.MarkSent(ctx, key, e.cfg.DedupeTTL)
	if err != nil {
		e.deps.Logger.Warn(ctx, "Signal dedupe failed, sending anyway", map[string]interface{}{"key": key, "error": err.Error()})
		return "", true
	}
	if !first {
		e.deps.Logger.Debug(ctx, "Signal already alerted for candle", map[string]interface{}{"key": key})
	}
	return key, first
}

// release forgets an undelivered alert so the next cycle retries it.
func (e *Evaluator) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := e.deps.Deduper.Forget(ctx, key); err != nil {
		e.deps.Logger.Warn(ctx, "Failed to release signal dedupe key", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// notify delivers the alert and reports whether it went out. Delivery
// failures are logged and swallowed.
func (e *Evaluator) notify(ctx context.Context, sig *domain.Signal) bool {
	text := FormatAlert(sig, e.cfg.RiskPercentage)
	fields := map[string]interface{}{
		"symbol":     sig.Symbol,
		"timeframe":  sig.Timeframe,
		"direction":  string(sig.Direction),
		"entryPrice": sig.Levels.EntryPrice.String(),
		"stopLoss":   sig.Levels.StopLoss.String(),
		"takeProfit": sig.Levels.TakeProfit.String(),
	}
	if err := e.deps.Notifier.SendMessage(ctx, text); err != nil {
		e.deps.Metrics.NotificationFailures.Inc()
		e.deps.Logger.Error(ctx, err, "Error sending signal message", fields)
		return false
	}
	e.deps.Metrics.SignalsEmitted.WithLabelValues(sig.Symbol, sig.Timeframe, string(sig.Direction)).Inc()
	e.deps.Logger.Info(ctx, "Signal sent", fields)
	return true
}

func (e *Evaluator) journal(ctx context.Context, sig *domain.Signal) {
	if e.deps.Signals == nil {
		return
	}
	if _, err := e.deps.Signals.SaveSignal(ctx, sig); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			e.deps.Logger.Debug(ctx, "Signal already journaled", map[string]interface{}{"symbol": sig.Symbol})
			return
		}
		e.deps.Logger.Error(ctx, err, "Failed to journal signal", map[string]interface{}{"symbol": sig.Symbol, "timeframe": sig.Timeframe})
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withField(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
