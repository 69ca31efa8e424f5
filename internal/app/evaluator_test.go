package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"
)

var testCandle = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type evaluatorFixture struct {
	market   *mockMarket
	strategy *mockStrategy
	notifier *mockNotifier
	signals  *mockSignalRepo
	logger   *mockLogger
	deps     EvaluatorDeps
	sleeps   []time.Duration
	states   []State
}

func newFixture(snapshot *domain.MarketSnapshot) *evaluatorFixture {
	f := &evaluatorFixture{
		market:   &mockMarket{leverage: 125},
		strategy: &mockStrategy{snapshot: snapshot},
		notifier: &mockNotifier{},
		signals:  &mockSignalRepo{},
		logger:   &mockLogger{},
	}
	f.deps = EvaluatorDeps{
		Market:   f.market,
		Strategy: f.strategy,
		Notifier: f.notifier,
		Signals:  f.signals,
		Metrics:  newTestMetrics(),
		Logger:   f.logger,
	}
	return f
}

// build creates an evaluator whose sleep stops the loop after n cycles.
func (f *evaluatorFixture) build(t *testing.T, param domain.TradeParameter, cfg EvaluatorConfig, cycles int) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(param, cfg, f.deps)
	require.NoError(t, err)
	e.now = func() time.Time { return testCandle.Add(90 * time.Minute) }
	e.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		f.states = append(f.states, e.State())
		if len(f.sleeps) >= cycles {
			return context.Canceled
		}
		return nil
	}
	return e
}

func btcParam() domain.TradeParameter {
	return domain.TradeParameter{Symbol: "BTCUSDT", Timeframe: "1h", TPMultiplier: 3, SLMultiplier: 2}
}

func TestNewEvaluator_Validation(t *testing.T) {
	f := newFixture(nil)
	cfg := DefaultEvaluatorConfig()

	tests := []struct {
		name  string
		param domain.TradeParameter
		deps  EvaluatorDeps
		cfg   EvaluatorConfig
	}{
		{name: "missing deps", param: btcParam(), deps: EvaluatorDeps{}, cfg: cfg},
		{name: "missing symbol", param: domain.TradeParameter{Timeframe: "1h", TPMultiplier: 1, SLMultiplier: 1}, deps: f.deps, cfg: cfg},
		{name: "zero multiplier", param: domain.TradeParameter{Symbol: "BTCUSDT", Timeframe: "1h", TPMultiplier: 0, SLMultiplier: 1}, deps: f.deps, cfg: cfg},
		{name: "kline limit too small", param: btcParam(), deps: f.deps, cfg: EvaluatorConfig{KlineLimit: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEvaluator(tt.param, tt.cfg, tt.deps)
			assert.Error(t, err)
			assert.Nil(t, e)
		})
	}

	e, err := NewEvaluator(btcParam(), cfg, f.deps)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, btcParam(), e.Param())
}

func TestEvaluator_LongSignal(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 1)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, StateTerminated, e.State())

	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	want := "🔔 📈 LONG Signal for BTCUSDT (1h) 🔔\n" +
		"🎯 Entry Price: 100\n" +
		"🛑 Stop Loss (SL): 96\n" +
		"✅ Take Profit (TP): 106\n" +
		"⚖️ Max Leverage: 125x\n" +
		"⚠️ Risk Warning: Only risk 0.5% of your equity per trade.\n" +
		"🔄 Trade Safely!"
	assert.Equal(t, want, msgs[0])
	assert.Equal(t, []int{500}, f.market.limits)
	assert.Equal(t, []State{StateNotifying}, f.states)

	require.Len(t, f.signals.saved, 1)
	sig := f.signals.saved[0]
	assert.Equal(t, domain.Long, sig.Direction)
	assert.Equal(t, testCandle, sig.CandleTime)
	assert.Equal(t, 125, sig.MaxLeverage)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.SignalsEmitted.WithLabelValues("BTCUSDT", "1h", "long")))
}

func TestEvaluator_ShortSignal(t *testing.T) {
	f := newFixture(snapshotOf(false, true, 2, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 1)

	require.NoError(t, e.Run(context.Background()))

	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "📉 SHORT Signal for BTCUSDT (1h)")
	assert.Contains(t, msgs[0], "Stop Loss (SL): 104\n")
	assert.Contains(t, msgs[0], "Take Profit (TP): 94\n")
}

func TestEvaluator_ConflictingFlagsPreferLong(t *testing.T) {
	f := newFixture(snapshotOf(true, true, 2, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 1)

	require.NoError(t, e.Run(context.Background()))

	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "LONG")
	assert.NotContains(t, msgs[0], "SHORT")
	require.Len(t, f.signals.saved, 1)
	sig := f.signals.saved[0]
	assert.True(t, sig.Levels.StopLoss.LessThan(sig.Levels.EntryPrice))
	assert.True(t, sig.Levels.TakeProfit.GreaterThan(sig.Levels.EntryPrice))
}

func TestEvaluator_IgnoresFormingCandleFlags(t *testing.T) {
	snap := snapshotOf(false, false, 2, 100, testCandle)
	snap.Rows[2].Long = true
	f := newFixture(snap)
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 3)

	require.NoError(t, e.Run(context.Background()))
	assert.Empty(t, f.notifier.sent())
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, f.sleeps)
	assert.Equal(t, []State{StateEvaluating, StateEvaluating, StateEvaluating}, f.states)
	assert.Equal(t, 3, f.market.klineCalls)
}

func TestEvaluator_TransientErrorBacksOff(t *testing.T) {
	f := newFixture(snapshotOf(false, false, 2, 100, testCandle))
	f.market.klineErrs = []error{fmt.Errorf("GetKlines failed: %w", ports.ErrConnectionFailed), nil}
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 2)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, []time.Duration{60 * time.Second, time.Second}, f.sleeps)
	assert.Equal(t, []State{StateBackoff, StateEvaluating}, f.states)
	assert.Equal(t, 2, f.market.klineCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.EvaluationErrors.WithLabelValues("BTCUSDT", "transient")))
}

func TestEvaluator_UnexpectedErrorTerminates(t *testing.T) {
	f := newFixture(nil)
	f.strategy.err = errors.New("not enough klines")
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 10)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnexpected)
	assert.Contains(t, err.Error(), "BTCUSDT/1h")
	assert.Equal(t, StateTerminated, e.State())
	assert.Empty(t, f.sleeps, "terminated evaluators do not sleep or retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.EvaluationErrors.WithLabelValues("BTCUSDT", "unexpected")))
}

func TestEvaluator_NonTransientExchangeErrorTerminates(t *testing.T) {
	f := newFixture(nil)
	f.market.klineErrs = []error{fmt.Errorf("GetKlines failed: %w", ports.ErrSymbolNotFound)}
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 10)

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrUnexpected)
	assert.ErrorIs(t, err, ports.ErrSymbolNotFound)
}

func TestEvaluator_ShortSnapshotTerminates(t *testing.T) {
	snap := snapshotOf(true, false, 2, 100, testCandle)
	snap.Rows = snap.Rows[:1]
	f := newFixture(snap)
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 10)

	assert.ErrorIs(t, e.Run(context.Background()), ports.ErrUnexpected)
}

func TestEvaluator_InvalidVolatilityTerminates(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 0, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 10)

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, ports.ErrUnexpected)
	assert.Empty(t, f.notifier.sent())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.EvaluationErrors.WithLabelValues("BTCUSDT", "unexpected")))
}

func TestEvaluator_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	f.notifier.err = fmt.Errorf("send: %w", ports.ErrNotificationDelivery)
	cfg := DefaultEvaluatorConfig()
	cfg.NotifyOncePerCandle = false
	e := f.build(t, btcParam(), cfg, 3)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 3, f.market.klineCalls, "evaluation continues after delivery failures")
	assert.Equal(t, 3.0, testutil.ToFloat64(f.deps.Metrics.NotificationFailures))
}

func TestEvaluator_FailedDeliveryRetriedWithDedupe(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	f.notifier.err = fmt.Errorf("send: %w", ports.ErrNotificationDelivery)
	f.notifier.failures = 1
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 5)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 2, f.notifier.calls, "alert is retried on the next cycle, then deduplicated")
	assert.Len(t, f.notifier.sent(), 1)
	assert.Len(t, f.signals.saved, 1, "only the delivered alert is journaled")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.deps.Metrics.NotificationFailures))
}

func TestEvaluator_UndeliveredAlertIsNotJournaled(t *testing.T) {
	f := newFixture(snapshotOf(false, true, 2, 100, testCandle))
	f.notifier.err = fmt.Errorf("send: %w", ports.ErrNotificationDelivery)
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 3)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 3, f.notifier.calls)
	assert.Empty(t, f.signals.saved)
}

func TestEvaluator_NotifiesOncePerCandle(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 5)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, f.notifier.sent(), 1)
	assert.Len(t, f.signals.saved, 1)
	assert.Equal(t, 5, f.market.klineCalls)
}

func TestEvaluator_NotifiesEveryCycleWithoutDedupe(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	cfg := DefaultEvaluatorConfig()
	cfg.NotifyOncePerCandle = false
	e := f.build(t, btcParam(), cfg, 3)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, f.notifier.sent(), 3)
}

func TestEvaluator_DedupeFailureStillSends(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	f.deps.Deduper = &mockDeduper{err: errors.New("redis down")}
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 2)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, f.notifier.sent(), 2)
	assert.Contains(t, f.logger.warns(), "Signal dedupe failed, sending anyway")
}

func TestEvaluator_LeverageUnavailable(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	f.market.leverageErr = fmt.Errorf("GetMaxLeverage failed: %w", ports.ErrInvalidAPIKeys)
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 1)

	require.NoError(t, e.Run(context.Background()))
	msgs := f.notifier.sent()
	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0], "Max Leverage")
	assert.True(t, strings.HasSuffix(msgs[0], "🔄 Trade Safely!"))
}

func TestEvaluator_JournalFailureIsNotFatal(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	f.signals.err = fmt.Errorf("insert: %w", ports.ErrQueryFailed)
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 2)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, f.notifier.sent(), 1)
}

func TestEvaluator_CanceledContext(t *testing.T) {
	f := newFixture(snapshotOf(true, false, 2, 100, testCandle))
	e := f.build(t, btcParam(), DefaultEvaluatorConfig(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, StateTerminated, e.State())
	assert.Zero(t, f.market.klineCalls)
}

func TestEvaluator_RealSleepHonorsCancel(t *testing.T) {
	f := newFixture(snapshotOf(false, false, 2, 100, testCandle))
	cfg := DefaultEvaluatorConfig()
	cfg.PollInterval = time.Hour
	e, err := NewEvaluator(btcParam(), cfg, f.deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.State() == StateEvaluating }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("evaluator did not stop on cancel")
	}
	assert.Equal(t, StateTerminated, e.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "backoff", StateBackoff.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(99).String())
}
