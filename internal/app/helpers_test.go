package app

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/metrics"
	"atrSignalBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) infos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.infoMsgs...)
}

func (m *mockLogger) warns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnMsgs...)
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

type mockMarket struct {
	mu          sync.Mutex
	klineErrs   []error // Consumed one per GetKlines call; nil entries succeed
	klineCalls  int
	limits      []int
	leverage    int
	leverageErr error
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klineCalls++
	m.limits = append(m.limits, limit)
	if len(m.klineErrs) > 0 {
		err := m.klineErrs[0]
		m.klineErrs = m.klineErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []*domain.Kline{}, nil
}

func (m *mockMarket) GetMaxLeverage(ctx context.Context, symbol string) (int, error) {
	return m.leverage, m.leverageErr
}

func (m *mockMarket) Ping(ctx context.Context) error { return nil }

type mockStrategy struct {
	snapshot *domain.MarketSnapshot
	err      error
}

func (m *mockStrategy) RequiredDataPoints() int { return 2 }

func (m *mockStrategy) BuildSnapshot(ctx context.Context, symbol, timeframe string, klines []*domain.Kline) (*domain.MarketSnapshot, error) {
	return m.snapshot, m.err
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
	failures int // Calls that fail with err before delivery starts succeeding; 0 fails every call
	calls    int
}

func (m *mockNotifier) SendMessage(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil && (m.failures == 0 || m.calls <= m.failures) {
		return m.err
	}
	m.messages = append(m.messages, text)
	return nil
}

func (m *mockNotifier) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type mockSignalRepo struct {
	saved []*domain.Signal
	err   error
}

func (m *mockSignalRepo) SaveSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.saved = append(m.saved, sig)
	return int64(len(m.saved)), nil
}

func (m *mockSignalRepo) RecentSignals(ctx context.Context, limit int) ([]*domain.Signal, error) {
	return m.saved, nil
}

type mockDeduper struct {
	err error
}

func (m *mockDeduper) MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, m.err
}

func (m *mockDeduper) Forget(ctx context.Context, key string) error {
	return m.err
}

type mockResultRepo struct {
	mu      sync.Mutex
	results []*domain.BacktestResult
	err     error
	filters []ports.ResultFilter
}

func (m *mockResultRepo) FetchQualifyingResults(ctx context.Context, filter ports.ResultFilter) ([]*domain.BacktestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockResultRepo) InsertBacktestResult(ctx context.Context, res *domain.BacktestResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return int64(len(m.results)), nil
}

func (m *mockResultRepo) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockResultRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filters)
}

// snapshotOf builds a two-row snapshot: the closed candle carrying the
// flags and ATR, and the forming candle whose open is the entry price.
func snapshotOf(long, short bool, atr, formingOpen float64, candle time.Time) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Rows: []domain.SnapshotRow{
			{Kline: &domain.Kline{OpenTime: candle.Add(-time.Hour), Open: 90, Close: 95}, ATR: atr},
			{Kline: &domain.Kline{OpenTime: candle, Open: 95, Close: formingOpen}, ATR: atr, Long: long, Short: short},
			{Kline: &domain.Kline{OpenTime: candle.Add(time.Hour), Open: formingOpen, Close: formingOpen}, ATR: atr},
		},
	}
}
