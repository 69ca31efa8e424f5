package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrSignalBot/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testConfig() Config {
	return Config{FastEMAPeriod: 2, SlowEMAPeriod: 4, RSIPeriod: 3, RSIOverbought: 70, RSIOversold: 30, ATRPeriod: 2}
}

func makeKlines(values ...float64) []*domain.Kline {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, len(values))
	for i, v := range values {
		klines[i] = &domain.Kline{
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			CloseTime: start.Add(time.Duration(i+1)*time.Hour - time.Millisecond),
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			Open:      v,
			High:      v + 0.5,
			Low:       v - 0.5,
			Close:     v,
			IsFinal:   true,
		}
	}
	return klines
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		noLog   bool
		wantErr bool
	}{
		{name: "valid config"},
		{name: "default config", mutate: func(c *Config) { *c = DefaultConfig() }},
		{name: "nil logger", noLog: true, wantErr: true},
		{name: "zero period", mutate: func(c *Config) { c.ATRPeriod = 0 }, wantErr: true},
		{name: "fast not below slow", mutate: func(c *Config) { c.FastEMAPeriod = 4 }, wantErr: true},
		{name: "inverted RSI thresholds", mutate: func(c *Config) { c.RSIOverbought, c.RSIOversold = 30, 70 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			var s *Strategy
			var err error
			if tt.noLog {
				s, err = New(cfg, nil)
			} else {
				s, err = New(cfg, &mockLogger{})
			}
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestStrategy_RequiredDataPoints(t *testing.T) {
	s, err := New(testConfig(), &mockLogger{})
	require.NoError(t, err)
	assert.Equal(t, 5, s.RequiredDataPoints())

	s, err = New(DefaultConfig(), &mockLogger{})
	require.NoError(t, err)
	assert.Equal(t, 101, s.RequiredDataPoints())
}

func TestStrategy_BuildSnapshot_LongCrossover(t *testing.T) {
	s, err := New(testConfig(), &mockLogger{})
	require.NoError(t, err)

	// Falling then recovering: fast EMA crosses above slow EMA on index 6.
	klines := makeKlines(10, 9, 8, 7, 6, 7, 9, 12)
	snap, err := s.BuildSnapshot(context.Background(), "BTCUSDT", "1h", klines)
	require.NoError(t, err)
	require.Equal(t, len(klines), snap.Len())
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, "1h", snap.Timeframe)

	for i, row := range snap.Rows {
		assert.Equal(t, i == 6, row.Long, "long flag at %d", i)
		assert.False(t, row.Short, "short flag at %d", i)
		assert.Same(t, klines[i], row.Kline)
	}
	assert.True(t, math.IsNaN(snap.Rows[0].ATR))
	assert.Greater(t, snap.Rows[6].ATR, 0.0)
}

func TestStrategy_BuildSnapshot_ShortCrossover(t *testing.T) {
	s, err := New(testConfig(), &mockLogger{})
	require.NoError(t, err)

	klines := makeKlines(10, 11, 12, 13, 14, 13, 11, 8)
	snap, err := s.BuildSnapshot(context.Background(), "ETHUSDT", "4h", klines)
	require.NoError(t, err)

	for i, row := range snap.Rows {
		assert.Equal(t, i == 6, row.Short, "short flag at %d", i)
		assert.False(t, row.Long, "long flag at %d", i)
	}
}

func TestStrategy_BuildSnapshot_RSIFilter(t *testing.T) {
	cfg := testConfig()
	cfg.RSIOverbought = 60 // RSI at the crossover is ~66.7
	s, err := New(cfg, &mockLogger{})
	require.NoError(t, err)

	snap, err := s.BuildSnapshot(context.Background(), "BTCUSDT", "1h", makeKlines(10, 9, 8, 7, 6, 7, 9, 12))
	require.NoError(t, err)
	for i, row := range snap.Rows {
		assert.False(t, row.Long, "long flag at %d should be filtered", i)
	}
}

func TestStrategy_BuildSnapshot_NotEnoughData(t *testing.T) {
	s, err := New(testConfig(), &mockLogger{})
	require.NoError(t, err)

	_, err = s.BuildSnapshot(context.Background(), "BTCUSDT", "1h", makeKlines(1, 2, 3))
	assert.Error(t, err)
}
