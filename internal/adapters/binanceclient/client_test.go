package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrSignalBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL, Logger: nopLogger{}})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "logger is required")

	c, err := New(Config{UseTestnet: true, Logger: nopLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.futuresClient.BaseURL)

	c, err = New(Config{Logger: nopLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLProduction, c.futuresClient.BaseURL)
}

func TestClient_GetKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700003599999,"1250.0",10,"6.0","600.0","0"],
			[1700003600000,"105.0","106.0","101.0","102.5","8.0",4102444799999,"800.0",7,"4.0","400.0","0"]
		]`))
	})

	klines, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 500)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	first := klines[0]
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, "1h", first.Interval)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 110.0, first.High)
	assert.Equal(t, 95.0, first.Low)
	assert.Equal(t, 105.0, first.Close)
	assert.Equal(t, 12.5, first.Volume)
	assert.Equal(t, time.UnixMilli(1700000000000), first.OpenTime)
	assert.True(t, first.IsFinal)

	assert.Equal(t, 105.0, klines[1].Open)
	assert.False(t, klines[1].IsFinal, "candle closing in the future is still forming")
}

func TestClient_SyncServerTime(t *testing.T) {
	local := time.Now()
	serverTime := local.Add(2 * time.Hour)
	closesSoon := local.Add(time.Hour).UnixMilli()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/time":
			_, _ = fmt.Fprintf(w, `{"serverTime":%d}`, serverTime.UnixMilli())
		case "/fapi/v1/klines":
			_, _ = fmt.Fprintf(w, `[[%d,"100.0","110.0","95.0","105.0","12.5",%d,"1250.0",10,"6.0","600.0","0"]]`,
				local.UnixMilli(), closesSoon)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	klines, err := c.GetKlines(ctx, "BTCUSDT", "1h", 1)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.False(t, klines[0].IsFinal, "still forming on the local clock")

	offset, err := c.SyncServerTime(ctx)
	require.NoError(t, err)
	assert.InDelta(t, float64(2*time.Hour), float64(offset), float64(time.Minute))

	klines, err = c.GetKlines(ctx, "BTCUSDT", "1h", 1)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.True(t, klines[0].IsFinal, "closed on the exchange clock")
}

func TestClient_SyncServerTime_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":-1001,"msg":"Internal error"}`))
	})

	offset, err := c.SyncServerTime(context.Background())
	assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
	assert.Zero(t, offset)
	assert.Zero(t, c.clockOffset.Load(), "failed sync keeps the local clock")
}

func TestClient_GetKlines_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"code":-1003,"msg":"Too many requests"}`, wantErr: ports.ErrRateLimited, transient: true},
		{name: "invalid symbol", status: http.StatusBadRequest, body: `{"code":-1121,"msg":"Invalid symbol."}`, wantErr: ports.ErrSymbolNotFound},
		{name: "exchange disconnected", status: http.StatusServiceUnavailable, body: `{"code":-1001,"msg":"Internal error"}`, wantErr: ports.ErrExchangeUnavailable, transient: true},
		{name: "bad api key", status: http.StatusUnauthorized, body: `{"code":-2015,"msg":"Invalid API-key"}`, wantErr: ports.ErrInvalidAPIKeys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 500)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.transient, ports.IsTransient(err))
		})
	}
}

func TestClient_GetKlines_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Logger: nopLogger{}})
	require.NoError(t, err)

	_, err = c.GetKlines(context.Background(), "BTCUSDT", "1h", 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.True(t, ports.IsTransient(err))
}

func TestClient_GetKlines_BadPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"abc","110.0","95.0","105.0","12.5",1700003599999,"1250.0",10,"6.0","600.0","0"]]`))
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUnexpected)
	assert.False(t, ports.IsTransient(err))
}

func TestClient_GetMaxLeverage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/leverageBracket", r.URL.Path)
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","brackets":[
			{"bracket":1,"initialLeverage":125,"notionalCap":50000,"notionalFloor":0,"maintMarginRatio":0.004,"cum":0},
			{"bracket":2,"initialLeverage":100,"notionalCap":250000,"notionalFloor":50000,"maintMarginRatio":0.005,"cum":50}
		]}]`))
	})

	lev, err := c.GetMaxLeverage(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 125, lev)

	_, err = c.GetMaxLeverage(context.Background(), "ETHUSDT")
	assert.ErrorIs(t, err, ports.ErrSymbolNotFound)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClient_HandleError(t *testing.T) {
	c := &Client{futuresClient: futures.NewClient("", ""), logger: nopLogger{}}
	ctx := context.Background()

	assert.NoError(t, c.handleError(ctx, nil, "op"))
	assert.ErrorIs(t, c.handleError(ctx, context.DeadlineExceeded, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, c.handleError(ctx, context.Canceled, "op"), ports.ErrContextCanceled)
	assert.ErrorIs(t, c.handleError(ctx, timeoutErr{}, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("read: connection reset by peer"), "op"), ports.ErrConnectionFailed)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("something odd"), "op"), ports.ErrUnknown)

	wrapped := c.handleError(ctx, &common.APIError{Code: -1003, Message: "slow down"}, "op")
	assert.ErrorIs(t, wrapped, ports.ErrRateLimited)
	var apiErr *common.APIError
	assert.True(t, errors.As(wrapped, &apiErr), "original API error stays in the chain")
}
