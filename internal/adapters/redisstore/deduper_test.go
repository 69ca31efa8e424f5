package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"atrSignalBot/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys == nil {
		f.keys = map[string]time.Duration{}
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestDeduper_MarkSent(t *testing.T) {
	fake := &fakeRedis{}
	d := NewDeduper(fake)
	ctx := context.Background()

	first, err := d.MarkSent(ctx, "BTCUSDT/1h/long/1700000000", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.MarkSent(ctx, "BTCUSDT/1h/long/1700000000", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	assert.Equal(t, time.Hour, fake.keys[keyPrefix+"BTCUSDT/1h/long/1700000000"])
}

func TestDeduper_Forget(t *testing.T) {
	fake := &fakeRedis{}
	d := NewDeduper(fake)
	ctx := context.Background()

	_, err := d.MarkSent(ctx, "ETHUSDT/4h/short/1700000000", time.Hour)
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "ETHUSDT/4h/short/1700000000"))
	assert.Empty(t, fake.keys)

	again, err := d.MarkSent(ctx, "ETHUSDT/4h/short/1700000000", time.Hour)
	require.NoError(t, err)
	assert.True(t, again, "forgotten keys are new again")

	failing := NewDeduper(&fakeRedis{err: errors.New("dial tcp: connection refused")})
	assert.ErrorIs(t, failing.Forget(ctx, "k"), ports.ErrConnectionFailed)
}

func TestDeduper_MarkSent_Error(t *testing.T) {
	d := NewDeduper(&fakeRedis{err: errors.New("dial tcp: connection refused")})
	ok, err := d.MarkSent(context.Background(), "k", time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = ParseOptions("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = ParseOptions("")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = ParseOptions("redis://cache:6380/notadb")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
