package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atrSignalBot/internal/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "atrsignal:sent:"

// dedupeClient is the part of redis.UniversalClient the deduper needs.
type dedupeClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Deduper implements ports.SignalDeduper with SET NX + TTL, so alerts are
// deduplicated across restarts and replicas.
type Deduper struct {
	client dedupeClient
}

// NewDeduper wraps an existing client.
func NewDeduper(client dedupeClient) *Deduper {
	return &Deduper{client: client}
}

// MarkSent records key and reports whether it was not seen before.
func (d *Deduper) MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX %s: %w: %w", key, ports.ErrConnectionFailed, err)
	}
	return ok, nil
}

// Forget deletes key so the signal can be alerted again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w: %w", key, ports.ErrConnectionFailed, err)
	}
	return nil
}

// ParseOptions accepts either a redis:// URL or a bare host:port.
func ParseOptions(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty: %w", ports.ErrConfigurationError)
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w: %w", ports.ErrConfigurationError, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// Connect creates a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := ParseOptions(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w: %w", ports.ErrConnectionFailed, err)
	}
	return client, nil
}
