package ports

import (
	"context"
	"time"
)

// Notifier delivers formatted alert text to the broadcast channel.
// Implementations must be safe for concurrent use.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// SignalDeduper remembers which signals were already broadcast.
type SignalDeduper interface {
	// MarkSent records key and reports whether it was new.
	// A false result means the key was already recorded within ttl.
	MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Forget releases key so the next MarkSent for it reports new again.
	Forget(ctx context.Context, key string) error
}
