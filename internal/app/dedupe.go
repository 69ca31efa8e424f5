package app

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is an in-process ports.SignalDeduper.
type MemoryDeduper struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryDeduper creates an empty deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{expires: make(map[string]time.Time), now: time.Now}
}

// MarkSent records key until ttl elapses and reports whether it was new.
func (d *MemoryDeduper) MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.expires {
		if !now.Before(exp) {
			delete(d.expires, k)
		}
	}
	if _, seen := d.expires[key]; seen {
		return false, nil
	}
	d.expires[key] = now.Add(ttl)
	return true, nil
}

// Forget drops key.
func (d *MemoryDeduper) Forget(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expires, key)
	return nil
}
