// Package cache holds the read-mostly snapshot caches for routing rules and
// merchant accounts. Readers
// never block writers and always see either the old or the new consistent
// snapshot: a single writer swaps the whole snapshot atomically instead of
// mutating a shared map under a timer.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fanztrust.orchestrator/pkg/logger"
)

// Snapshot holds an immutable value swapped atomically by a single
// refresher goroutine.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// NewSnapshot seeds a Snapshot with an initial value.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(&initial)
	return s
}

// Load returns the current snapshot value. Safe for concurrent use without
// locking.
func (s *Snapshot[T]) Load() T {
	return *s.ptr.Load()
}

// Store atomically swaps in a new snapshot value.
func (s *Snapshot[T]) Store(v T) {
	s.ptr.Store(&v)
}

// Refresher periodically calls fetch and swaps the result into the
// Snapshot. A fetch error is logged and the prior snapshot is kept — readers
// never observe a partial or empty refresh.
func Refresher[T any](ctx context.Context, snap *Snapshot[T], interval time.Duration, fetch func(ctx context.Context) (T, error), name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := fetch(ctx)
			if err != nil {
				logger.WithContext(ctx).Warn("cache refresh failed, keeping stale snapshot",
					zap.String("cache", name), zap.Error(err))
				continue
			}
			snap.Store(v)
		}
	}
}
