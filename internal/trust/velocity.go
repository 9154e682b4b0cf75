package trust

import (
	"sync"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
)

// VelocityTracker counts recent occurrences of a key (device fingerprint,
// IP, fan id) within a rolling window, shared by the device and network
// signal collectors.
type VelocityTracker struct {
	mu     sync.Mutex
	window time.Duration
	clock  clockwork.Clock
	hits   map[string][]time.Time
	seen   map[string]bool
}

// NewVelocityTracker builds a tracker over the given rolling window.
func NewVelocityTracker(clock clockwork.Clock, window time.Duration) *VelocityTracker {
	return &VelocityTracker{
		window: window,
		clock:  clock,
		hits:   make(map[string][]time.Time),
		seen:   make(map[string]bool),
	}
}

// Record logs an occurrence of key at the current time and returns the
// count of occurrences still inside the rolling window (including this
// one).
func (v *VelocityTracker) Record(key string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()
	cutoff := now.Add(-v.window)
	times := v.hits[key]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	v.hits[key] = kept
	v.seen[key] = true
	return len(kept)
}

// Seen reports whether key has ever been recorded, regardless of window;
// used for new-device / new-IP flags.
func (v *VelocityTracker) Seen(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seen[key]
}
