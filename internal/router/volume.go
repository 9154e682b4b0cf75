package router

import (
	"sync"
	"time"

	"fanztrust.orchestrator/internal/clockwork"
)

// RollingVolume tracks per-MID volume over rolling daily and monthly
// windows for cap enforcement. Counters are windowed, not
// strictly ordered: concurrent transactions against one MID may interleave
// freely.
type RollingVolume struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	buckets map[string][]volumeHit
}

type volumeHit struct {
	at    time.Time
	minor int64
}

// NewRollingVolume builds a tracker.
func NewRollingVolume(clock clockwork.Clock) *RollingVolume {
	return &RollingVolume{clock: clock, buckets: make(map[string][]volumeHit)}
}

// Record adds a completed transaction's amount to a MID's window.
func (v *RollingVolume) Record(mid string, amountMinor int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buckets[mid] = append(v.buckets[mid], volumeHit{at: v.clock.Now(), minor: amountMinor})
	v.prune(mid)
}

// DailyVolume sums the trailing 24 hours.
func (v *RollingVolume) DailyVolume(mid string) int64 {
	return v.sumSince(mid, 24*time.Hour)
}

// MonthlyVolume sums the trailing 30 days.
func (v *RollingVolume) MonthlyVolume(mid string) int64 {
	return v.sumSince(mid, 30*24*time.Hour)
}

func (v *RollingVolume) sumSince(mid string, window time.Duration) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	cutoff := v.clock.Now().Add(-window)
	var total int64
	for _, h := range v.buckets[mid] {
		if h.at.After(cutoff) {
			total += h.minor
		}
	}
	return total
}

// prune drops hits older than the monthly window. Caller holds the lock.
func (v *RollingVolume) prune(mid string) {
	cutoff := v.clock.Now().Add(-30 * 24 * time.Hour)
	kept := v.buckets[mid][:0]
	for _, h := range v.buckets[mid] {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	v.buckets[mid] = kept
}
