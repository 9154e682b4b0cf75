package orchestrator

import (
	"hash/fnv"
	"sync"
)

// stripedLock serializes state transitions per transaction id and payouts
// per creator id: a fixed array of mutexes
// indexed by a hash of the key. Two keys may share a stripe; that only
// costs throughput, never correctness.
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	if n <= 0 {
		n = 256
	}
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLock) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

func (l *stripedLock) Lock(key string)   { l.stripe(key).Lock() }
func (l *stripedLock) Unlock(key string) { l.stripe(key).Unlock() }
