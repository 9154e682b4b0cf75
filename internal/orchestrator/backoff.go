package orchestrator

import (
	"math/rand"
	"time"

	"fanztrust.orchestrator/internal/config"
)

// backoffDelay computes the exponential backoff with jitter for retry n
// (0-based): base * 2^n, capped at max, with up to 25% random jitter so
// concurrent retries against a struggling processor spread out.
func backoffDelay(cfg config.RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay << uint(attempt)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
