// Package trust computes the FanzTrust risk score for a verification
// request and decides allow/challenge/block/refund.
package trust

import (
	"context"

	"fanztrust.orchestrator/internal/domain/entities"
)

// Collector produces one independent sub-score in [0,100] plus reason codes.
// Collectors never block on each other; the Engine runs them concurrently.
type Collector interface {
	Name() string
	Collect(ctx context.Context, req entities.VerificationRequest) entities.SignalResult
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
