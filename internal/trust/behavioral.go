package trust

import (
	"context"

	"fanztrust.orchestrator/internal/domain/entities"
)

// FanHistory is what the behavioral collector needs to know about a fan's
// prior activity. Backed by repository queries in production.
type FanHistory struct {
	AccountAgeDays     int
	PriorRefundCount   int
	PriorTxCount       int
	PlatformTenureDays int
}

// HistoryLookup resolves FanHistory for a fan id.
type HistoryLookup interface {
	Lookup(ctx context.Context, fanID, platform string) (FanHistory, bool)
}

// BehavioralCollector scores account age, refund history and platform
// tenure. Spending pattern is not scored; the prior transaction count is
// used only as the denominator of the refund rate.
type BehavioralCollector struct {
	history HistoryLookup
}

func NewBehavioralCollector(history HistoryLookup) *BehavioralCollector {
	return &BehavioralCollector{history: history}
}

func (c *BehavioralCollector) Name() string { return "behavioral" }

func (c *BehavioralCollector) Collect(ctx context.Context, req entities.VerificationRequest) entities.SignalResult {
	if c.history == nil {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}
	hist, ok := c.history.Lookup(ctx, req.FanID, req.Platform)
	if !ok {
		return entities.SignalResult{Name: c.Name(), Score: 50, ReasonCodes: []string{"no_history"}, Present: true}
	}

	score := 60
	var reasons []string

	switch {
	case hist.AccountAgeDays >= 365:
		score += 20
	case hist.AccountAgeDays >= 30:
		score += 10
	default:
		reasons = append(reasons, "new_account")
	}

	if hist.PriorTxCount > 0 {
		refundRate := float64(hist.PriorRefundCount) / float64(hist.PriorTxCount)
		if refundRate > 0.3 {
			score -= 30
			reasons = append(reasons, "high_refund_rate")
		} else if refundRate > 0.1 {
			score -= 10
			reasons = append(reasons, "elevated_refund_rate")
		}
	}

	if hist.PlatformTenureDays >= 90 {
		score += 10
	}

	return entities.SignalResult{Name: c.Name(), Score: clamp(score), ReasonCodes: reasons, Present: true}
}
