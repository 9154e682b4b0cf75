package trust

import (
	"context"

	"fanztrust.orchestrator/internal/domain/entities"
)

// PlatformProfile carries the per-platform/creator risk inputs the platform
// collector reads.
type PlatformProfile struct {
	RiskLevel       int // 0 (low) - 100 (high)
	CreatorTier     string
	ContentAccessed bool
}

// PlatformProfileLookup resolves a PlatformProfile for a platform/creator
// pair.
type PlatformProfileLookup interface {
	Lookup(ctx context.Context, platform, creatorID string) (PlatformProfile, bool)
}

// PlatformCollector scores platform/creator risk level and content-access
// evidence.
type PlatformCollector struct {
	profiles PlatformProfileLookup
}

func NewPlatformCollector(profiles PlatformProfileLookup) *PlatformCollector {
	return &PlatformCollector{profiles: profiles}
}

func (c *PlatformCollector) Name() string { return "platform" }

func (c *PlatformCollector) Collect(ctx context.Context, req entities.VerificationRequest) entities.SignalResult {
	if c.profiles == nil {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}
	profile, ok := c.profiles.Lookup(ctx, req.Platform, req.CreatorID)
	if !ok {
		return entities.SignalResult{Name: c.Name(), Score: 70, Present: true}
	}

	score := 100 - profile.RiskLevel
	var reasons []string
	switch profile.CreatorTier {
	case "new":
		score -= 15
		reasons = append(reasons, "new_creator_tier")
	case "established":
		score += 10
	}

	if req.IsRefundContext && !profile.ContentAccessed {
		score += 10
		reasons = append(reasons, "no_content_access_supports_refund")
	}

	return entities.SignalResult{Name: c.Name(), Score: clamp(score), ReasonCodes: reasons, Present: true}
}
