package trust

import (
	"context"
	"strings"

	"fanztrust.orchestrator/internal/domain/entities"
)

// DeviceCollector scores device fingerprint velocity and new-device risk.
// It does not look up a reputation for the fingerprint.
type DeviceCollector struct {
	velocity *VelocityTracker
}

// NewDeviceCollector builds a DeviceCollector over the shared velocity
// tracker.
func NewDeviceCollector(velocity *VelocityTracker) *DeviceCollector {
	return &DeviceCollector{velocity: velocity}
}

func (c *DeviceCollector) Name() string { return "device" }

func (c *DeviceCollector) Collect(_ context.Context, req entities.VerificationRequest) entities.SignalResult {
	if strings.TrimSpace(req.DeviceFingerprint) == "" {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}

	score := 80
	var reasons []string

	newDevice := !c.velocity.Seen(req.DeviceFingerprint)
	hits := c.velocity.Record(req.DeviceFingerprint)

	if newDevice {
		score -= 20
		reasons = append(reasons, "new_device")
	}
	if hits > 10 {
		score -= 30
		reasons = append(reasons, "device_velocity_high")
	} else if hits > 4 {
		score -= 10
		reasons = append(reasons, "device_velocity_elevated")
	}

	return entities.SignalResult{
		Name:        c.Name(),
		Score:       clamp(score),
		ReasonCodes: reasons,
		Present:     true,
	}
}
