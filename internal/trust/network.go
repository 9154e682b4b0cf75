package trust

import (
	"context"
	"net"
	"strings"

	"fanztrust.orchestrator/internal/domain/entities"
)

// IPReputationLookup classifies an IP address. A real deployment backs this
// with a third-party feed; NewNetworkCollector accepts any implementation,
// including StaticIPReputationLookup for tests and small deployments.
type IPReputationLookup interface {
	// Classify returns (isTorOrVPN, countryRiskHigh, ispRiskHigh).
	Classify(ip string) (torOrVPN, countryRisk, ispRisk bool)
}

// StaticIPReputationLookup classifies against fixed sets, useful as a
// config-driven default until a live feed is wired in.
type StaticIPReputationLookup struct {
	TorVPNRanges       []string        // CIDR
	HighRiskCountryIPs map[string]bool // exact-match stand-in for a geoip lookup
}

func (s StaticIPReputationLookup) Classify(ip string) (torOrVPN, countryRisk, ispRisk bool) {
	parsed := net.ParseIP(ip)
	for _, cidr := range s.TorVPNRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil && parsed != nil && network.Contains(parsed) {
			torOrVPN = true
		}
	}
	countryRisk = s.HighRiskCountryIPs[ip]
	return torOrVPN, countryRisk, false
}

// NetworkCollector scores IP reputation, geo-velocity and VPN/Tor/ISP risk.
type NetworkCollector struct {
	velocity *VelocityTracker
	lookup   IPReputationLookup
}

func NewNetworkCollector(velocity *VelocityTracker, lookup IPReputationLookup) *NetworkCollector {
	if lookup == nil {
		lookup = StaticIPReputationLookup{}
	}
	return &NetworkCollector{velocity: velocity, lookup: lookup}
}

func (c *NetworkCollector) Name() string { return "network" }

func (c *NetworkCollector) Collect(_ context.Context, req entities.VerificationRequest) entities.SignalResult {
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		return entities.SignalResult{Name: c.Name(), Present: false}
	}

	score := 85
	var reasons []string

	torOrVPN, countryRisk, ispRisk := c.lookup.Classify(ip)
	if torOrVPN {
		score -= 40
		reasons = append(reasons, "tor_or_vpn")
	}
	if countryRisk {
		score -= 20
		reasons = append(reasons, "country_risk_high")
	}
	if ispRisk {
		score -= 15
		reasons = append(reasons, "isp_risk_high")
	}

	knownFan := c.velocity.Seen(req.FanID)
	c.velocity.Record(req.FanID)
	hits := c.velocity.Record(req.FanID + ":" + ip)
	if knownFan && hits == 1 {
		// First sighting of this IP under a fan id we've seen before at a
		// different IP reads as geo-velocity, not a brand-new fan.
		reasons = append(reasons, "geo_velocity_new_location")
		score -= 5
	}

	return entities.SignalResult{
		Name:        c.Name(),
		Score:       clamp(score),
		ReasonCodes: reasons,
		Present:     true,
	}
}
