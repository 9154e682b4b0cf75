// Package router picks an ordered primary+fallback MerchantAccount chain for
// a routed request.
package router

import (
	"context"
	"hash/fnv"
	"sort"
	"time"

	domainerrors "fanztrust.orchestrator/internal/domain/errors"

	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/infrastructure/cache"
)

// VolumeTracker reports rolling volume already sent through a MID, used to
// enforce daily/monthly caps.
type VolumeTracker interface {
	DailyVolume(mid string) int64
	MonthlyVolume(mid string) int64
}

// Request is the Router's input: the normalized payment request plus the
// Trust Engine's decision.
type Request struct {
	FanID       string
	Platform    string
	Region      string
	Currency    string
	Method      entities.PaymentMethodVariant
	AmountMinor int64
	TrustScore  int
	BIN         string
	UserTags    []string
	At          time.Time
}

// Router selects MerchantAccounts from the current rule/account snapshot.
type Router struct {
	rules    *cache.Snapshot[[]*entities.RoutingRule]
	accounts *cache.Snapshot[map[string]*entities.MerchantAccount]
	volume   VolumeTracker
	cfg      config.RoutingConfig
}

// New builds a Router reading from live snapshots so readers never block a
// background refresh.
func New(rules *cache.Snapshot[[]*entities.RoutingRule], accounts *cache.Snapshot[map[string]*entities.MerchantAccount], volume VolumeTracker, cfg config.RoutingConfig) *Router {
	return &Router{rules: rules, accounts: accounts, volume: volume, cfg: cfg}
}

// Route returns the ordered chain of MIDs to try, primary first.
func (r *Router) Route(_ context.Context, req Request) ([]string, error) {
	rules := append([]*entities.RoutingRule(nil), r.rules.Load()...)
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID // deterministic tie-break
	})

	hour := req.At.UTC().Hour()

	var chain []string
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !rule.Matches(req.Platform, req.Region, req.Currency, req.Method, req.AmountMinor, req.TrustScore, req.BIN, hour, req.UserTags) {
			continue
		}

		primary := rule.Target.PrimaryMID
		if rule.Canary.Enabled && inCanary(req.FanID, rule.ID, rule.Canary.Percentage, rule.Canary.Platforms, req.Platform) {
			primary = rule.Target.CanaryMID
		}
		chain = append(chain, primary)
		chain = append(chain, rule.Target.FallbackMIDs...)
		break
	}

	if len(chain) == 0 {
		if r.cfg.DefaultPrimaryMID == "" {
			return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "no routing rule matched and no default primary configured", nil)
		}
		chain = []string{r.cfg.DefaultPrimaryMID}
	}

	filtered := r.filterEligible(chain, req)
	if len(filtered) == 0 {
		return nil, domainerrors.New(domainerrors.CodeHardDecline, "no merchant account eligible for this request", nil)
	}
	return filtered, nil
}

func (r *Router) filterEligible(mids []string, req Request) []string {
	accounts := r.accounts.Load()
	out := make([]string, 0, len(mids))
	for _, mid := range mids {
		acc, ok := accounts[mid]
		if !ok || acc == nil {
			continue
		}
		if acc.KillSwitch {
			continue
		}
		if !acc.SupportsCurrency(req.Currency) {
			continue
		}
		if !acc.SupportsPlatform(req.Platform) {
			continue
		}
		if !acc.WithinAmountRange(req.AmountMinor) {
			continue
		}
		if r.volume != nil {
			if acc.DailyVolumeCapMinor > 0 && r.volume.DailyVolume(mid)+req.AmountMinor > acc.DailyVolumeCapMinor {
				continue
			}
			if acc.MonthlyVolumeCapMinor > 0 && r.volume.MonthlyVolume(mid)+req.AmountMinor > acc.MonthlyVolumeCapMinor {
				continue
			}
		}
		out = append(out, mid)
	}
	return out
}

// inCanary decides whether (fanID, ruleID) falls inside the canary
// percentage. Deterministic and stdlib-only:
// fnv1a(fan_id+":"+rule_id) % 100 < percentage.
func inCanary(fanID, ruleID string, percentage int, platforms []string, platform string) bool {
	if len(platforms) > 0 {
		found := false
		for _, p := range platforms {
			if p == platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(fanID + ":" + ruleID))
	return int(h.Sum32()%100) < percentage
}
