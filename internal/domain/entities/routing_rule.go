package entities

// AmountRange is inclusive-lower, exclusive-upper.
type AmountRange struct {
	MinMinor int64
	MaxMinor int64 // 0 means unbounded
}

func (r AmountRange) Contains(amountMinor int64) bool {
	if amountMinor < r.MinMinor {
		return false
	}
	if r.MaxMinor != 0 && amountMinor >= r.MaxMinor {
		return false
	}
	return true
}

// ScoreRange is inclusive-lower, exclusive-upper over a trust score.
type ScoreRange struct {
	Min int
	Max int // 0 means unbounded (100)
}

func (r ScoreRange) Contains(score int) bool {
	max := r.Max
	if max == 0 {
		max = 101
	}
	return score >= r.Min && score < max
}

// TimeWindow is a simple hour-of-day [Start,End) window in UTC.
type TimeWindow struct {
	StartHour int
	EndHour   int
}

func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// wraps midnight
	return hour >= w.StartHour || hour < w.EndHour
}

// RoutingConditions gate whether a RoutingRule matches a request.
type RoutingConditions struct {
	Platform    string // empty = any
	Region      string
	Currency    string
	Method      PaymentMethodVariant
	Amount      AmountRange
	TrustScore  ScoreRange
	BINRanges   []string // prefixes
	TimeWindows []TimeWindow
	UserTags    []string
}

// Canary configures a fractional diversion to an alternative target.
type Canary struct {
	Enabled    bool
	Percentage int // 0-100
	Platforms  []string
}

// RoutingTarget is what a matching rule yields.
type RoutingTarget struct {
	PrimaryMID      string
	FallbackMIDs    []string
	SplitPercentage int
	CanaryMID       string
}

// RoutingRule picks a primary+fallback MID chain for matching requests.
type RoutingRule struct {
	ID         string
	Priority   int
	Active     bool
	Conditions RoutingConditions
	Target     RoutingTarget
	Canary     Canary
}

// Matches evaluates every condition; a zero-value field in Conditions means
// "don't care" for that dimension.
func (r *RoutingRule) Matches(platform, region, currency string, method PaymentMethodVariant, amountMinor int64, trustScore int, bin string, hourUTC int, tags []string) bool {
	c := r.Conditions
	if c.Platform != "" && c.Platform != platform {
		return false
	}
	if c.Region != "" && c.Region != region {
		return false
	}
	if c.Currency != "" && c.Currency != currency {
		return false
	}
	if c.Method != "" && c.Method != method {
		return false
	}
	if !c.Amount.Contains(amountMinor) {
		return false
	}
	if !c.TrustScore.Contains(trustScore) {
		return false
	}
	if len(c.BINRanges) > 0 {
		matched := false
		for _, prefix := range c.BINRanges {
			if len(bin) >= len(prefix) && bin[:len(prefix)] == prefix {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(c.TimeWindows) > 0 {
		matched := false
		for _, w := range c.TimeWindows {
			if w.Contains(hourUTC) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(c.UserTags) > 0 {
		matched := false
		for _, want := range c.UserTags {
			for _, have := range tags {
				if want == have {
					matched = true
					break
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
