package entities

import "time"

// MerchantAccount is the unit of routing selection.
type MerchantAccount struct {
	MID                   string    `json:"mid"`
	Processor             string    `json:"processor"`
	Region                string    `json:"region"`
	Descriptor            string    `json:"descriptor"`
	Currency              string    `json:"currency"`
	MinAmount             int64     `json:"minAmount"`
	MaxAmount             int64     `json:"maxAmount"`
	RiskProfile           string    `json:"riskProfile"`
	AllowedPlatforms      []string  `json:"allowedPlatforms,omitempty"` // empty = all
	KillSwitch            bool      `json:"killSwitch"`
	DailyVolumeCapMinor   int64     `json:"dailyVolumeCapMinor"`
	MonthlyVolumeCapMinor int64     `json:"monthlyVolumeCapMinor"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// SupportsCurrency reports whether this MID can settle in currency.
func (m *MerchantAccount) SupportsCurrency(currency string) bool {
	return m.Currency == currency
}

// SupportsPlatform reports whether this MID is usable for platform.
func (m *MerchantAccount) SupportsPlatform(platform string) bool {
	if len(m.AllowedPlatforms) == 0 {
		return true
	}
	for _, p := range m.AllowedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

// WithinAmountRange is inclusive on the lower bound, exclusive on the upper.
func (m *MerchantAccount) WithinAmountRange(amountMinor int64) bool {
	if m.MinAmount != 0 && amountMinor < m.MinAmount {
		return false
	}
	if m.MaxAmount != 0 && amountMinor >= m.MaxAmount {
		return false
	}
	return true
}
