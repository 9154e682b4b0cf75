package models

import "time"

type MerchantAccount struct {
	MID                   string `gorm:"type:varchar(100);primaryKey"`
	Processor             string `gorm:"type:varchar(50);not null;index"`
	Region                string `gorm:"type:varchar(50)"`
	Descriptor            string `gorm:"type:varchar(100)"`
	Currency              string `gorm:"type:varchar(3);not null"`
	MinAmountMinor        int64  `gorm:"not null;default:0"`
	MaxAmountMinor        int64  `gorm:"not null;default:0"`
	RiskProfile           string `gorm:"type:varchar(50)"`
	AllowedPlatformsJSON  string `gorm:"type:jsonb;default:'[]';column:allowed_platforms_json"`
	KillSwitch            bool   `gorm:"not null;default:false"`
	DailyVolumeCapMinor   int64  `gorm:"not null;default:0"`
	MonthlyVolumeCapMinor int64  `gorm:"not null;default:0"`
	Active                bool   `gorm:"not null;default:true;index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (MerchantAccount) TableName() string { return "merchant_accounts" }

type RoutingRule struct {
	ID             string `gorm:"type:varchar(100);primaryKey"`
	Priority       int    `gorm:"not null;index"`
	Active         bool   `gorm:"not null;default:true;index"`
	ConditionsJSON string `gorm:"type:jsonb;default:'{}';column:conditions_json"`
	TargetJSON     string `gorm:"type:jsonb;default:'{}';column:target_json"`
	CanaryJSON     string `gorm:"type:jsonb;default:'{}';column:canary_json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (RoutingRule) TableName() string { return "routing_rules" }

type TrustScore struct {
	ID               string  `gorm:"type:varchar(100);primaryKey"`
	TransactionID    string  `gorm:"type:varchar(100);not null;index"`
	Score            int     `gorm:"not null"`
	Confidence       float64 `gorm:"not null"`
	ModelVersion     string  `gorm:"type:varchar(50);not null"`
	Decision         string  `gorm:"type:varchar(50);not null"`
	ReasonCodesJSON  string  `gorm:"type:jsonb;default:'[]';column:reason_codes_json"`
	SignalsJSON      string  `gorm:"type:jsonb;default:'[]';column:signals_json"`
	Explanation      string  `gorm:"type:varchar(1000)"`
	ProcessingTimeMS int64   `gorm:"not null;default:0"`
	CreatedAt        time.Time
}

func (TrustScore) TableName() string { return "trust_scores" }

type Approval struct {
	ID             string    `gorm:"type:varchar(100);primaryKey"`
	EntityRef      string    `gorm:"type:varchar(255);not null;index"`
	ApprovalType   string    `gorm:"type:varchar(50);not null"`
	State          string    `gorm:"type:varchar(50);not null;index"`
	Priority       int       `gorm:"not null;default:1"`
	Assignee       string    `gorm:"type:varchar(100)"`
	SLAMinutes     int       `gorm:"not null"`
	SLAAt          time.Time `gorm:"not null;index"`
	HistoryJSON    string    `gorm:"type:jsonb;default:'[]';column:history_json"`
	Decision       string    `gorm:"type:varchar(50)"`
	DecisionReason string    `gorm:"type:varchar(500)"`
	Decided        bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int `gorm:"not null;default:1"`
}

func (Approval) TableName() string { return "approvals" }

// LedgerEntry rows are append-only; there is no updated_at on purpose.
type LedgerEntry struct {
	EntryID        string    `gorm:"type:varchar(100);primaryKey"`
	PairID         string    `gorm:"type:varchar(255);not null;index"`
	Account        string    `gorm:"type:varchar(255);not null;index"`
	Direction      string    `gorm:"type:varchar(10);not null"`
	AmountMinor    int64     `gorm:"not null"`
	Currency       string    `gorm:"type:varchar(3);not null"`
	TransactionRef string    `gorm:"type:varchar(100);index"`
	CreatedAt      time.Time `gorm:"index"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// IdempotencyKey mirrors the Redis-backed store for durable audit; the hot
// path reads Redis only.
type IdempotencyKey struct {
	Scope            string `gorm:"type:varchar(50);primaryKey"`
	Key              string `gorm:"type:varchar(255);primaryKey"`
	FirstSeenAt      time.Time
	ResponseEnvelope []byte `gorm:"type:bytea"`
	CreatedAt        time.Time
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }
