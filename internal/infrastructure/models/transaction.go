// Package models holds the GORM row shapes for every persisted entity.
// Money is stored as a minor-unit
// bigint next to a 3-letter currency column; state-machine rows carry an
// integer version for optimistic concurrency.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

type Transaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FanID     string    `gorm:"type:varchar(100);not null;index"`
	CreatorID string    `gorm:"type:varchar(100);not null;index"`
	Platform  string    `gorm:"type:varchar(100);not null;index"`

	AmountMinor int64  `gorm:"not null"`
	Currency    string `gorm:"type:varchar(3);not null"`
	FeesMinor   int64  `gorm:"not null;default:0"`

	MethodJSON string `gorm:"type:jsonb;default:'{}';column:method_json"`

	Processor       string `gorm:"type:varchar(50);index"`
	MerchantAccount string `gorm:"type:varchar(100);index"`
	Status          string `gorm:"type:varchar(50);not null;index"`

	TrustScore    int    `gorm:"not null;default:0"`
	RiskFlagsJSON string `gorm:"type:jsonb;default:'[]';column:risk_flags_json"`

	ProcessorAuthRef    null.String `gorm:"type:varchar(255);index"`
	ProcessorCaptureRef null.String `gorm:"type:varchar(255);index"`
	FailureCode         null.String `gorm:"type:varchar(50)"`
	FailureReason       null.String `gorm:"type:varchar(500)"`

	RefundedTotalMinor int64 `gorm:"not null;default:0"`
	Attempt            int   `gorm:"not null;default:0"`

	InitiatedAt  time.Time `gorm:"not null"`
	AuthorizedAt *time.Time
	CapturedAt   *time.Time `gorm:"index"`
	FailedAt     *time.Time
	SettledAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int `gorm:"not null;default:1"`
}

func (Transaction) TableName() string { return "transactions" }

type TransactionEvent struct {
	ID                 uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TransactionID      uuid.UUID   `gorm:"type:uuid;not null;index"`
	EventKind          string      `gorm:"type:varchar(50);not null;index"`
	EventSource        string      `gorm:"type:varchar(50);not null"`
	AmountDeltaMinor   int64       `gorm:"not null;default:0"`
	Currency           string      `gorm:"type:varchar(3)"`
	ProcessorEventID   null.String `gorm:"type:varchar(255);index"`
	Success            bool        `gorm:"not null"`
	ErrorCode          null.String `gorm:"type:varchar(50)"`
	ProcessorTimestamp time.Time
	CreatedAt          time.Time
}

func (TransactionEvent) TableName() string { return "transaction_events" }

type Refund struct {
	ID                 uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TransactionID      uuid.UUID   `gorm:"type:uuid;not null;index"`
	AmountMinor        int64       `gorm:"not null"`
	Currency           string      `gorm:"type:varchar(3);not null"`
	Status             string      `gorm:"type:varchar(50);not null;index"`
	Reason             string      `gorm:"type:varchar(255)"`
	DecisionSource     string      `gorm:"type:varchar(50);not null"`
	ProcessorRefundRef null.String `gorm:"type:varchar(255)"`
	FailureReason      null.String `gorm:"type:varchar(500)"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int `gorm:"not null;default:1"`
}

func (Refund) TableName() string { return "refunds" }

type Dispute struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Type              string    `gorm:"type:varchar(50);not null"`
	Stage             string    `gorm:"type:varchar(50);not null;index"`
	DeadlineAt        time.Time `gorm:"not null;index"`
	Reason            string    `gorm:"type:varchar(255)"`
	EvidenceSubmitted bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int `gorm:"not null;default:1"`
}

func (Dispute) TableName() string { return "disputes" }
