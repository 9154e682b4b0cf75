package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

type Payout struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primaryKey"`
	CreatorID           string      `gorm:"type:varchar(100);not null;index"`
	Method              string      `gorm:"type:varchar(50);not null"`
	AmountMinor         int64       `gorm:"not null"`
	Currency            string      `gorm:"type:varchar(3);not null"`
	FeesMinor           int64       `gorm:"not null;default:0"`
	TaxWithholdingMinor int64       `gorm:"not null;default:0"`
	Status              string      `gorm:"type:varchar(50);not null;index"`
	BatchID             null.String `gorm:"type:varchar(100);index"`
	FailureReason       null.String `gorm:"type:varchar(500)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int `gorm:"not null;default:1"`
}

func (Payout) TableName() string { return "payouts" }

type PayoutBatch struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Rail          string    `gorm:"type:varchar(50);not null;index"`
	NetMinor      int64     `gorm:"not null"`
	Currency      string    `gorm:"type:varchar(3);not null"`
	PayoutIDsJSON string    `gorm:"type:jsonb;default:'[]';column:payout_ids_json"`
	CreatedAt     time.Time
}

func (PayoutBatch) TableName() string { return "payout_batches" }

type Settlement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Processor   string    `gorm:"type:varchar(50);not null;index"`
	BatchRef    string    `gorm:"type:varchar(255);not null;index"`
	WindowStart time.Time `gorm:"not null"`
	WindowEnd   time.Time `gorm:"not null"`

	GrossMinor       int64  `gorm:"not null;default:0"`
	FeesMinor        int64  `gorm:"not null;default:0"`
	ChargebacksMinor int64  `gorm:"not null;default:0"`
	RefundsMinor     int64  `gorm:"not null;default:0"`
	NetMinor         int64  `gorm:"not null;default:0"`
	Currency         string `gorm:"type:varchar(3)"`

	Sealed          bool   `gorm:"not null;default:false"`
	DiscrepancyJSON string `gorm:"type:jsonb;default:'{}';column:discrepancy_json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Settlement) TableName() string { return "settlements" }
