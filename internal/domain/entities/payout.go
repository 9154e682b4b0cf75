package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutBatched   PayoutStatus = "batched"
	PayoutSent      PayoutStatus = "sent"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
	PayoutCancelled PayoutStatus = "cancelled"
)

func (s PayoutStatus) Terminal() bool {
	switch s {
	case PayoutCompleted, PayoutFailed, PayoutCancelled:
		return true
	default:
		return false
	}
}

// PayoutMethod is the closed set of outbound payout rails.
type PayoutMethod string

const (
	PayoutMethodBank   PayoutMethod = "bank"
	PayoutMethodWallet PayoutMethod = "wallet"
	PayoutMethodCrypto PayoutMethod = "crypto"
)

// Payout is a creator-directed outbound transfer.
type Payout struct {
	ID             uuid.UUID    `json:"id"`
	CreatorID      string       `json:"creatorId"`
	Method         PayoutMethod `json:"method"`
	Amount         Money        `json:"amount"`
	Fees           Money        `json:"fees"`
	TaxWithholding Money        `json:"taxWithholding"`
	Status         PayoutStatus `json:"status"`
	BatchID        null.String  `json:"batchId,omitempty"`
	FailureReason  null.String  `json:"failureReason,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	Version        int          `json:"version"`
}

// NetAmount is what actually reaches the creator's rail.
func (p *Payout) NetAmount() Money {
	return p.Amount.Sub(p.Fees).Sub(p.TaxWithholding)
}

// PayoutRequest is the Orchestrator's inbound payout request shape.
type PayoutRequest struct {
	IdempotencyKey string
	CreatorID      string
	Method         PayoutMethod
	Amount         Money
}

// PayoutBatch aggregates many Payouts into one outbound file.
type PayoutBatch struct {
	ID        uuid.UUID   `json:"id"`
	Rail      string      `json:"rail"`
	Net       Money       `json:"net"`
	PayoutIDs []uuid.UUID `json:"payoutIds"`
	CreatedAt time.Time   `json:"createdAt"`
}
