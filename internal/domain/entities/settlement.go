package entities

import (
	"time"

	"github.com/google/uuid"
)

// Settlement is one row per processor batch.
type Settlement struct {
	ID          uuid.UUID `json:"id"`
	Processor   string    `json:"processor"`
	BatchRef    string    `json:"batchRef"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	Gross       Money `json:"gross"`
	Fees        Money `json:"fees"`
	Chargebacks Money `json:"chargebacks"`
	Refunds     Money `json:"refunds"`
	Net         Money `json:"net"`

	Sealed bool `json:"sealed"`

	Discrepancy DiscrepancyReport `json:"discrepancy" gorm:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DiscrepancyReport is attached to a Settlement after reconciliation.
type DiscrepancyReport struct {
	MissingTxIDs     []uuid.UUID      `json:"missingTxIds"`
	UnexpectedTxIDs  []string         `json:"unexpectedTxIds"`
	AmountMismatches []AmountMismatch `json:"amountMismatches"`
}

type AmountMismatch struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Expected      Money     `json:"expected"`
	Actual        Money     `json:"actual"`
}

// SettlementLine is one row from a processor settlement file.
type SettlementLine struct {
	ProcessorTxRef string
	Amount         Money
	Fee            Money
	CapturedAt     time.Time
}
