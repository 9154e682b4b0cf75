package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundApproved   RefundStatus = "approved"
	RefundDenied     RefundStatus = "denied"
	RefundProcessed  RefundStatus = "processed"
	RefundFailed     RefundStatus = "failed"
	RefundReconciled RefundStatus = "reconciled"
)

func (s RefundStatus) Terminal() bool {
	switch s {
	case RefundDenied, RefundFailed, RefundReconciled:
		return true
	default:
		return false
	}
}

// RefundDecisionSource records how a refund's decision was reached.
type RefundDecisionSource string

const (
	RefundDecisionAuto       RefundDecisionSource = "auto"
	RefundDecisionManual     RefundDecisionSource = "manual"
	RefundDecisionChargeback RefundDecisionSource = "chargeback"
)

// Refund owns a back-reference to its Transaction.
type Refund struct {
	ID                 uuid.UUID            `json:"id"`
	TransactionID      uuid.UUID            `json:"transactionId"`
	Amount             Money                `json:"amount"`
	Status             RefundStatus         `json:"status"`
	Reason             string               `json:"reason"`
	DecisionSource     RefundDecisionSource `json:"decisionSource"`
	ProcessorRefundRef null.String          `json:"processorRefundRef,omitempty"`
	FailureReason      null.String          `json:"failureReason,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
	Version            int                  `json:"version"`
}

// RefundRequest is the Orchestrator's inbound refund request shape.
type RefundRequest struct {
	IdempotencyKey string
	TransactionID  uuid.UUID
	Amount         Money
	Reason         string
	DecisionSource RefundDecisionSource
}
