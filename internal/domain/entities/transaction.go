package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// TransactionStatus is the payment state machine.
type TransactionStatus string

const (
	TxInitiated            TransactionStatus = "initiated"
	TxVerified             TransactionStatus = "verified"
	TxRequiresVerification TransactionStatus = "requires_verification"
	TxRouted               TransactionStatus = "routed"
	TxAuthorized           TransactionStatus = "authorized"
	TxCaptured             TransactionStatus = "captured"
	TxSettled              TransactionStatus = "settled"
	TxBlocked              TransactionStatus = "blocked"
	TxFailed               TransactionStatus = "failed"
	TxRefunded             TransactionStatus = "refunded"
	TxChargedBack          TransactionStatus = "charged_back"
	TxDisputed             TransactionStatus = "disputed"
)

// Terminal reports whether status ends the payment flow. Blocked, failed,
// refunded and charged_back are never left; a settled Transaction can still
// move to refunded through a refund.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TxBlocked, TxFailed, TxRefunded, TxChargedBack, TxSettled:
		return true
	default:
		return false
	}
}

// Transaction is the central payment record.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	FanID     string    `json:"fanId"`
	CreatorID string    `json:"creatorId"`
	Platform  string    `json:"platform"`

	Amount Money `json:"amount"`
	Fees   Money `json:"fees"`

	Method          PaymentMethod     `json:"method"`
	Processor       string            `json:"processor,omitempty"`
	MerchantAccount string            `json:"merchantAccount,omitempty"`
	Status          TransactionStatus `json:"status"`

	TrustScore int      `json:"trustScore"`
	RiskFlags  []string `json:"riskFlags,omitempty"`

	ProcessorAuthRef    null.String `json:"processorAuthRef,omitempty"`
	ProcessorCaptureRef null.String `json:"processorCaptureRef,omitempty"`
	FailureCode         null.String `json:"failureCode,omitempty"`
	FailureReason       null.String `json:"failureReason,omitempty"`

	RefundedTotal Money `json:"refundedTotal"`

	Attempt int `json:"attempt"`

	InitiatedAt  time.Time  `json:"initiatedAt"`
	AuthorizedAt *time.Time `json:"authorizedAt,omitempty"`
	CapturedAt   *time.Time `json:"capturedAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
	SettledAt    *time.Time `json:"settledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int       `json:"version"`
}

// NetAmount enforces the invariant net_amount = amount - fees.
func (t *Transaction) NetAmount() Money {
	return t.Amount.Sub(t.Fees)
}

// RemainingRefundable returns amount - refunded-so-far; refunds are bounded
// by this.
func (t *Transaction) RemainingRefundable() Money {
	return t.Amount.Sub(t.RefundedTotal)
}

// TransactionEventKind is the closed set of append-only event kinds.
type TransactionEventKind string

const (
	EventInitiated     TransactionEventKind = "initiated"
	EventVerified      TransactionEventKind = "verified"
	EventRouted        TransactionEventKind = "routed"
	EventAuthOK        TransactionEventKind = "auth_ok"
	EventAuthDeclined  TransactionEventKind = "auth_declined"
	EventCaptureOK     TransactionEventKind = "capture_ok"
	EventCaptureFailed TransactionEventKind = "capture_failed"
	EventRefundOK      TransactionEventKind = "refund_ok"
	EventChargeback    TransactionEventKind = "chargeback_received"
	EventSettled       TransactionEventKind = "settlement_ready"
	EventBlocked       TransactionEventKind = "blocked"
	EventTimeout       TransactionEventKind = "timeout"
)

// TransactionEvent is an append-only row, one per state change or processor
// callback.
type TransactionEvent struct {
	ID                 uuid.UUID            `json:"id"`
	TransactionID      uuid.UUID            `json:"transactionId"`
	EventKind          TransactionEventKind `json:"eventKind"`
	EventSource        string               `json:"eventSource"`
	AmountDelta        Money                `json:"amountDelta"`
	ProcessorEventID   null.String          `json:"processorEventId,omitempty"`
	Success            bool                 `json:"success"`
	ErrorCode          null.String          `json:"errorCode,omitempty"`
	ProcessorTimestamp time.Time            `json:"processorTimestamp"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// VerificationRequest is the Trust Engine's input.
type VerificationRequest struct {
	FanID     string
	CreatorID string
	Platform  string
	Method    PaymentMethod
	Amount    Money

	Email             string
	Timestamp         time.Time
	DeviceFingerprint string
	IP                string

	IsRefundContext bool
}

// CreatePaymentInput is the Orchestrator's inbound payment request shape.
type CreatePaymentInput struct {
	IdempotencyKey    string
	FanID             string
	CreatorID         string
	Platform          string
	Amount            Money
	Method            PaymentMethod
	DeviceFingerprint string
	IP                string
	Email             string
	Urgent            bool // tips/subscriptions are non-urgent for backpressure
}
