// Package processor defines the typed adapter contract every external
// payment processor implements and normalizes processor-specific errors
// into the canonical taxonomy.
package processor

import (
	"context"
	"time"

	"fanztrust.orchestrator/internal/domain/entities"
)

// AttemptRef is the idempotency handle adapters pass to the processor where
// supported, and otherwise use to look up a prior attempt in the
// Idempotency Store before issuing a call.
type AttemptRef struct {
	TransactionID string
	Attempt       int
}

type AuthorizeRequest struct {
	Attempt    AttemptRef
	MID        string
	Amount     entities.Money
	Method     entities.PaymentMethod
	FanID      string
	Descriptor string
}

type AuthorizeResult struct {
	ProcessorAuthRef string
	RiskFlags        []string
}

type CaptureRequest struct {
	Attempt          AttemptRef
	MID              string
	ProcessorAuthRef string
	Amount           entities.Money
}

type CaptureResult struct {
	ProcessorCaptureRef string
	FeeMinorUnits       int64
}

type RefundRequest struct {
	Attempt             AttemptRef
	MID                 string
	ProcessorCaptureRef string
	Amount              entities.Money
}

type RefundResult struct {
	ProcessorRefundRef string
}

type VoidRequest struct {
	Attempt          AttemptRef
	MID              string
	ProcessorAuthRef string
}

type PayoutSendRequest struct {
	Attempt AttemptRef
	Rail    string
	Amount  entities.Money
	Dest    string
}

type PayoutSendResult struct {
	ProcessorPayoutRef string
}

// Adapter is the capability set every processor client exposes.
// Implementations MUST be idempotent given the same (transaction_id,
// attempt) tuple.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	Void(ctx context.Context, req VoidRequest) error
	PayoutSend(ctx context.Context, req PayoutSendRequest) (PayoutSendResult, error)
	WebhookVerify(signatureHeader, timestampHeader string, rawBody []byte, tolerance time.Duration, now time.Time) error
	SettlementFetch(ctx context.Context, windowStart, windowEnd time.Time) ([]entities.SettlementLine, error)
}
