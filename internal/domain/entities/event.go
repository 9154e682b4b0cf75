package entities

import "time"

// EventType is the closed set of canonical domain events.
type EventType string

const (
	EventPaymentAuthorized     EventType = "payment.authorized"
	EventPaymentCaptured       EventType = "payment.captured"
	EventPaymentBlocked        EventType = "payment.blocked"
	EventPaymentFailed         EventType = "payment.failed"
	EventRefundProcessed       EventType = "refund.processed"
	EventRefundDenied          EventType = "refund.denied"
	EventPayoutSent            EventType = "payout.sent"
	EventPayoutCompleted       EventType = "payout.completed"
	EventPayoutFailed          EventType = "payout.failed"
	EventDisputeOpened         EventType = "dispute.opened"
	EventDisputeResponded      EventType = "dispute.responded"
	EventSettlementDiscrepancy EventType = "settlement.discrepancy"
	EventTrustScored           EventType = "trust.scored"
	EventApprovalEscalated     EventType = "approval.escalated"
)

// CanonicalEvent is the wire envelope every subscriber receives.
type CanonicalEvent struct {
	EventID       string      `json:"event_id"`
	EventType     EventType   `json:"event_type"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Subject       string      `json:"subject"`
	Data          interface{} `json:"data"`
	Source        string      `json:"source"`
	SchemaVersion int         `json:"schema_version"`
}

// WebhookEventType is the closed set of canonical events translated from
// processor webhooks.
type WebhookEventType string

const (
	WebhookAuthOK             WebhookEventType = "auth_ok"
	WebhookAuthDeclined       WebhookEventType = "auth_declined"
	WebhookCaptureOK          WebhookEventType = "capture_ok"
	WebhookRefundOK           WebhookEventType = "refund_ok"
	WebhookChargebackReceived WebhookEventType = "chargeback_received"
	WebhookSettlementReady    WebhookEventType = "settlement_ready"
	WebhookPayoutCompleted    WebhookEventType = "payout_completed"
	WebhookPayoutFailed       WebhookEventType = "payout_failed"
)

// InboundWebhook is the raw, not-yet-verified payload from a processor.
type InboundWebhook struct {
	Processor       string
	RawBody         []byte
	SignatureHeader string
	TimestampHeader string
	ContentType     string
}

// CanonicalWebhookEvent is an InboundWebhook after verification and
// translation.
type CanonicalWebhookEvent struct {
	Processor          string
	ExternalEventID    string
	Type               WebhookEventType
	TransactionRef     string
	Amount             Money
	ProcessorTimestamp time.Time
	Raw                []byte
}
