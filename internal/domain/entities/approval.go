package entities

import "time"

type ApprovalType string

const (
	ApprovalTypeHighRiskPayment ApprovalType = "high_risk_payment"
	ApprovalTypeRefund          ApprovalType = "refund"
	ApprovalTypeDispute         ApprovalType = "dispute"
)

type ApprovalState string

const (
	ApprovalPending   ApprovalState = "pending"
	ApprovalApproved  ApprovalState = "approved"
	ApprovalDenied    ApprovalState = "denied"
	ApprovalEscalated ApprovalState = "escalated"
	ApprovalExpired   ApprovalState = "expired"
)

func (s ApprovalState) Terminal() bool {
	switch s {
	case ApprovalApproved, ApprovalDenied, ApprovalExpired:
		return true
	default:
		return false
	}
}

type ApprovalHistoryEntry struct {
	At     time.Time
	Actor  string
	Action string
	Note   string
}

// Approval is an SLA-tracked review-queue entry.
type Approval struct {
	ID             string
	EntityRef      string
	ApprovalType   ApprovalType
	State          ApprovalState
	Priority       int
	Assignee       string
	SLAMinutes     int
	SLAAt          time.Time
	History        []ApprovalHistoryEntry
	Decision       string
	DecisionReason string
	Decided        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}
