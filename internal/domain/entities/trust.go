package entities

import "time"

// TrustDecision is the Trust Engine's advisory verdict.
type TrustDecision string

const (
	DecisionAllow        TrustDecision = "allow"
	DecisionChallenge    TrustDecision = "challenge"
	DecisionBlock        TrustDecision = "block"
	DecisionRefundAuto   TrustDecision = "refund_auto_approve"
	DecisionRefundReview TrustDecision = "refund_manual_review"
)

// SignalResult is one collector's output.
type SignalResult struct {
	Name        string
	Score       int // 0-100
	ReasonCodes []string
	Present     bool // false if the collector had no signal to offer
}

// TrustScore is persisted per decision, signals-snapshot included, before
// the Orchestrator ever sees it.
type TrustScore struct {
	ID               string
	TransactionID    string
	Score            int
	Confidence       float64
	ModelVersion     string
	Decision         TrustDecision
	ReasonCodes      []string
	Signals          []SignalResult
	Explanation      string
	ProcessingTimeMS int64
	CreatedAt        time.Time
}
