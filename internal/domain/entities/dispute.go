package entities

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStage is the dispute lifecycle.
type DisputeStage string

const (
	DisputeInitial        DisputeStage = "initial"
	DisputeResponseDue    DisputeStage = "response_due"
	DisputePreArbitration DisputeStage = "pre_arbitration"
	DisputeArbitration    DisputeStage = "arbitration"
	DisputeClosed         DisputeStage = "closed"
)

// DisputeType distinguishes a pre-chargeback retrieval from a full dispute.
type DisputeType string

const (
	DisputeTypeRetrieval  DisputeType = "retrieval"
	DisputeTypeChargeback DisputeType = "chargeback"
)

type Dispute struct {
	ID                uuid.UUID    `json:"id"`
	TransactionID     uuid.UUID    `json:"transactionId"`
	Type              DisputeType  `json:"type"`
	Stage             DisputeStage `json:"stage"`
	DeadlineAt        time.Time    `json:"deadlineAt"`
	Reason            string       `json:"reason"`
	EvidenceSubmitted bool         `json:"evidenceSubmitted"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	Version           int          `json:"version"`
}
