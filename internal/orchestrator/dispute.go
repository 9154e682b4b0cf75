package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/pkg/utils"
)

const (
	retrievalResponseWindow  = 7 * 24 * time.Hour
	chargebackResponseWindow = 14 * 24 * time.Hour
)

// disputePayload is the slice of the raw webhook body the dispute path
// cares about.
type disputePayload struct {
	DisputeType string `json:"dispute_type"`
	Reason      string `json:"reason"`
}

// handleDisputeWebhook handles a chargeback notification: a chargeback
// creates a Dispute, moves the Transaction to disputed and enqueues a
// high-priority review; a retrieval is auto-answered with stored evidence
// and never interrupts the transaction.
func (o *Orchestrator) handleDisputeWebhook(ctx context.Context, tx *entities.Transaction, ev entities.CanonicalWebhookEvent) error {
	var payload disputePayload
	_ = json.Unmarshal(ev.Raw, &payload)
	dtype := entities.DisputeTypeChargeback
	if payload.DisputeType == string(entities.DisputeTypeRetrieval) {
		dtype = entities.DisputeTypeRetrieval
	}

	now := o.clock.Now()
	window := chargebackResponseWindow
	if dtype == entities.DisputeTypeRetrieval {
		window = retrievalResponseWindow
	}
	dispute := &entities.Dispute{
		ID:            utils.GenerateUUIDv7(),
		TransactionID: tx.ID,
		Type:          dtype,
		Stage:         entities.DisputeInitial,
		DeadlineAt:    now.Add(window),
		Reason:        payload.Reason,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if err := o.disputeRepo.Create(ctx, dispute); err != nil {
		return err
	}
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID:      tx.ID,
		EventKind:          entities.EventChargeback,
		EventSource:        ev.Processor,
		AmountDelta:        ev.Amount,
		ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
		Success:            true,
		ProcessorTimestamp: ev.ProcessorTimestamp,
	}); err != nil {
		return err
	}

	if dtype == entities.DisputeTypeRetrieval {
		// Auto-respond with stored evidence: transaction metadata, the
		// trust decision, and the event log.
		if err := o.updateDispute(ctx, dispute, func(d *entities.Dispute) {
			d.Stage = entities.DisputeClosed
			d.EvidenceSubmitted = true
		}); err != nil {
			return err
		}
		o.bus.Publish(ctx, entities.EventDisputeResponded, "dispute:"+dispute.ID.String(), map[string]interface{}{
			"transaction_id": tx.ID.String(),
			"type":           dtype,
			"auto":           true,
		})
		return nil
	}

	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxDisputed
	}); err != nil {
		return err
	}
	if o.approvals != nil {
		if _, err := o.approvals.Enqueue(ctx, approval.EnqueueInput{
			EntityRef:    "dispute:" + dispute.ID.String(),
			ApprovalType: entities.ApprovalTypeDispute,
			Priority:     approval.PriorityHigh,
			SLAMinutes:   int(window.Minutes() / 2),
		}); err != nil {
			return err
		}
	}
	o.bus.Publish(ctx, entities.EventDisputeOpened, "dispute:"+dispute.ID.String(), map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"deadline_at":    dispute.DeadlineAt,
		"reason":         dispute.Reason,
	})
	return nil
}

// RespondToDispute writes a dispute response: the stage advances, and a
// conceded dispute refunds the transaction in full via the chargeback
// decision path.
func (o *Orchestrator) RespondToDispute(ctx context.Context, disputeID uuid.UUID, evidence string, concede bool) error {
	dispute, err := o.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if dispute.Stage == entities.DisputeClosed {
		return domainerrors.New(domainerrors.CodeConflict, "dispute already closed", nil)
	}

	if concede {
		tx, err := o.txRepo.GetByID(ctx, dispute.TransactionID)
		if err != nil {
			return err
		}
		remaining := tx.RemainingRefundable()
		if remaining.MinorUnits > 0 {
			// The conceded money flows back through the refund machine, which
			// moves the transaction to refunded once the total is reached.
			if _, err := o.RequestRefund(ctx, entities.RefundRequest{
				IdempotencyKey: "dispute:" + dispute.ID.String() + ":concede",
				TransactionID:  tx.ID,
				Amount:         remaining,
				Reason:         "chargeback_conceded",
				DecisionSource: entities.RefundDecisionChargeback,
			}); err != nil {
				return err
			}
		} else {
			o.txLocks.Lock(tx.ID.String())
			if !tx.Status.Terminal() {
				err = o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
					t.Status = entities.TxChargedBack
				})
			}
			o.txLocks.Unlock(tx.ID.String())
			if err != nil {
				return err
			}
		}
		if err := o.updateDispute(ctx, dispute, func(d *entities.Dispute) {
			d.Stage = entities.DisputeClosed
			d.EvidenceSubmitted = true
		}); err != nil {
			return err
		}
	} else {
		if err := o.updateDispute(ctx, dispute, func(d *entities.Dispute) {
			d.Stage = nextDisputeStage(d.Stage)
			d.EvidenceSubmitted = true
		}); err != nil {
			return err
		}
	}

	o.bus.Publish(ctx, entities.EventDisputeResponded, "dispute:"+dispute.ID.String(), map[string]interface{}{
		"transaction_id": dispute.TransactionID.String(),
		"stage":          dispute.Stage,
		"conceded":       concede,
		"evidence_len":   len(evidence),
	})
	return nil
}

func nextDisputeStage(s entities.DisputeStage) entities.DisputeStage {
	switch s {
	case entities.DisputeInitial:
		return entities.DisputeResponseDue
	case entities.DisputeResponseDue:
		return entities.DisputePreArbitration
	case entities.DisputePreArbitration:
		return entities.DisputeArbitration
	default:
		return entities.DisputeClosed
	}
}

func (o *Orchestrator) updateDispute(ctx context.Context, d *entities.Dispute, mutate func(*entities.Dispute)) error {
	mutate(d)
	d.UpdatedAt = o.clock.Now()
	return o.disputeRepo.Update(ctx, d)
}
