package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/pkg/logger"
	"fanztrust.orchestrator/pkg/utils"
)

// RefundResult is the response envelope for a refund request.
type RefundResult struct {
	RefundID          uuid.UUID                  `json:"refundId"`
	Status            entities.RefundStatus      `json:"status"`
	TransactionStatus entities.TransactionStatus `json:"transactionStatus"`
}

// RequestRefund runs the refund state machine: requested → (auto_approved |
// manual_review) → processed. The refund amount may never exceed the
// transaction's remaining refundable amount.
func (o *Orchestrator) RequestRefund(ctx context.Context, req entities.RefundRequest) (*RefundResult, error) {
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = "refund:" + req.TransactionID.String() + ":" + req.Reason
	}
	res, err := o.idem.Reserve(ctx, entities.ScopeInboundRequest, idemKey, inboundTTL)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case entities.ReservationCommitted:
		var prior RefundResult
		if err := json.Unmarshal(res.Response, &prior); err != nil {
			return nil, err
		}
		return &prior, nil
	case entities.ReservationInFlight:
		return nil, domainerrors.New(domainerrors.CodeDuplicate, "refund already in flight", domainerrors.ErrInFlight).
			WithRetryAfter(time.Second)
	}

	result, err := o.runRefund(ctx, req)
	if err != nil {
		_ = o.idem.Release(ctx, entities.ScopeInboundRequest, idemKey)
		return nil, err
	}
	payload, _ := json.Marshal(result)
	if err := o.idem.Commit(ctx, entities.ScopeInboundRequest, idemKey, payload, inboundTTL); err != nil {
		logger.WithContext(ctx).Error("idempotency commit failed", zap.Error(err))
	}
	return result, nil
}

func (o *Orchestrator) runRefund(ctx context.Context, req entities.RefundRequest) (*RefundResult, error) {
	o.txLocks.Lock(req.TransactionID.String())
	defer o.txLocks.Unlock(req.TransactionID.String())

	tx, err := o.txRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != entities.TxCaptured && tx.Status != entities.TxSettled && tx.Status != entities.TxDisputed {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "transaction is not refundable in its current state", nil)
	}
	if !req.Amount.SameCurrency(tx.Amount) {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "refund currency must match transaction", nil)
	}
	remaining := tx.RemainingRefundable()
	if req.Amount.MinorUnits <= 0 || req.Amount.MinorUnits > remaining.MinorUnits {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "refund amount exceeds remaining refundable", nil)
	}

	now := o.clock.Now()
	refund := &entities.Refund{
		ID:             utils.GenerateUUIDv7(),
		TransactionID:  tx.ID,
		Amount:         req.Amount,
		Status:         entities.RefundPending,
		Reason:         req.Reason,
		DecisionSource: req.DecisionSource,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := o.refundRepo.Create(ctx, refund); err != nil {
		return nil, err
	}

	// Chargeback-driven refunds skip the trust gate: the money is already
	// gone, the ledger just has to follow.
	if req.DecisionSource != entities.RefundDecisionChargeback {
		score, err := o.trust.Decide(ctx, tx.ID.String(), entities.VerificationRequest{
			FanID:           tx.FanID,
			CreatorID:       tx.CreatorID,
			Platform:        tx.Platform,
			Method:          tx.Method,
			Amount:          req.Amount,
			Timestamp:       now,
			IsRefundContext: true,
		})
		if err != nil {
			return nil, err
		}
		if score.Decision == entities.DecisionRefundReview {
			if o.approvals != nil {
				if _, err := o.approvals.Enqueue(ctx, approval.EnqueueInput{
					EntityRef:    "refund:" + refund.ID.String(),
					ApprovalType: entities.ApprovalTypeRefund,
					Priority:     approval.PriorityNormal,
					SLAMinutes:   240,
				}); err != nil {
					return nil, err
				}
			}
			return &RefundResult{RefundID: refund.ID, Status: entities.RefundPending, TransactionStatus: tx.Status}, nil
		}
	}

	if err := o.updateRefund(ctx, refund, func(r *entities.Refund) {
		r.Status = entities.RefundApproved
	}); err != nil {
		return nil, err
	}
	if err := o.processRefund(ctx, tx, refund); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: refund.ID, Status: refund.Status, TransactionStatus: tx.Status}, nil
}

// ResolveRefundApproval applies a manual review decision to a pending
// refund. Called by the approval workflow when a reviewer decides.
func (o *Orchestrator) ResolveRefundApproval(ctx context.Context, refundID uuid.UUID, approve bool, reason string) error {
	refund, err := o.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return err
	}
	if refund.Status != entities.RefundPending {
		return domainerrors.New(domainerrors.CodeConflict, "refund already decided", nil)
	}

	o.txLocks.Lock(refund.TransactionID.String())
	defer o.txLocks.Unlock(refund.TransactionID.String())

	if !approve {
		if err := o.updateRefund(ctx, refund, func(r *entities.Refund) {
			r.Status = entities.RefundDenied
			r.DecisionSource = entities.RefundDecisionManual
			r.FailureReason = null.StringFrom(reason)
		}); err != nil {
			return err
		}
		o.bus.Publish(ctx, entities.EventRefundDenied, "refund:"+refund.ID.String(), map[string]interface{}{"reason": reason})
		return nil
	}

	tx, err := o.txRepo.GetByID(ctx, refund.TransactionID)
	if err != nil {
		return err
	}
	// The bound may have tightened while the refund sat in review.
	if refund.Amount.MinorUnits > tx.RemainingRefundable().MinorUnits {
		if err := o.updateRefund(ctx, refund, func(r *entities.Refund) {
			r.Status = entities.RefundDenied
			r.FailureReason = null.StringFrom("remaining refundable amount exceeded")
		}); err != nil {
			return err
		}
		return domainerrors.New(domainerrors.CodeInvalidRequest, "refund amount exceeds remaining refundable", nil)
	}
	if err := o.updateRefund(ctx, refund, func(r *entities.Refund) {
		r.Status = entities.RefundApproved
		r.DecisionSource = entities.RefundDecisionManual
	}); err != nil {
		return err
	}
	return o.processRefund(ctx, tx, refund)
}

// processRefund issues the processor refund, posts the scaled reverse of
// the original capture, and moves the transaction to refunded only when the
// running refund total reaches the original amount.
// Caller holds the transaction stripe lock.
func (o *Orchestrator) processRefund(ctx context.Context, tx *entities.Transaction, refund *entities.Refund) error {
	adapter := o.adapters.Get(tx.Processor)
	if adapter == nil {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "transaction has no registered processor", nil)
	}

	ref := processor.AttemptRef{TransactionID: refund.ID.String(), Attempt: 1}
	var refRes processor.RefundResult
	err := o.outboundIdempotent(ctx, ref, "refund", &refRes, func() (interface{}, error) {
		r, e := adapter.Refund(ctx, processor.RefundRequest{
			Attempt:             ref,
			MID:                 tx.MerchantAccount,
			ProcessorCaptureRef: tx.ProcessorCaptureRef.String,
			Amount:              refund.Amount,
		})
		return r, e
	})
	if err != nil {
		code := taxonomyOf(err)
		if uerr := o.updateRefund(ctx, refund, func(r *entities.Refund) {
			r.Status = entities.RefundFailed
			r.FailureReason = null.StringFrom(string(code))
		}); uerr != nil {
			return uerr
		}
		return err
	}

	// Reverse of the original capture, scaled to the refund amount.
	platformFee, processorFee := o.computeFees(refund.Amount, tx.Processor)
	net := refund.Amount.Sub(platformFee).Sub(processorFee)
	pairID := ledger.PairID("refund", refund.ID.String(), "process")
	entries := []*entities.LedgerEntry{
		{Account: accountFor(entities.AccountFanReceivable, tx.FanID), Direction: entities.Credit, Amount: refund.Amount, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountCreatorPayable, tx.CreatorID), Direction: entities.Debit, Amount: net, TransactionRef: tx.ID.String()},
		{Account: entities.AccountPlatformFeeRevenue, Direction: entities.Debit, Amount: platformFee, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountProcessorPayable, tx.Processor), Direction: entities.Debit, Amount: processorFee, TransactionRef: tx.ID.String()},
	}

	if err := o.atomically(ctx, func(ctx context.Context) error {
		if err := o.ledger.Post(ctx, pairID, entries); err != nil {
			return err
		}
		if err := o.recordEvent(ctx, &entities.TransactionEvent{
			TransactionID: tx.ID,
			EventKind:     entities.EventRefundOK,
			EventSource:   tx.Processor,
			AmountDelta:   refund.Amount,
			Success:       true,
		}); err != nil {
			return err
		}
		if err := o.updateRefund(ctx, refund, func(r *entities.Refund) {
			r.Status = entities.RefundProcessed
			r.ProcessorRefundRef = null.StringFrom(refRes.ProcessorRefundRef)
		}); err != nil {
			return err
		}
		return o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
			t.RefundedTotal = t.RefundedTotal.Add(refund.Amount)
			if t.RefundedTotal.MinorUnits >= t.Amount.MinorUnits {
				t.Status = entities.TxRefunded
			}
		})
	}); err != nil {
		return err
	}

	o.bus.Publish(ctx, entities.EventRefundProcessed, "refund:"+refund.ID.String(), map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"amount":         refund.Amount,
		"source":         refund.DecisionSource,
	})
	return nil
}

func (o *Orchestrator) updateRefund(ctx context.Context, r *entities.Refund, mutate func(*entities.Refund)) error {
	mutate(r)
	r.UpdatedAt = o.clock.Now()
	return o.refundRepo.Update(ctx, r)
}
