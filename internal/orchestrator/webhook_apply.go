package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/pkg/logger"
)

// statusRank orders the payment state machine for the webhook ordering
// check: an event that would not move a Transaction forward, or that
// arrives after a terminal state, is recorded but not applied.
var statusRank = map[entities.TransactionStatus]int{
	entities.TxInitiated:            0,
	entities.TxVerified:             1,
	entities.TxRequiresVerification: 1,
	entities.TxRouted:               2,
	entities.TxAuthorized:           3,
	entities.TxCaptured:             4,
	entities.TxDisputed:             5,
	entities.TxSettled:              6,
	entities.TxBlocked:              7,
	entities.TxFailed:               7,
	entities.TxRefunded:             7,
	entities.TxChargedBack:          7,
}

func targetStatusOf(t entities.WebhookEventType) (entities.TransactionStatus, bool) {
	switch t {
	case entities.WebhookAuthOK:
		return entities.TxAuthorized, true
	case entities.WebhookAuthDeclined:
		return entities.TxFailed, true
	case entities.WebhookCaptureOK:
		return entities.TxCaptured, true
	case entities.WebhookChargebackReceived:
		return entities.TxDisputed, true
	default:
		return "", false
	}
}

// ApplyWebhookEvent applies one verified, deduped canonical event to the
// owning state machine. The ingestor has already established
// authenticity and uniqueness; this is pure state-machine work.
func (o *Orchestrator) ApplyWebhookEvent(ctx context.Context, ev entities.CanonicalWebhookEvent) error {
	switch ev.Type {
	case entities.WebhookPayoutCompleted, entities.WebhookPayoutFailed:
		return o.applyPayoutWebhook(ctx, ev)
	}

	tx, err := o.lookupTransaction(ctx, ev)
	if err != nil {
		return err
	}

	o.txLocks.Lock(tx.ID.String())
	defer o.txLocks.Unlock(tx.ID.String())

	// Reload under the lock; a concurrent apply may have advanced it.
	tx, err = o.txRepo.GetByID(ctx, tx.ID)
	if err != nil {
		return err
	}

	target, hasTarget := targetStatusOf(ev.Type)
	if hasTarget {
		current := statusRank[tx.Status]
		proposed := statusRank[target]
		if proposed <= current || tx.Status.Terminal() {
			// Late or out-of-order arrival: record, do not apply.
			logger.WithContext(ctx).Debug("webhook event recorded but not applied",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("event", string(ev.Type)),
				zap.String("status", string(tx.Status)))
			return o.recordEvent(ctx, &entities.TransactionEvent{
				TransactionID:      tx.ID,
				EventKind:          entities.TransactionEventKind(ev.Type),
				EventSource:        ev.Processor,
				AmountDelta:        ev.Amount,
				ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
				Success:            true,
				ProcessorTimestamp: ev.ProcessorTimestamp,
			})
		}
	}

	switch ev.Type {
	case entities.WebhookAuthOK:
		return o.applyAuthOK(ctx, tx, ev)
	case entities.WebhookAuthDeclined:
		return o.applyAuthDeclined(ctx, tx, ev)
	case entities.WebhookCaptureOK:
		return o.applyCaptureOK(ctx, tx, ev)
	case entities.WebhookRefundOK:
		return o.applyRefundOK(ctx, tx, ev)
	case entities.WebhookChargebackReceived:
		return o.handleDisputeWebhook(ctx, tx, ev)
	default:
		return domainerrors.New(domainerrors.CodeInvalidRequest, "unhandled webhook event type", nil)
	}
}

// lookupTransaction resolves the event's reference: our transaction id when
// the processor echoes it back, otherwise the processor-side reference.
func (o *Orchestrator) lookupTransaction(ctx context.Context, ev entities.CanonicalWebhookEvent) (*entities.Transaction, error) {
	if id, err := uuid.Parse(ev.TransactionRef); err == nil {
		if tx, err := o.txRepo.GetByID(ctx, id); err == nil {
			return tx, nil
		}
	}
	return o.txRepo.FindByProcessorRef(ctx, ev.Processor, ev.TransactionRef)
}

func (o *Orchestrator) applyAuthOK(ctx context.Context, tx *entities.Transaction, ev entities.CanonicalWebhookEvent) error {
	authorizedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID:      tx.ID,
		EventKind:          entities.EventAuthOK,
		EventSource:        ev.Processor,
		AmountDelta:        ev.Amount,
		ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
		Success:            true,
		ProcessorTimestamp: ev.ProcessorTimestamp,
	}); err != nil {
		return err
	}
	return o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxAuthorized
		t.AuthorizedAt = &authorizedAt
	})
}

func (o *Orchestrator) applyAuthDeclined(ctx context.Context, tx *entities.Transaction, ev entities.CanonicalWebhookEvent) error {
	failedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID:      tx.ID,
		EventKind:          entities.EventAuthDeclined,
		EventSource:        ev.Processor,
		ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
		Success:            false,
		ErrorCode:          null.StringFrom(string(domainerrors.CodeHardDecline)),
		ProcessorTimestamp: ev.ProcessorTimestamp,
	}); err != nil {
		return err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxFailed
		t.FailureCode = null.StringFrom(string(domainerrors.CodeHardDecline))
		t.FailedAt = &failedAt
	}); err != nil {
		return err
	}
	o.bus.Publish(ctx, entities.EventPaymentFailed, "transaction:"+tx.ID.String(), map[string]interface{}{
		"code": domainerrors.CodeHardDecline,
	})
	return nil
}

// applyCaptureOK is the asynchronous capture confirmation path: the ledger
// post uses the same deterministic pair id as the synchronous capture, so a
// webhook arriving after a successful inline capture cannot double-post.
func (o *Orchestrator) applyCaptureOK(ctx context.Context, tx *entities.Transaction, ev entities.CanonicalWebhookEvent) error {
	amount := tx.Amount
	platformFee, processorFee := o.computeFees(amount, tx.Processor)
	fees := platformFee.Add(processorFee)
	net := amount.Sub(fees)

	pairID := "tx:" + tx.ID.String() + ":capture"
	entries := []*entities.LedgerEntry{
		{Account: accountFor(entities.AccountFanReceivable, tx.FanID), Direction: entities.Debit, Amount: amount, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountCreatorPayable, tx.CreatorID), Direction: entities.Credit, Amount: net, TransactionRef: tx.ID.String()},
		{Account: entities.AccountPlatformFeeRevenue, Direction: entities.Credit, Amount: platformFee, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountProcessorPayable, tx.Processor), Direction: entities.Credit, Amount: processorFee, TransactionRef: tx.ID.String()},
	}
	if err := o.ledger.Post(ctx, pairID, entries); err != nil {
		return err
	}

	capturedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID:      tx.ID,
		EventKind:          entities.EventCaptureOK,
		EventSource:        ev.Processor,
		AmountDelta:        amount,
		ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
		Success:            true,
		ProcessorTimestamp: ev.ProcessorTimestamp,
	}); err != nil {
		return err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxCaptured
		t.Fees = fees
		t.ProcessorCaptureRef = null.StringFrom(ev.ExternalEventID)
		t.CapturedAt = &capturedAt
	}); err != nil {
		return err
	}
	o.bus.Publish(ctx, entities.EventPaymentCaptured, "transaction:"+tx.ID.String(), map[string]interface{}{
		"processor":  tx.Processor,
		"mid":        tx.MerchantAccount,
		"amount":     amount,
		"fees":       fees,
		"net":        net,
		"creator_id": tx.CreatorID,
	})
	return nil
}

// applyRefundOK confirms a processor-side refund: the matching processed
// refund, if any, is sealed as reconciled. No ledger effect here: the post
// happened when the refund was processed.
func (o *Orchestrator) applyRefundOK(ctx context.Context, tx *entities.Transaction, ev entities.CanonicalWebhookEvent) error {
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID:      tx.ID,
		EventKind:          entities.EventRefundOK,
		EventSource:        ev.Processor,
		AmountDelta:        ev.Amount,
		ProcessorEventID:   null.StringFrom(ev.ExternalEventID),
		Success:            true,
		ProcessorTimestamp: ev.ProcessorTimestamp,
	}); err != nil {
		return err
	}
	refunds, err := o.refundRepo.ListByTransaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	for _, r := range refunds {
		if r.Status == entities.RefundProcessed && r.Amount.MinorUnits == ev.Amount.MinorUnits {
			return o.updateRefund(ctx, r, func(rr *entities.Refund) {
				rr.Status = entities.RefundReconciled
			})
		}
	}
	return nil
}

func (o *Orchestrator) applyPayoutWebhook(ctx context.Context, ev entities.CanonicalWebhookEvent) error {
	id, err := uuid.Parse(ev.TransactionRef)
	if err != nil {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "payout webhook carries no payout id", err)
	}
	payout, err := o.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	o.creatorLocks.Lock(payout.CreatorID)
	defer o.creatorLocks.Unlock(payout.CreatorID)

	switch ev.Type {
	case entities.WebhookPayoutCompleted:
		if payout.Status != entities.PayoutSent {
			return nil // late or out-of-order, nothing to apply
		}
		if err := o.updatePayout(ctx, payout, func(p *entities.Payout) {
			p.Status = entities.PayoutCompleted
		}); err != nil {
			return err
		}
		o.bus.Publish(ctx, entities.EventPayoutCompleted, "payout:"+payout.ID.String(), map[string]interface{}{
			"creator_id": payout.CreatorID,
			"net":        payout.NetAmount(),
		})
		return nil
	case entities.WebhookPayoutFailed:
		if payout.Status.Terminal() {
			return nil
		}
		return o.failPayout(ctx, payout, domainerrors.CodeHardDecline)
	default:
		return domainerrors.New(domainerrors.CodeInvalidRequest, "unhandled payout webhook type", nil)
	}
}
