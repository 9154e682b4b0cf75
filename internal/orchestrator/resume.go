package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/router"
)

// ResumeHeldPayment resolves a requires_verification hold once a reviewer
// decides. Approval releases the transaction back
// into the machine at verified and runs it to capture; denial sinks it in
// blocked.
func (o *Orchestrator) ResumeHeldPayment(ctx context.Context, txID uuid.UUID, approve bool) error {
	o.txLocks.Lock(txID.String())
	defer o.txLocks.Unlock(txID.String())

	tx, err := o.txRepo.GetByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != entities.TxRequiresVerification {
		return domainerrors.New(domainerrors.CodeConflict, "transaction is not held for verification", nil)
	}

	if !approve {
		if err := o.recordEvent(ctx, &entities.TransactionEvent{
			TransactionID: tx.ID,
			EventKind:     entities.EventBlocked,
			EventSource:   "approval",
			Success:       false,
			ErrorCode:     null.StringFrom(string(domainerrors.CodeFraud)),
		}); err != nil {
			return err
		}
		if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
			t.Status = entities.TxBlocked
		}); err != nil {
			return err
		}
		o.bus.Publish(ctx, entities.EventPaymentBlocked, "transaction:"+tx.ID.String(), map[string]interface{}{
			"score": tx.TrustScore, "source": "manual_review",
		})
		return nil
	}

	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventVerified,
		EventSource:   "approval",
		Success:       true,
	}); err != nil {
		return err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxVerified
	}); err != nil {
		return err
	}

	chain, err := o.router.Route(ctx, router.Request{
		FanID:       tx.FanID,
		Platform:    tx.Platform,
		Currency:    tx.Amount.Currency,
		Method:      tx.Method.Variant,
		AmountMinor: tx.Amount.MinorUnits,
		TrustScore:  tx.TrustScore,
		BIN:         binOf(tx.Method),
		At:          o.clock.Now(),
	})
	if err != nil {
		_, ferr := o.failPayment(ctx, tx, &entities.TrustScore{Decision: entities.DecisionChallenge}, err)
		if ferr != nil {
			return ferr
		}
		return err
	}
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventRouted,
		EventSource:   "router",
		Success:       true,
	}); err != nil {
		return err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxRouted
	}); err != nil {
		return err
	}

	authRes, mid, adapter, err := o.authorizeWithFallback(ctx, tx, chain)
	if err != nil {
		_, ferr := o.failPayment(ctx, tx, &entities.TrustScore{Decision: entities.DecisionChallenge}, err)
		if ferr != nil {
			return ferr
		}
		return err
	}
	authorizedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventAuthOK,
		EventSource:   adapter.Name(),
		AmountDelta:   tx.Amount,
		Success:       true,
	}); err != nil {
		return err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxAuthorized
		t.Processor = adapter.Name()
		t.MerchantAccount = mid
		t.ProcessorAuthRef = null.StringFrom(authRes.ProcessorAuthRef)
		t.AuthorizedAt = &authorizedAt
	}); err != nil {
		return err
	}
	o.bus.Publish(ctx, entities.EventPaymentAuthorized, "transaction:"+tx.ID.String(), map[string]interface{}{
		"processor": adapter.Name(), "mid": mid, "amount": tx.Amount,
	})

	if err := o.capture(ctx, tx, adapter, authRes.ProcessorAuthRef); err != nil {
		_, ferr := o.failPayment(ctx, tx, &entities.TrustScore{Decision: entities.DecisionChallenge}, err)
		if ferr != nil {
			return ferr
		}
		return err
	}
	return nil
}
