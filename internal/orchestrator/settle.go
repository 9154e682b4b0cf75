package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"fanztrust.orchestrator/internal/domain/entities"
)

// MarkSettled moves a captured transaction to settled on behalf of the
// Settlement Engine. Status writes stay with the
// orchestrator; the engine matches, the orchestrator
// records.
func (o *Orchestrator) MarkSettled(ctx context.Context, txID uuid.UUID) error {
	o.txLocks.Lock(txID.String())
	defer o.txLocks.Unlock(txID.String())

	tx, err := o.txRepo.GetByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != entities.TxCaptured {
		return nil // already settled, refunded or disputed; nothing to move
	}
	settledAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventSettled,
		EventSource:   "settlement",
		Success:       true,
	}); err != nil {
		return err
	}
	return o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxSettled
		t.SettledAt = &settledAt
	})
}
