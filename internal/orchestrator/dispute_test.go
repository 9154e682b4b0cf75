package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/domain/entities"
)

func TestChargebackWebhookOpensDisputeAndEscalates(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-dispute-1"))
	require.NoError(t, err)

	require.NoError(t, h.orch.ApplyWebhookEvent(ctx, entities.CanonicalWebhookEvent{
		Processor:       "ccbill",
		ExternalEventID: "evt-cb-1",
		Type:            entities.WebhookChargebackReceived,
		TransactionRef:  payment.TransactionID.String(),
		Amount:          usd(1000),
		Raw:             []byte(`{"dispute_type":"chargeback","reason":"fraudulent"}`),
	}))

	tx, err := h.txRepo.GetByID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxDisputed, tx.Status)

	dispute, err := h.disputes.GetByTransaction(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.DisputeTypeChargeback, dispute.Type)
	assert.Equal(t, entities.DisputeInitial, dispute.Stage)
	assert.Equal(t, "fraudulent", dispute.Reason)

	pending, err := h.approvals.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entities.ApprovalTypeDispute, pending[0].ApprovalType)

	require.Len(t, h.eventsOfType(entities.EventDisputeOpened), 1)
}

func TestRetrievalAutoRespondsWithoutInterruptingTransaction(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-retrieval-1"))
	require.NoError(t, err)

	require.NoError(t, h.orch.ApplyWebhookEvent(ctx, entities.CanonicalWebhookEvent{
		Processor:       "ccbill",
		ExternalEventID: "evt-rtr-1",
		Type:            entities.WebhookChargebackReceived,
		TransactionRef:  payment.TransactionID.String(),
		Amount:          usd(1000),
		Raw:             []byte(`{"dispute_type":"retrieval","reason":"info_request"}`),
	}))

	tx, err := h.txRepo.GetByID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxCaptured, tx.Status, "retrieval never interrupts the transaction")

	dispute, err := h.disputes.GetByTransaction(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.DisputeClosed, dispute.Stage)
	assert.True(t, dispute.EvidenceSubmitted)

	// No review item for a retrieval.
	pending, err := h.approvals.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, h.eventsOfType(entities.EventDisputeResponded), 1)
}

func TestConcededDisputeRefundsTransaction(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-concede-1"))
	require.NoError(t, err)

	require.NoError(t, h.orch.ApplyWebhookEvent(ctx, entities.CanonicalWebhookEvent{
		Processor:       "ccbill",
		ExternalEventID: "evt-cb-2",
		Type:            entities.WebhookChargebackReceived,
		TransactionRef:  payment.TransactionID.String(),
		Amount:          usd(1000),
		Raw:             []byte(`{"dispute_type":"chargeback","reason":"fraudulent"}`),
	}))

	dispute, err := h.disputes.GetByTransaction(ctx, payment.TransactionID)
	require.NoError(t, err)

	require.NoError(t, h.orch.RespondToDispute(ctx, dispute.ID, "conceding", true))

	tx, err := h.txRepo.GetByID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxRefunded, tx.Status)

	balance, err := h.orch.ledger.Balance(ctx, "creator_payable:C1", nil)
	require.NoError(t, err)
	assert.Zero(t, balance.MinorUnits)
}
