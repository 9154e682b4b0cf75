package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/ledger"
)

func TestFullRefundNetsLedgerToZero(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-refund-full"))
	require.NoError(t, err)
	require.Equal(t, entities.TxCaptured, payment.Status)

	res, err := h.orch.RequestRefund(ctx, entities.RefundRequest{
		IdempotencyKey: "refund-full-1",
		TransactionID:  payment.TransactionID,
		Amount:         usd(1000),
		Reason:         "customer_request",
		DecisionSource: entities.RefundDecisionAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.RefundProcessed, res.Status)
	assert.Equal(t, entities.TxRefunded, res.TransactionStatus)

	// Net-zero per account after a full refund.
	for _, account := range []string{
		"fan_receivable:F1",
		"creator_payable:C1",
		entities.AccountPlatformFeeRevenue,
		"processor_payable:ccbill",
	} {
		balance, err := h.orch.ledger.Balance(ctx, account, nil)
		require.NoError(t, err)
		assert.Zero(t, balance.MinorUnits, "account %s should net to zero", account)
	}

	tx, err := h.txRepo.GetByID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxRefunded, tx.Status)
	assert.Equal(t, int64(1000), tx.RefundedTotal.MinorUnits)

	require.Len(t, h.eventsOfType(entities.EventRefundProcessed), 1)
}

func TestPartialRefundThenCaptureReplay(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-refund-partial"))
	require.NoError(t, err)

	res, err := h.orch.RequestRefund(ctx, entities.RefundRequest{
		IdempotencyKey: "refund-partial-1",
		TransactionID:  payment.TransactionID,
		Amount:         usd(400),
		Reason:         "customer_request",
		DecisionSource: entities.RefundDecisionAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.RefundProcessed, res.Status)
	assert.Equal(t, entities.TxCaptured, res.TransactionStatus)

	capturePair := ledger.PairID("tx", payment.TransactionID.String(), "capture")
	entriesBefore := len(h.ledgerRepo.entriesForPair(capturePair))

	// A delayed duplicate of the original capture arrives.
	err = h.orch.ApplyWebhookEvent(ctx, entities.CanonicalWebhookEvent{
		Processor:       "ccbill",
		ExternalEventID: "evt-replay-1",
		Type:            entities.WebhookCaptureOK,
		TransactionRef:  payment.TransactionID.String(),
		Amount:          usd(1000),
	})
	require.NoError(t, err)

	assert.Len(t, h.ledgerRepo.entriesForPair(capturePair), entriesBefore)

	tx, err := h.txRepo.GetByID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxCaptured, tx.Status)
	assert.Equal(t, int64(400), tx.RefundedTotal.MinorUnits)

	require.Len(t, h.eventsOfType(entities.EventPaymentCaptured), 1)
}

func TestRefundBoundEnforced(t *testing.T) {
	h := newHarness(t, 85)
	ctx := context.Background()

	payment, err := h.orch.CreatePayment(ctx, cardInput("idem-refund-bound"))
	require.NoError(t, err)

	_, err = h.orch.RequestRefund(ctx, entities.RefundRequest{
		IdempotencyKey: "refund-bound-1",
		TransactionID:  payment.TransactionID,
		Amount:         usd(600),
		Reason:         "customer_request",
		DecisionSource: entities.RefundDecisionAuto,
	})
	require.NoError(t, err)

	// 600 already refunded; another 600 would exceed the captured amount.
	_, err = h.orch.RequestRefund(ctx, entities.RefundRequest{
		IdempotencyKey: "refund-bound-2",
		TransactionID:  payment.TransactionID,
		Amount:         usd(600),
		Reason:         "customer_request",
		DecisionSource: entities.RefundDecisionAuto,
	})
	require.Error(t, err)
}

func TestRefundManualReviewQueuesApproval(t *testing.T) {
	// Score 40 is below the refund auto-approve threshold (60), so the
	// refund lands in manual review.
	low := newHarness(t, 40)
	ctx := context.Background()

	lowPayment, err := low.orch.CreatePayment(ctx, cardInput("idem-refund-review-low"))
	require.NoError(t, err)

	// Score 40 also challenges the payment; approve it so it captures first.
	require.NoError(t, low.orch.ResumeHeldPayment(ctx, lowPayment.TransactionID, true))

	res, err := low.orch.RequestRefund(ctx, entities.RefundRequest{
		IdempotencyKey: "refund-review-1",
		TransactionID:  lowPayment.TransactionID,
		Amount:         usd(1000),
		Reason:         "customer_request",
		DecisionSource: entities.RefundDecisionManual,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.RefundPending, res.Status)

	pending, err := low.approvals.ListPending(ctx)
	require.NoError(t, err)
	var refundApprovals int
	for _, a := range pending {
		if a.ApprovalType == entities.ApprovalTypeRefund {
			refundApprovals++
			assert.Equal(t, "refund:"+res.RefundID.String(), a.EntityRef)
		}
	}
	require.Equal(t, 1, refundApprovals)

	// Manual approval processes the refund.
	require.NoError(t, low.orch.ResolveRefundApproval(ctx, res.RefundID, true, "verified with fan"))
	refund, err := low.refunds.GetByID(ctx, res.RefundID)
	require.NoError(t, err)
	assert.Equal(t, entities.RefundProcessed, refund.Status)
}
