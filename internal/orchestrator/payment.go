package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/metrics"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/internal/router"
	"fanztrust.orchestrator/pkg/logger"
	"fanztrust.orchestrator/pkg/utils"
)

// PaymentResult is the response envelope for a payment request. It is what
// gets committed to the idempotency store, so replays return it
// byte-identically.
type PaymentResult struct {
	TransactionID uuid.UUID                  `json:"transactionId"`
	Status        entities.TransactionStatus `json:"status"`
	TrustScore    int                        `json:"trustScore"`
	Decision      entities.TrustDecision     `json:"decision"`
	Processor     string                     `json:"processor,omitempty"`
	MID           string                     `json:"mid,omitempty"`
	FailureCode   string                     `json:"failureCode,omitempty"`
}

// CreatePayment runs the payment state machine end to end:
// initiated → verified → routed → authorized → captured.
func (o *Orchestrator) CreatePayment(ctx context.Context, input entities.CreatePaymentInput) (*PaymentResult, error) {
	if err := o.validatePayment(input); err != nil {
		return nil, err
	}
	if !input.Urgent && o.overloaded(ctx) {
		return nil, domainerrors.New(domainerrors.CodeServiceOverloaded, "engine overloaded, retry later", domainerrors.ErrServiceOverloaded).
			WithRetryAfter(5 * time.Second)
	}

	idemKey := input.IdempotencyKey
	if idemKey == "" {
		idemKey = normalizedRequestHash(input)
	}
	res, err := o.idem.Reserve(ctx, entities.ScopeInboundRequest, idemKey, inboundTTL)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case entities.ReservationCommitted:
		var prior PaymentResult
		if err := json.Unmarshal(res.Response, &prior); err != nil {
			return nil, err
		}
		return &prior, nil
	case entities.ReservationInFlight:
		return nil, domainerrors.New(domainerrors.CodeDuplicate, "request already in flight", domainerrors.ErrInFlight).
			WithRetryAfter(time.Second)
	}

	ctx, cancel := context.WithTimeout(ctx, paymentDeadline)
	defer cancel()

	result, err := o.runPayment(ctx, input)
	if err != nil {
		// The reservation is released so the client can retry a failed
		// request fresh; terminal business outcomes (blocked, declined) are
		// results, not errors, and get committed below.
		_ = o.idem.Release(ctx, entities.ScopeInboundRequest, idemKey)
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := o.idem.Commit(ctx, entities.ScopeInboundRequest, idemKey, payload, inboundTTL); err != nil {
		logger.WithContext(ctx).Error("idempotency commit failed", zap.Error(err))
	}
	return result, nil
}

func (o *Orchestrator) validatePayment(input entities.CreatePaymentInput) error {
	if input.Amount.MinorUnits < o.cfg.Money.MinTransactionAmount {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "amount below minimum", nil)
	}
	if input.Amount.MinorUnits > o.cfg.Money.MaxTransactionAmount {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "amount above maximum", nil)
	}
	if input.Amount.Currency == "" {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "currency required", nil)
	}
	if input.FanID == "" || input.CreatorID == "" {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "fan and creator ids required", nil)
	}
	return nil
}

func (o *Orchestrator) runPayment(ctx context.Context, input entities.CreatePaymentInput) (*PaymentResult, error) {
	now := o.clock.Now()
	tx := &entities.Transaction{
		ID:            utils.GenerateUUIDv7(),
		FanID:         input.FanID,
		CreatorID:     input.CreatorID,
		Platform:      input.Platform,
		Amount:        input.Amount,
		Fees:          entities.NewMoney(0, input.Amount.Currency),
		RefundedTotal: entities.NewMoney(0, input.Amount.Currency),
		Method:        input.Method,
		Status:        entities.TxInitiated,
		InitiatedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if err := o.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventInitiated,
		EventSource:   "orchestrator",
		AmountDelta:   tx.Amount,
		Success:       true,
	}); err != nil {
		return nil, err
	}

	o.txLocks.Lock(tx.ID.String())
	defer o.txLocks.Unlock(tx.ID.String())

	// initiated → verified, gated on the trust decision.
	score, err := o.trust.Decide(ctx, tx.ID.String(), entities.VerificationRequest{
		FanID:             input.FanID,
		CreatorID:         input.CreatorID,
		Platform:          input.Platform,
		Method:            input.Method,
		Amount:            input.Amount,
		Email:             input.Email,
		Timestamp:         now,
		DeviceFingerprint: input.DeviceFingerprint,
		IP:                input.IP,
	})
	if err != nil {
		return nil, err
	}
	o.bus.Publish(ctx, entities.EventTrustScored, "transaction:"+tx.ID.String(), score)

	switch score.Decision {
	case entities.DecisionBlock:
		return o.blockPayment(ctx, tx, score)
	case entities.DecisionChallenge:
		return o.holdForVerification(ctx, tx, score)
	}

	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventVerified,
		EventSource:   "trust",
		Success:       true,
	}); err != nil {
		return nil, err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxVerified
		t.TrustScore = score.Score
		t.RiskFlags = score.ReasonCodes
	}); err != nil {
		return nil, err
	}

	// verified → routed.
	chain, err := o.router.Route(ctx, router.Request{
		FanID:       input.FanID,
		Platform:    input.Platform,
		Currency:    input.Amount.Currency,
		Method:      input.Method.Variant,
		AmountMinor: input.Amount.MinorUnits,
		TrustScore:  score.Score,
		BIN:         binOf(input.Method),
		At:          o.clock.Now(),
	})
	if err != nil {
		return o.failPayment(ctx, tx, score, err)
	}
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventRouted,
		EventSource:   "router",
		Success:       true,
	}); err != nil {
		return nil, err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxRouted
	}); err != nil {
		return nil, err
	}

	// routed → authorized, walking the fallback chain.
	authRes, mid, adapter, err := o.authorizeWithFallback(ctx, tx, chain)
	if err != nil {
		return o.failPayment(ctx, tx, score, err)
	}
	authorizedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventAuthOK,
		EventSource:   adapter.Name(),
		AmountDelta:   tx.Amount,
		Success:       true,
	}); err != nil {
		return nil, err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxAuthorized
		t.Processor = adapter.Name()
		t.MerchantAccount = mid
		t.ProcessorAuthRef = null.StringFrom(authRes.ProcessorAuthRef)
		t.RiskFlags = append(t.RiskFlags, authRes.RiskFlags...)
		t.AuthorizedAt = &authorizedAt
	}); err != nil {
		return nil, err
	}
	o.bus.Publish(ctx, entities.EventPaymentAuthorized, "transaction:"+tx.ID.String(), map[string]interface{}{
		"processor": adapter.Name(), "mid": mid, "amount": tx.Amount,
	})

	// authorized → captured with the balanced ledger post.
	if err := o.capture(ctx, tx, adapter, authRes.ProcessorAuthRef); err != nil {
		return o.failPayment(ctx, tx, score, err)
	}

	metrics.TransactionsTotal.WithLabelValues(string(entities.TxCaptured)).Inc()
	return &PaymentResult{
		TransactionID: tx.ID,
		Status:        tx.Status,
		TrustScore:    score.Score,
		Decision:      score.Decision,
		Processor:     tx.Processor,
		MID:           tx.MerchantAccount,
	}, nil
}

// authorizeWithFallback tries each MID in order. Transient errors retry
// with backoff on the same MID; a retriable decline moves to the next MID;
// hard declines, fraud and invalid requests short-circuit.
func (o *Orchestrator) authorizeWithFallback(ctx context.Context, tx *entities.Transaction, chain []string) (processor.AuthorizeResult, string, *processor.Guarded, error) {
	var lastErr error
	for _, mid := range chain {
		acc := o.resolve(mid)
		if acc == nil {
			continue
		}
		adapter := o.adapters.Get(acc.Processor)
		if adapter == nil {
			continue
		}

		res, err := o.authorizeOnce(ctx, tx, adapter, acc)
		if err == nil {
			return res, mid, adapter, nil
		}
		lastErr = err

		code := taxonomyOf(err)
		_ = o.recordEvent(ctx, &entities.TransactionEvent{
			TransactionID: tx.ID,
			EventKind:     entities.EventAuthDeclined,
			EventSource:   acc.Processor,
			Success:       false,
			ErrorCode:     null.StringFrom(string(code)),
		})
		switch code {
		case domainerrors.CodeRetriableDecline, domainerrors.CodeTransient, domainerrors.CodeTimeout,
			domainerrors.CodeRateLimited, domainerrors.CodeUnknown:
			continue // next MID in the fallback chain
		default:
			return processor.AuthorizeResult{}, "", nil, err
		}
	}
	if lastErr == nil {
		lastErr = domainerrors.New(domainerrors.CodeHardDecline, "no merchant account available", nil)
	}
	return processor.AuthorizeResult{}, "", nil, lastErr
}

// authorizeOnce retries transient failures against one MID under the
// outbound idempotency key (transaction id + attempt #) so replays after a
// crash are safe.
func (o *Orchestrator) authorizeOnce(ctx context.Context, tx *entities.Transaction, adapter *processor.Guarded, acc *entities.MerchantAccount) (processor.AuthorizeResult, error) {
	var lastErr error
	for try := 0; try < o.cfg.Retry.MaxAttempts; try++ {
		tx.Attempt++
		ref := processor.AttemptRef{TransactionID: tx.ID.String(), Attempt: tx.Attempt}

		var res processor.AuthorizeResult
		err := o.outboundIdempotent(ctx, ref, "authorize", &res, func() (interface{}, error) {
			r, e := adapter.Authorize(ctx, processor.AuthorizeRequest{
				Attempt:    ref,
				MID:        acc.MID,
				Amount:     tx.Amount,
				Method:     tx.Method,
				FanID:      tx.FanID,
				Descriptor: acc.Descriptor,
			})
			return r, e
		})
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return processor.AuthorizeResult{}, domainerrors.New(domainerrors.CodeTimeout, "payment deadline exceeded during authorize", ctx.Err())
		}
		code := taxonomyOf(err)
		if code == domainerrors.CodeUnknown && try >= o.cfg.Retry.MaxAttempts/2 {
			// Unknown errors get a reduced retry budget.
			break
		}
		if code != domainerrors.CodeTransient && code != domainerrors.CodeRateLimited && code != domainerrors.CodeUnknown {
			break
		}
		o.clock.Sleep(backoffDelay(o.cfg.Retry, try))
	}
	return processor.AuthorizeResult{}, lastErr
}

// capture performs transition 4: the capture call, the fee computation and
// the balanced ledger post, in that order, then the single
// payment.captured event.
func (o *Orchestrator) capture(ctx context.Context, tx *entities.Transaction, adapter *processor.Guarded, authRef string) error {
	ref := processor.AttemptRef{TransactionID: tx.ID.String(), Attempt: tx.Attempt}
	var capRes processor.CaptureResult
	err := o.outboundIdempotent(ctx, ref, "capture", &capRes, func() (interface{}, error) {
		r, e := adapter.Capture(ctx, processor.CaptureRequest{
			Attempt:          ref,
			MID:              tx.MerchantAccount,
			ProcessorAuthRef: authRef,
			Amount:           tx.Amount,
		})
		return r, e
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelAuthorized(ctx, tx, adapter, authRef)
		}
		return err
	}

	platformFee, processorFee := o.computeFees(tx.Amount, adapter.Name())
	fees := platformFee.Add(processorFee)
	net := tx.Amount.Sub(fees)

	pairID := ledger.PairID("tx", tx.ID.String(), "capture")
	entries := []*entities.LedgerEntry{
		{Account: accountFor(entities.AccountFanReceivable, tx.FanID), Direction: entities.Debit, Amount: tx.Amount, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountCreatorPayable, tx.CreatorID), Direction: entities.Credit, Amount: net, TransactionRef: tx.ID.String()},
		{Account: entities.AccountPlatformFeeRevenue, Direction: entities.Credit, Amount: platformFee, TransactionRef: tx.ID.String()},
		{Account: accountFor(entities.AccountProcessorPayable, adapter.Name()), Direction: entities.Credit, Amount: processorFee, TransactionRef: tx.ID.String()},
	}

	capturedAt := o.clock.Now()
	// The ledger post is atomic with the state change it gates is atomic with the transition that produced it).
	if err := o.atomically(ctx, func(ctx context.Context) error {
		if err := o.ledger.Post(ctx, pairID, entries); err != nil {
			return err
		}
		if err := o.recordEvent(ctx, &entities.TransactionEvent{
			TransactionID: tx.ID,
			EventKind:     entities.EventCaptureOK,
			EventSource:   adapter.Name(),
			AmountDelta:   tx.Amount,
			Success:       true,
		}); err != nil {
			return err
		}
		return o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
			t.Status = entities.TxCaptured
			t.Fees = fees
			t.ProcessorCaptureRef = null.StringFrom(capRes.ProcessorCaptureRef)
			t.CapturedAt = &capturedAt
		})
	}); err != nil {
		return err
	}

	o.bus.Publish(ctx, entities.EventPaymentCaptured, "transaction:"+tx.ID.String(), map[string]interface{}{
		"processor":  adapter.Name(),
		"mid":        tx.MerchantAccount,
		"amount":     tx.Amount,
		"fees":       fees,
		"net":        net,
		"creator_id": tx.CreatorID,
	})
	return nil
}

// cancelAuthorized is the cancellation path: the deadline fired after
// authorization but before capture. The void is best-effort; the
// transaction lands in failed with reason timeout either way, and no ledger
// entries exist yet so no compensation is needed.
func (o *Orchestrator) cancelAuthorized(ctx context.Context, tx *entities.Transaction, adapter *processor.Guarded, authRef string) error {
	voidCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := adapter.Void(voidCtx, processor.VoidRequest{
		Attempt:          processor.AttemptRef{TransactionID: tx.ID.String(), Attempt: tx.Attempt},
		MID:              tx.MerchantAccount,
		ProcessorAuthRef: authRef,
	}); err != nil {
		logger.WithContext(ctx).Warn("best-effort void failed after timeout",
			zap.String("transaction_id", tx.ID.String()), zap.Error(err))
	}
	return domainerrors.New(domainerrors.CodeTimeout, "payment deadline exceeded during capture", ctx.Err())
}

func (o *Orchestrator) blockPayment(ctx context.Context, tx *entities.Transaction, score *entities.TrustScore) (*PaymentResult, error) {
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventBlocked,
		EventSource:   "trust",
		Success:       false,
		ErrorCode:     null.StringFrom(string(domainerrors.CodeFraud)),
	}); err != nil {
		return nil, err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxBlocked
		t.TrustScore = score.Score
		t.RiskFlags = score.ReasonCodes
	}); err != nil {
		return nil, err
	}
	o.bus.Publish(ctx, entities.EventPaymentBlocked, "transaction:"+tx.ID.String(), map[string]interface{}{
		"score": score.Score, "reasons": score.ReasonCodes,
	})
	metrics.TransactionsTotal.WithLabelValues(string(entities.TxBlocked)).Inc()
	return &PaymentResult{
		TransactionID: tx.ID,
		Status:        entities.TxBlocked,
		TrustScore:    score.Score,
		Decision:      score.Decision,
	}, nil
}

// holdForVerification parks the transaction in requires_verification and
// enqueues a review item; amounts above manual_review_limit escalate
// straight to high priority.
func (o *Orchestrator) holdForVerification(ctx context.Context, tx *entities.Transaction, score *entities.TrustScore) (*PaymentResult, error) {
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxRequiresVerification
		t.TrustScore = score.Score
		t.RiskFlags = score.ReasonCodes
	}); err != nil {
		return nil, err
	}
	priority := approval.PriorityNormal
	if tx.Amount.MinorUnits >= o.cfg.Trust.ManualReviewLimit {
		priority = approval.PriorityHigh
	}
	if o.approvals != nil {
		if _, err := o.approvals.Enqueue(ctx, approval.EnqueueInput{
			EntityRef:    "transaction:" + tx.ID.String(),
			ApprovalType: entities.ApprovalTypeHighRiskPayment,
			Priority:     priority,
			SLAMinutes:   60,
		}); err != nil {
			return nil, err
		}
	}
	return &PaymentResult{
		TransactionID: tx.ID,
		Status:        entities.TxRequiresVerification,
		TrustScore:    score.Score,
		Decision:      score.Decision,
	}, nil
}

func (o *Orchestrator) failPayment(ctx context.Context, tx *entities.Transaction, score *entities.TrustScore, cause error) (*PaymentResult, error) {
	code := taxonomyOf(cause)
	failedAt := o.clock.Now()
	if err := o.recordEvent(ctx, &entities.TransactionEvent{
		TransactionID: tx.ID,
		EventKind:     entities.EventCaptureFailed,
		EventSource:   "orchestrator",
		Success:       false,
		ErrorCode:     null.StringFrom(string(code)),
	}); err != nil {
		return nil, err
	}
	if err := o.updateTransaction(ctx, tx, func(t *entities.Transaction) {
		t.Status = entities.TxFailed
		t.FailureCode = null.StringFrom(string(code))
		t.FailureReason = null.StringFrom(cause.Error())
		t.FailedAt = &failedAt
	}); err != nil {
		return nil, err
	}
	o.bus.Publish(ctx, entities.EventPaymentFailed, "transaction:"+tx.ID.String(), map[string]interface{}{
		"code": code,
	})
	metrics.TransactionsTotal.WithLabelValues(string(entities.TxFailed)).Inc()
	return &PaymentResult{
		TransactionID: tx.ID,
		Status:        entities.TxFailed,
		TrustScore:    tx.TrustScore,
		Decision:      score.Decision,
		FailureCode:   string(code),
	}, nil
}

// computeFees derives platform and processor fees from the configured basis
// points.
func (o *Orchestrator) computeFees(amount entities.Money, processorName string) (platform, proc entities.Money) {
	platformMinor := amount.MinorUnits * o.cfg.Money.PlatformFeeRateBps / 10_000
	procBps := o.cfg.Money.ProcessingFeeRateBpsByProcessor[processorName]
	procMinor := amount.MinorUnits * procBps / 10_000
	return entities.NewMoney(platformMinor, amount.Currency), entities.NewMoney(procMinor, amount.Currency)
}

// outboundIdempotent wraps one processor call in the outbound-call
// idempotency scope keyed by (transaction id, attempt, op): a committed
// prior result short-circuits the call, and a processor-side duplicate
// resolves to the stored result.
func (o *Orchestrator) outboundIdempotent(ctx context.Context, ref processor.AttemptRef, op string, out interface{}, call func() (interface{}, error)) error {
	key := fmt.Sprintf("%s:%d:%s", ref.TransactionID, ref.Attempt, op)
	res, err := o.idem.Reserve(ctx, entities.ScopeOutboundCall, key, outboundTTL)
	if err != nil {
		return err
	}
	if res.State == entities.ReservationCommitted {
		return json.Unmarshal(res.Response, out)
	}
	if res.State == entities.ReservationInFlight {
		return domainerrors.New(domainerrors.CodeTransient, "outbound call already in flight", domainerrors.ErrInFlight)
	}

	result, callErr := call()
	if callErr != nil {
		var ce *domainerrors.CoreError
		if errors.As(callErr, &ce) && ce.Code == domainerrors.CodeDuplicate {
			// The processor saw this reference before; a prior committed
			// attempt is the canonical outcome if present.
			if prior, err := o.idem.Reserve(ctx, entities.ScopeOutboundCall, key, outboundTTL); err == nil && prior.State == entities.ReservationCommitted {
				return json.Unmarshal(prior.Response, out)
			}
		}
		_ = o.idem.Release(ctx, entities.ScopeOutboundCall, key)
		return callErr
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := o.idem.Commit(ctx, entities.ScopeOutboundCall, key, payload, outboundTTL); err != nil {
		logger.WithContext(ctx).Error("outbound idempotency commit failed", zap.Error(err))
	}
	return json.Unmarshal(payload, out)
}

// taxonomyOf collapses any error to its canonical code.
func taxonomyOf(err error) domainerrors.Code {
	var ce *domainerrors.CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domainerrors.CodeTimeout
	}
	return domainerrors.CodeUnknown
}

func binOf(m entities.PaymentMethod) string {
	if m.Variant == entities.MethodCard && m.Card != nil {
		return m.Card.BIN
	}
	return ""
}

// normalizedRequestHash derives a dedup key when the client supplied no
// idempotency id: a hash over the request's identifying fields.
func normalizedRequestHash(input entities.CreatePaymentInput) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%s",
		input.FanID, input.CreatorID, input.Platform,
		input.Amount.MinorUnits, input.Amount.Currency, input.Method.Describe())
	return hex.EncodeToString(h.Sum(nil))
}
