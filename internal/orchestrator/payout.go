package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/pkg/logger"
	"fanztrust.orchestrator/pkg/utils"
)

// PayoutResult is the response envelope for a payout request.
type PayoutResult struct {
	PayoutID uuid.UUID             `json:"payoutId"`
	Status   entities.PayoutStatus `json:"status"`
	Net      entities.Money        `json:"net"`
}

// RequestPayout runs pending → approved of the payout machine.
// Entering approved requires the creator's ledger balance to cover the
// payout, the method minimum to be met, and no open hold on the creator.
// Payouts for one creator are serialized on the creator stripe lock to
// preserve the balance invariant under concurrency.
func (o *Orchestrator) RequestPayout(ctx context.Context, req entities.PayoutRequest) (*PayoutResult, error) {
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "payout requests require an idempotency key", nil)
	}
	res, err := o.idem.Reserve(ctx, entities.ScopeInboundRequest, idemKey, inboundTTL)
	if err != nil {
		return nil, err
	}
	switch res.State {
	case entities.ReservationCommitted:
		var prior PayoutResult
		if err := json.Unmarshal(res.Response, &prior); err != nil {
			return nil, err
		}
		return &prior, nil
	case entities.ReservationInFlight:
		return nil, domainerrors.New(domainerrors.CodeDuplicate, "payout already in flight", domainerrors.ErrInFlight).
			WithRetryAfter(time.Second)
	}

	ctx, cancel := context.WithTimeout(ctx, payoutDeadline)
	defer cancel()

	result, err := o.runPayout(ctx, req)
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

func (o *Orchestrator) runPayout(ctx context.Context, req entities.PayoutRequest) (*PayoutResult, error) {
	if min, ok := o.cfg.Payout.MinimumsByMethod[string(req.Method)]; ok && req.Amount.MinorUnits < min {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "payout below method minimum", nil)
	}
	if o.approvals != nil && o.approvals.HasOpenHold(ctx, "creator:"+req.CreatorID) {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "creator has an open hold", nil)
	}

	o.creatorLocks.Lock(req.CreatorID)
	defer o.creatorLocks.Unlock(req.CreatorID)

	balance, err := o.ledger.Balance(ctx, accountFor(entities.AccountCreatorPayable, req.CreatorID), nil)
	if err != nil {
		return nil, err
	}
	fees := entities.NewMoney(0, req.Amount.Currency)
	if balance.Currency != "" && !balance.SameCurrency(req.Amount) {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "payout currency does not match creator balance", nil)
	}
	if balance.MinorUnits < req.Amount.MinorUnits+fees.MinorUnits {
		return nil, domainerrors.New(domainerrors.CodeInvalidRequest, "insufficient_balance", nil).
			WithHint("available balance does not cover payout amount plus fees")
	}

	now := o.clock.Now()
	payout := &entities.Payout{
		ID:             utils.GenerateUUIDv7(),
		CreatorID:      req.CreatorID,
		Method:         req.Method,
		Amount:         req.Amount,
		Fees:           fees,
		TaxWithholding: entities.NewMoney(0, req.Amount.Currency),
		Status:         entities.PayoutPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := o.payoutRepo.Create(ctx, payout); err != nil {
		return nil, err
	}

	// pending → approved is atomic with the ledger debit: the creator's
	// payable balance drops the instant the payout is approved, so a
	// concurrent payout sees the reduced balance.
	net := payout.NetAmount()
	pairID := ledger.PairID("payout", payout.ID.String(), "approve")
	entries := []*entities.LedgerEntry{
		{Account: accountFor(entities.AccountCreatorPayable, req.CreatorID), Direction: entities.Debit, Amount: req.Amount},
		{Account: accountFor(entities.AccountCreatorPayoutClearing, req.CreatorID), Direction: entities.Credit, Amount: net},
	}
	if payout.Fees.MinorUnits > 0 {
		entries = append(entries, &entities.LedgerEntry{
			Account: entities.AccountPlatformFeeRevenue, Direction: entities.Credit, Amount: payout.Fees,
		})
	}
	if err := o.atomically(ctx, func(ctx context.Context) error {
		if err := o.ledger.Post(ctx, pairID, entries); err != nil {
			return err
		}
		return o.updatePayout(ctx, payout, func(p *entities.Payout) {
			p.Status = entities.PayoutApproved
		})
	}); err != nil {
		return nil, err
	}
	return &PayoutResult{PayoutID: payout.ID, Status: payout.Status, Net: net}, nil
}

// BatchPayouts aggregates approved payouts for one rail into a PayoutBatch
// whose net is the sum of its members' nets, and marks them batched.
func (o *Orchestrator) BatchPayouts(ctx context.Context, rail string, limit int) (*entities.PayoutBatch, error) {
	approved, err := o.payoutRepo.ListApproved(ctx, limit)
	if err != nil {
		return nil, err
	}
	var members []*entities.Payout
	for _, p := range approved {
		if string(p.Method) == rail {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return nil, domainerrors.ErrNotFound
	}

	net := entities.NewMoney(0, members[0].NetAmount().Currency)
	batch := &entities.PayoutBatch{
		ID:        utils.GenerateUUIDv7(),
		Rail:      rail,
		CreatedAt: o.clock.Now(),
	}
	for _, p := range members {
		net = net.Add(p.NetAmount())
		batch.PayoutIDs = append(batch.PayoutIDs, p.ID)
	}
	batch.Net = net
	if err := o.batchRepo.Create(ctx, batch); err != nil {
		return nil, err
	}
	for _, p := range members {
		if err := o.updatePayout(ctx, p, func(pp *entities.Payout) {
			pp.Status = entities.PayoutBatched
			pp.BatchID = null.StringFrom(batch.ID.String())
		}); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// SendBatch pushes one batch to its payout rail: batched → sent. Members
// that are no longer in batched status are skipped.
// Completion arrives later via the payout_completed webhook.
func (o *Orchestrator) SendBatch(ctx context.Context, batchID uuid.UUID, dest map[uuid.UUID]string) error {
	batch, err := o.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	adapter := o.payoutAdapterFor(batch.Rail)
	if adapter == nil {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "no adapter serves this payout rail", nil)
	}

	for _, id := range batch.PayoutIDs {
		payout, err := o.payoutRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if payout.Status != entities.PayoutBatched {
			continue
		}
		ref := processor.AttemptRef{TransactionID: payout.ID.String(), Attempt: 1}
		var sendRes processor.PayoutSendResult
		err = o.outboundIdempotent(ctx, ref, "payout_send", &sendRes, func() (interface{}, error) {
			r, e := adapter.PayoutSend(ctx, processor.PayoutSendRequest{
				Attempt: ref,
				Rail:    batch.Rail,
				Amount:  payout.NetAmount(),
				Dest:    dest[payout.ID],
			})
			return r, e
		})
		if err != nil {
			if ferr := o.failPayout(ctx, payout, taxonomyOf(err)); ferr != nil {
				return ferr
			}
			continue
		}
		if err := o.updatePayout(ctx, payout, func(p *entities.Payout) {
			p.Status = entities.PayoutSent
		}); err != nil {
			return err
		}
		o.bus.Publish(ctx, entities.EventPayoutSent, "payout:"+payout.ID.String(), map[string]interface{}{
			"creator_id": payout.CreatorID,
			"net":        payout.NetAmount(),
			"batch_id":   batch.ID.String(),
			"rail":       batch.Rail,
		})
	}
	return nil
}

// failPayout compensates the approve-time debit so the creator's balance is
// restored, then sinks the payout in failed.
func (o *Orchestrator) failPayout(ctx context.Context, payout *entities.Payout, code domainerrors.Code) error {
	net := payout.NetAmount()
	pairID := ledger.PairID("payout", payout.ID.String(), "reverse")
	entries := []*entities.LedgerEntry{
		{Account: accountFor(entities.AccountCreatorPayable, payout.CreatorID), Direction: entities.Credit, Amount: payout.Amount},
		{Account: accountFor(entities.AccountCreatorPayoutClearing, payout.CreatorID), Direction: entities.Debit, Amount: net},
	}
	if payout.Fees.MinorUnits > 0 {
		entries = append(entries, &entities.LedgerEntry{
			Account: entities.AccountPlatformFeeRevenue, Direction: entities.Debit, Amount: payout.Fees,
		})
	}
	if err := o.ledger.Post(ctx, pairID, entries); err != nil {
		return err
	}
	if err := o.updatePayout(ctx, payout, func(p *entities.Payout) {
		p.Status = entities.PayoutFailed
		p.FailureReason = null.StringFrom(string(code))
	}); err != nil {
		return err
	}
	o.bus.Publish(ctx, entities.EventPayoutFailed, "payout:"+payout.ID.String(), map[string]interface{}{
		"creator_id": payout.CreatorID,
		"code":       code,
	})
	return nil
}

// CancelPayout cancels a payout that has not been sent yet, compensating
// the approve-time debit if one was posted.
func (o *Orchestrator) CancelPayout(ctx context.Context, payoutID uuid.UUID) error {
	payout, err := o.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	switch payout.Status {
	case entities.PayoutPending:
		return o.updatePayout(ctx, payout, func(p *entities.Payout) {
			p.Status = entities.PayoutCancelled
		})
	case entities.PayoutApproved, entities.PayoutBatched:
		net := payout.NetAmount()
		pairID := ledger.PairID("payout", payout.ID.String(), "reverse")
		entries := []*entities.LedgerEntry{
			{Account: accountFor(entities.AccountCreatorPayable, payout.CreatorID), Direction: entities.Credit, Amount: payout.Amount},
			{Account: accountFor(entities.AccountCreatorPayoutClearing, payout.CreatorID), Direction: entities.Debit, Amount: net},
		}
		if payout.Fees.MinorUnits > 0 {
			entries = append(entries, &entities.LedgerEntry{
				Account: entities.AccountPlatformFeeRevenue, Direction: entities.Debit, Amount: payout.Fees,
			})
		}
		if err := o.ledger.Post(ctx, pairID, entries); err != nil {
			return err
		}
		return o.updatePayout(ctx, payout, func(p *entities.Payout) {
			p.Status = entities.PayoutCancelled
		})
	default:
		return domainerrors.New(domainerrors.CodeConflict, "payout is not cancellable in its current state", nil)
	}
}

func (o *Orchestrator) payoutAdapterFor(rail string) *processor.Guarded {
	switch rail {
	case string(entities.PayoutMethodCrypto):
		return o.adapters.Get("coingate")
	case string(entities.PayoutMethodBank):
		return o.adapters.Get("segpay")
	default:
		return o.adapters.Get("ccbill")
	}
}

func (o *Orchestrator) updatePayout(ctx context.Context, p *entities.Payout, mutate func(*entities.Payout)) error {
	mutate(p)
	p.UpdatedAt = o.clock.Now()
	return o.payoutRepo.Update(ctx, p)
}
