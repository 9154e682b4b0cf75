package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

// In-memory repository fakes for orchestrator tests. They reproduce the
// contracts the GORM implementations honor: ErrNotFound, ErrVersionConflict
// on stale updates, and append-only ledger rows.

type memTxRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{rows: make(map[uuid.UUID]*entities.Transaction)}
}

func (r *memTxRepo) Create(_ context.Context, tx *entities.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.rows[tx.ID] = &cp
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memTxRepo) Update(_ context.Context, tx *entities.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tx.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != tx.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *tx
	cp.Version = tx.Version + 1
	r.rows[tx.ID] = &cp
	tx.Version = cp.Version
	return nil
}

func (r *memTxRepo) ListByCreator(_ context.Context, creatorID string, capturedBefore, capturedAfter time.Time) ([]*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Transaction
	for _, row := range r.rows {
		if row.CreatorID == creatorID && row.CapturedAt != nil &&
			row.CapturedAt.After(capturedAfter) && row.CapturedAt.Before(capturedBefore) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTxRepo) FindByProcessorRef(_ context.Context, processor, ref string) (*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Processor == processor && (row.ProcessorAuthRef.String == ref || row.ProcessorCaptureRef.String == ref) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *memTxRepo) ListCapturedInWindow(_ context.Context, processor string, start, end time.Time) ([]*entities.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Transaction
	for _, row := range r.rows {
		if row.Processor == processor && row.CapturedAt != nil &&
			!row.CapturedAt.Before(start) && row.CapturedAt.Before(end) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memTxEventRepo struct {
	mu   sync.Mutex
	rows []*entities.TransactionEvent
}

func newMemTxEventRepo() *memTxEventRepo { return &memTxEventRepo{} }

func (r *memTxEventRepo) Create(_ context.Context, ev *entities.TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memTxEventRepo) ListByTransaction(_ context.Context, txID uuid.UUID) ([]*entities.TransactionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.TransactionEvent
	for _, ev := range r.rows {
		if ev.TransactionID == txID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTxEventRepo) CountByKind(_ context.Context, txID uuid.UUID, kind entities.TransactionEventKind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.rows {
		if ev.TransactionID == txID && ev.EventKind == kind {
			n++
		}
	}
	return n, nil
}

type memRefundRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.Refund
}

func newMemRefundRepo() *memRefundRepo {
	return &memRefundRepo{rows: make(map[uuid.UUID]*entities.Refund)}
}

func (r *memRefundRepo) Create(_ context.Context, refund *entities.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *refund
	r.rows[refund.ID] = &cp
	return nil
}

func (r *memRefundRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memRefundRepo) Update(_ context.Context, refund *entities.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[refund.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != refund.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *refund
	cp.Version = refund.Version + 1
	r.rows[refund.ID] = &cp
	refund.Version = cp.Version
	return nil
}

func (r *memRefundRepo) SumProcessedByTransaction(_ context.Context, txID uuid.UUID) (entities.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total entities.Money
	for _, row := range r.rows {
		if row.TransactionID == txID &&
			(row.Status == entities.RefundProcessed || row.Status == entities.RefundReconciled) {
			if total.Currency == "" {
				total = row.Amount
			} else {
				total = total.Add(row.Amount)
			}
		}
	}
	return total, nil
}

func (r *memRefundRepo) ListByTransaction(_ context.Context, txID uuid.UUID) ([]*entities.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Refund
	for _, row := range r.rows {
		if row.TransactionID == txID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memDisputeRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.Dispute
}

func newMemDisputeRepo() *memDisputeRepo {
	return &memDisputeRepo{rows: make(map[uuid.UUID]*entities.Dispute)}
}

func (r *memDisputeRepo) Create(_ context.Context, d *entities.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.rows[d.ID] = &cp
	return nil
}

func (r *memDisputeRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memDisputeRepo) Update(_ context.Context, d *entities.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[d.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != d.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *d
	cp.Version = d.Version + 1
	r.rows[d.ID] = &cp
	d.Version = cp.Version
	return nil
}

func (r *memDisputeRepo) GetByTransaction(_ context.Context, txID uuid.UUID) (*entities.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TransactionID == txID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

type memPayoutRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.Payout
}

func newMemPayoutRepo() *memPayoutRepo {
	return &memPayoutRepo{rows: make(map[uuid.UUID]*entities.Payout)}
}

func (r *memPayoutRepo) Create(_ context.Context, p *entities.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.rows[p.ID] = &cp
	return nil
}

func (r *memPayoutRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memPayoutRepo) Update(_ context.Context, p *entities.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[p.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != p.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *p
	cp.Version = p.Version + 1
	r.rows[p.ID] = &cp
	p.Version = cp.Version
	return nil
}

func (r *memPayoutRepo) ListPendingByCreator(_ context.Context, creatorID string) ([]*entities.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Payout
	for _, row := range r.rows {
		if row.CreatorID == creatorID && row.Status == entities.PayoutPending {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPayoutRepo) ListApproved(_ context.Context, limit int) ([]*entities.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Payout
	for _, row := range r.rows {
		if row.Status == entities.PayoutApproved {
			cp := *row
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memBatchRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.PayoutBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{rows: make(map[uuid.UUID]*entities.PayoutBatch)}
}

func (r *memBatchRepo) Create(_ context.Context, b *entities.PayoutBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.rows[b.ID] = &cp
	return nil
}

func (r *memBatchRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.PayoutBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

type memLedgerRepo struct {
	mu   sync.Mutex
	rows []*entities.LedgerEntry
}

func newMemLedgerRepo() *memLedgerRepo { return &memLedgerRepo{} }

func (r *memLedgerRepo) Append(_ context.Context, entries []*entities.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		cp := *e
		r.rows = append(r.rows, &cp)
	}
	return nil
}

func (r *memLedgerRepo) ExistsPair(_ context.Context, pairID string) ([]*entities.LedgerEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.LedgerEntry
	for _, e := range r.rows {
		if e.PairID == pairID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out) > 0, nil
}

func (r *memLedgerRepo) Balance(_ context.Context, account string, asOf *time.Time) (entities.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	currency := ""
	for _, e := range r.rows {
		if e.Account != account {
			continue
		}
		if asOf != nil && e.CreatedAt.After(*asOf) {
			continue
		}
		currency = e.Amount.Currency
		if e.Direction == entities.Credit {
			total += e.Amount.MinorUnits
		} else {
			total -= e.Amount.MinorUnits
		}
	}
	return entities.NewMoney(total, currency), nil
}

func (r *memLedgerRepo) Replay(_ context.Context, account string) ([]*entities.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.LedgerEntry
	for _, e := range r.rows {
		if e.Account == account {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// entriesForPair is a test helper over the raw rows.
func (r *memLedgerRepo) entriesForPair(pairID string) []*entities.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.LedgerEntry
	for _, e := range r.rows {
		if e.PairID == pairID {
			out = append(out, e)
		}
	}
	return out
}

type memTrustScoreRepo struct {
	mu   sync.Mutex
	rows []*entities.TrustScore
}

func newMemTrustScoreRepo() *memTrustScoreRepo { return &memTrustScoreRepo{} }

func (r *memTrustScoreRepo) Create(_ context.Context, s *entities.TrustScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memTrustScoreRepo) GetByTransaction(_ context.Context, txID string) (*entities.TrustScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TransactionID == txID {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

type memApprovalRepo struct {
	mu   sync.Mutex
	rows map[string]*entities.Approval
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{rows: make(map[string]*entities.Approval)}
}

func (r *memApprovalRepo) Create(_ context.Context, a *entities.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memApprovalRepo) GetByID(_ context.Context, id string) (*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memApprovalRepo) Update(_ context.Context, a *entities.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[a.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != a.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *a
	cp.Version = a.Version + 1
	r.rows[a.ID] = &cp
	a.Version = cp.Version
	return nil
}

func (r *memApprovalRepo) ListPastSLA(_ context.Context, asOf time.Time) ([]*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Approval
	for _, row := range r.rows {
		if row.State == entities.ApprovalPending && row.SLAAt.Before(asOf) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memApprovalRepo) ListPending(_ context.Context) ([]*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Approval
	for _, row := range r.rows {
		if row.State == entities.ApprovalPending || row.State == entities.ApprovalEscalated {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}
