package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fanztrust.orchestrator/internal/domain/entities"
)

// TransactionRepository persists Transaction + TransactionEvent rows.
// Writes to Transaction status are owned exclusively by the Orchestrator.
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	Update(ctx context.Context, tx *entities.Transaction) error
	ListByCreator(ctx context.Context, creatorID string, capturedBefore, capturedAfter time.Time) ([]*entities.Transaction, error)
	FindByProcessorRef(ctx context.Context, processor, processorRef string) (*entities.Transaction, error)
	ListCapturedInWindow(ctx context.Context, processor string, windowStart, windowEnd time.Time) ([]*entities.Transaction, error)
}

type TransactionEventRepository interface {
	Create(ctx context.Context, ev *entities.TransactionEvent) error
	ListByTransaction(ctx context.Context, txID uuid.UUID) ([]*entities.TransactionEvent, error)
	CountByKind(ctx context.Context, txID uuid.UUID, kind entities.TransactionEventKind) (int, error)
}

type RefundRepository interface {
	Create(ctx context.Context, r *entities.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error)
	Update(ctx context.Context, r *entities.Refund) error
	SumProcessedByTransaction(ctx context.Context, txID uuid.UUID) (entities.Money, error)
	ListByTransaction(ctx context.Context, txID uuid.UUID) ([]*entities.Refund, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, d *entities.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Dispute, error)
	Update(ctx context.Context, d *entities.Dispute) error
	GetByTransaction(ctx context.Context, txID uuid.UUID) (*entities.Dispute, error)
}

type SettlementRepository interface {
	Create(ctx context.Context, s *entities.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error)
	Update(ctx context.Context, s *entities.Settlement) error
	FindByBatchRef(ctx context.Context, processor, batchRef string) (*entities.Settlement, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *entities.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Payout, error)
	Update(ctx context.Context, p *entities.Payout) error
	ListPendingByCreator(ctx context.Context, creatorID string) ([]*entities.Payout, error)
	ListApproved(ctx context.Context, limit int) ([]*entities.Payout, error)
}

type PayoutBatchRepository interface {
	Create(ctx context.Context, b *entities.PayoutBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PayoutBatch, error)
}

// MerchantAccountRepository is read-mostly; see internal/infrastructure/cache
// for the snapshot layer the Router actually reads from.
type MerchantAccountRepository interface {
	ListActive(ctx context.Context) ([]*entities.MerchantAccount, error)
	GetByMID(ctx context.Context, mid string) (*entities.MerchantAccount, error)
}

type RoutingRuleRepository interface {
	ListActive(ctx context.Context) ([]*entities.RoutingRule, error)
}

type TrustScoreRepository interface {
	Create(ctx context.Context, s *entities.TrustScore) error
	GetByTransaction(ctx context.Context, txID string) (*entities.TrustScore, error)
}

type ApprovalRepository interface {
	Create(ctx context.Context, a *entities.Approval) error
	GetByID(ctx context.Context, id string) (*entities.Approval, error)
	Update(ctx context.Context, a *entities.Approval) error
	ListPastSLA(ctx context.Context, asOf time.Time) ([]*entities.Approval, error)
	ListPending(ctx context.Context) ([]*entities.Approval, error)
}

// LedgerRepository is append-only; there is no
// Update/Delete on purpose.
type LedgerRepository interface {
	Append(ctx context.Context, entries []*entities.LedgerEntry) error
	ExistsPair(ctx context.Context, pairID string) ([]*entities.LedgerEntry, bool, error)
	Balance(ctx context.Context, account string, asOf *time.Time) (entities.Money, error)
	Replay(ctx context.Context, account string) ([]*entities.LedgerEntry, error)
}
