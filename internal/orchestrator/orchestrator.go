// Package orchestrator drives the payment, refund and payout state
// machines: it reserves idempotency, consults the Trust Engine, routes to a
// merchant account chain, calls processor adapters with retry and fallback,
// posts balanced ledger sets, and emits canonical events. It exclusively
// owns writes to Transaction, Refund, Payout and PayoutBatch status.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/idempotency"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/internal/router"
	"fanztrust.orchestrator/internal/trust"
)

const (
	paymentDeadline = 30 * time.Second
	payoutDeadline  = 60 * time.Second

	inboundTTL  = 24 * time.Hour
	outboundTTL = 24 * time.Hour

	versionRetryBound = 3
)

// MIDResolver maps a MID to its merchant account, so the orchestrator can
// resolve the processor and descriptor for a routed MID. Backed by the same
// snapshot cache the Router reads.
type MIDResolver func(mid string) *entities.MerchantAccount

// Orchestrator is constructed with every collaborator injected; tests build their own.
type Orchestrator struct {
	cfg config.Config

	txRepo      repositories.TransactionRepository
	txEventRepo repositories.TransactionEventRepository
	refundRepo  repositories.RefundRepository
	disputeRepo repositories.DisputeRepository
	payoutRepo  repositories.PayoutRepository
	batchRepo   repositories.PayoutBatchRepository
	uow         repositories.UnitOfWork

	ledger    *ledger.Ledger
	idem      *idempotency.Store
	trust     *trust.Engine
	router    *router.Router
	adapters  *processor.Registry
	resolve   MIDResolver
	bus       *eventbus.Bus
	approvals *approval.Queue
	clock     clockwork.Clock

	txLocks      *stripedLock
	creatorLocks *stripedLock
}

// Deps bundles the orchestrator's collaborators for construction.
type Deps struct {
	Config      config.Config
	TxRepo      repositories.TransactionRepository
	TxEventRepo repositories.TransactionEventRepository
	RefundRepo  repositories.RefundRepository
	DisputeRepo repositories.DisputeRepository
	PayoutRepo  repositories.PayoutRepository
	BatchRepo   repositories.PayoutBatchRepository
	UnitOfWork  repositories.UnitOfWork
	Ledger      *ledger.Ledger
	Idempotency *idempotency.Store
	Trust       *trust.Engine
	Router      *router.Router
	Adapters    *processor.Registry
	ResolveMID  MIDResolver
	Bus         *eventbus.Bus
	Approvals   *approval.Queue
	Clock       clockwork.Clock
}

// New wires an Orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:          d.Config,
		txRepo:       d.TxRepo,
		txEventRepo:  d.TxEventRepo,
		refundRepo:   d.RefundRepo,
		disputeRepo:  d.DisputeRepo,
		payoutRepo:   d.PayoutRepo,
		batchRepo:    d.BatchRepo,
		uow:          d.UnitOfWork,
		ledger:       d.Ledger,
		idem:         d.Idempotency,
		trust:        d.Trust,
		router:       d.Router,
		adapters:     d.Adapters,
		resolve:      d.ResolveMID,
		bus:          d.Bus,
		approvals:    d.Approvals,
		clock:        d.Clock,
		txLocks:      newStripedLock(256),
		creatorLocks: newStripedLock(256),
	}
}

// recordEvent appends one TransactionEvent row. Append-only, never fails the
// surrounding action on its own: an event write error is surfaced so the
// caller aborts before the corresponding status write.
func (o *Orchestrator) recordEvent(ctx context.Context, ev *entities.TransactionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	ev.CreatedAt = o.clock.Now()
	return o.txEventRepo.Create(ctx, ev)
}

// updateTransaction persists tx with an optimistic version check, retrying
// a conflict up to versionRetryBound by refetching and reapplying mutate.
func (o *Orchestrator) updateTransaction(ctx context.Context, tx *entities.Transaction, mutate func(*entities.Transaction)) error {
	mutate(tx)
	tx.UpdatedAt = o.clock.Now()
	err := o.txRepo.Update(ctx, tx)
	for i := 0; err != nil && errors.Is(err, domainerrors.ErrVersionConflict) && i < versionRetryBound; i++ {
		fresh, getErr := o.txRepo.GetByID(ctx, tx.ID)
		if getErr != nil {
			return getErr
		}
		*tx = *fresh
		mutate(tx)
		tx.UpdatedAt = o.clock.Now()
		err = o.txRepo.Update(ctx, tx)
	}
	if err != nil && errors.Is(err, domainerrors.ErrVersionConflict) {
		return domainerrors.New(domainerrors.CodeConflict, "transaction version conflict", err)
	}
	return err
}

// atomically scopes fn in one database transaction when a UnitOfWork is
// wired (the GORM repositories pick the tx up from the context), so a
// ledger post and the status write it gates land or roll back together.
func (o *Orchestrator) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.uow == nil {
		return fn(ctx)
	}
	return o.uow.Do(ctx, fn)
}

// overloaded applies the backpressure policy: non-urgent requests are
// shed when the approval queue or the outbound event buffer is past its
// high-water mark; payouts and webhook ingestion always proceed.
func (o *Orchestrator) overloaded(ctx context.Context) bool {
	if o.bus != nil && o.bus.Overloaded(ctx) {
		return true
	}
	if o.approvals != nil && o.approvals.Overloaded(ctx) {
		return true
	}
	return false
}

// accountFor namespaces a ledger account by entity id, e.g.
// creator_payable:C1 — the per-creator balance the payout path checks.
func accountFor(base, id string) string {
	return base + ":" + id
}
