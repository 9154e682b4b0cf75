// Package settlement ingests processor settlement files, marks matched
// transactions settled, posts fees, and computes the per-batch discrepancy
// report.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/pkg/logger"
)

// TransactionSettler is the orchestrator hook that performs the
// captured → settled transition; Transaction status writes belong to the
// orchestrator.
type TransactionSettler interface {
	MarkSettled(ctx context.Context, txID uuid.UUID) error
}

// Engine is the settlement/reconciliation engine (C8).
type Engine struct {
	adapters       *processor.Registry
	txRepo         repositories.TransactionRepository
	settlementRepo repositories.SettlementRepository
	settler        TransactionSettler
	ledger         *ledger.Ledger
	bus            *eventbus.Bus
	clock          clockwork.Clock
}

// New wires an Engine.
func New(adapters *processor.Registry, txRepo repositories.TransactionRepository, settlementRepo repositories.SettlementRepository, settler TransactionSettler, lgr *ledger.Ledger, bus *eventbus.Bus, clock clockwork.Clock) *Engine {
	return &Engine{
		adapters:       adapters,
		txRepo:         txRepo,
		settlementRepo: settlementRepo,
		settler:        settler,
		ledger:         lgr,
		bus:            bus,
		clock:          clock,
	}
}

// OnSettlementReady is the webhook ingestor's entry point: fetch the batch
// from the processor and reconcile it. A batch already sealed is a no-op.
func (e *Engine) OnSettlementReady(ctx context.Context, processorName, batchRef string, windowStart, windowEnd time.Time) error {
	if existing, err := e.settlementRepo.FindByBatchRef(ctx, processorName, batchRef); err == nil && existing.Sealed {
		return nil
	} else if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return err
	}

	adapter := e.adapters.Get(processorName)
	if adapter == nil {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "no adapter for settlement processor", nil)
	}
	lines, err := adapter.SettlementFetch(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}
	return e.Reconcile(ctx, processorName, batchRef, windowStart, windowEnd, lines)
}

// Reconcile processes one settlement file: per line, match the local
// transaction, settle it and post the fee; afterwards compute the
// discrepancy report and seal the batch.
func (e *Engine) Reconcile(ctx context.Context, processorName, batchRef string, windowStart, windowEnd time.Time, lines []entities.SettlementLine) error {
	now := e.clock.Now()
	s := &entities.Settlement{
		ID:          uuid.New(),
		Processor:   processorName,
		BatchRef:    batchRef,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	currency := ""
	if len(lines) > 0 {
		currency = lines[0].Amount.Currency
	}
	gross := entities.NewMoney(0, currency)
	fees := entities.NewMoney(0, currency)

	matched := make(map[uuid.UUID]bool)
	var report entities.DiscrepancyReport

	for _, line := range lines {
		tx, err := e.txRepo.FindByProcessorRef(ctx, processorName, line.ProcessorTxRef)
		if err != nil {
			if errors.Is(err, domainerrors.ErrNotFound) {
				report.UnexpectedTxIDs = append(report.UnexpectedTxIDs, line.ProcessorTxRef)
				continue
			}
			return err
		}
		if tx.Amount.MinorUnits != line.Amount.MinorUnits || tx.Amount.Currency != line.Amount.Currency {
			report.AmountMismatches = append(report.AmountMismatches, entities.AmountMismatch{
				TransactionID: tx.ID,
				Expected:      tx.Amount,
				Actual:        line.Amount,
			})
			continue
		}

		matched[tx.ID] = true
		gross = gross.Add(line.Amount)
		fees = fees.Add(line.Fee)

		// Fee recognition per matched line: the expense lands when
		// the processor's file confirms it.
		pairID := ledger.PairID("settle", batchRef, tx.ID.String())
		if line.Fee.MinorUnits > 0 {
			err = e.ledger.Post(ctx, pairID, []*entities.LedgerEntry{
				{Account: entities.AccountProcessorFeeExpense, Direction: entities.Debit, Amount: line.Fee, TransactionRef: tx.ID.String()},
				{Account: entities.AccountProcessorPayable + ":" + processorName, Direction: entities.Credit, Amount: line.Fee, TransactionRef: tx.ID.String()},
			})
			if err != nil {
				return err
			}
		}
		if err := e.settler.MarkSettled(ctx, tx.ID); err != nil {
			return err
		}
	}

	// Transactions captured in the window but absent from the file.
	captured, err := e.txRepo.ListCapturedInWindow(ctx, processorName, windowStart, windowEnd)
	if err != nil {
		return err
	}
	for _, tx := range captured {
		if !matched[tx.ID] {
			report.MissingTxIDs = append(report.MissingTxIDs, tx.ID)
		}
	}

	s.Gross = gross
	s.Fees = fees
	s.Chargebacks = entities.NewMoney(0, currency)
	s.Refunds = entities.NewMoney(0, currency)
	s.Net = gross.Sub(fees)
	s.Discrepancy = report
	s.Sealed = true
	s.UpdatedAt = e.clock.Now()

	if err := e.settlementRepo.Create(ctx, s); err != nil {
		return err
	}

	if len(report.MissingTxIDs) > 0 || len(report.UnexpectedTxIDs) > 0 || len(report.AmountMismatches) > 0 {
		logger.WithContext(ctx).Warn("settlement discrepancies found",
			zap.String("processor", processorName),
			zap.String("batch_ref", batchRef),
			zap.Int("missing", len(report.MissingTxIDs)),
			zap.Int("unexpected", len(report.UnexpectedTxIDs)),
			zap.Int("mismatched", len(report.AmountMismatches)))
		e.bus.Publish(ctx, entities.EventSettlementDiscrepancy, "settlement:"+s.ID.String(), report)
	}
	return nil
}
