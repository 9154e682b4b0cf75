package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type transactionEventRepo struct {
	db *gorm.DB
}

// NewTransactionEventRepository creates the append-only event row store.
func NewTransactionEventRepository(db *gorm.DB) domainrepos.TransactionEventRepository {
	return &transactionEventRepo{db: db}
}

func (r *transactionEventRepo) Create(ctx context.Context, ev *entities.TransactionEvent) error {
	row := &models.TransactionEvent{
		ID:                 ev.ID,
		TransactionID:      ev.TransactionID,
		EventKind:          string(ev.EventKind),
		EventSource:        ev.EventSource,
		AmountDeltaMinor:   ev.AmountDelta.MinorUnits,
		Currency:           ev.AmountDelta.Currency,
		ProcessorEventID:   ev.ProcessorEventID,
		Success:            ev.Success,
		ErrorCode:          ev.ErrorCode,
		ProcessorTimestamp: ev.ProcessorTimestamp,
		CreatedAt:          ev.CreatedAt,
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *transactionEventRepo) ListByTransaction(ctx context.Context, txID uuid.UUID) ([]*entities.TransactionEvent, error) {
	var rows []models.TransactionEvent
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.TransactionEvent, 0, len(rows))
	for i := range rows {
		row := rows[i]
		out = append(out, &entities.TransactionEvent{
			ID:                 row.ID,
			TransactionID:      row.TransactionID,
			EventKind:          entities.TransactionEventKind(row.EventKind),
			EventSource:        row.EventSource,
			AmountDelta:        entities.NewMoney(row.AmountDeltaMinor, row.Currency),
			ProcessorEventID:   row.ProcessorEventID,
			Success:            row.Success,
			ErrorCode:          row.ErrorCode,
			ProcessorTimestamp: row.ProcessorTimestamp,
			CreatedAt:          row.CreatedAt,
		})
	}
	return out, nil
}

func (r *transactionEventRepo) CountByKind(ctx context.Context, txID uuid.UUID, kind entities.TransactionEventKind) (int, error) {
	var count int64
	err := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.TransactionEvent{}).
		Where("transaction_id = ? AND event_kind = ?", txID, string(kind)).
		Count(&count).Error
	return int(count), err
}
