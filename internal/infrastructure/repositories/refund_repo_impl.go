package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type refundRepo struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) domainrepos.RefundRepository {
	return &refundRepo{db: db}
}

func (r *refundRepo) Create(ctx context.Context, refund *entities.Refund) error {
	return GetDB(ctx, r.db).WithContext(ctx).Create(toRefundModel(refund)).Error
}

func (r *refundRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error) {
	var row models.Refund
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toRefundEntity(&row), nil
}

func (r *refundRepo) Update(ctx context.Context, refund *entities.Refund) error {
	row := toRefundModel(refund)
	expected := row.Version
	row.Version = expected + 1
	res := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	refund.Version = row.Version
	return nil
}

func (r *refundRepo) SumProcessedByTransaction(ctx context.Context, txID uuid.UUID) (entities.Money, error) {
	type result struct {
		Total    int64
		Currency string
	}
	var res result
	err := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Refund{}).
		Select("COALESCE(SUM(amount_minor), 0) AS total, MAX(currency) AS currency").
		Where("transaction_id = ? AND status IN ?", txID,
			[]string{string(entities.RefundProcessed), string(entities.RefundReconciled)}).
		Scan(&res).Error
	if err != nil {
		return entities.Money{}, err
	}
	return entities.NewMoney(res.Total, res.Currency), nil
}

func (r *refundRepo) ListByTransaction(ctx context.Context, txID uuid.UUID) ([]*entities.Refund, error) {
	var rows []models.Refund
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Refund, 0, len(rows))
	for i := range rows {
		out = append(out, toRefundEntity(&rows[i]))
	}
	return out, nil
}

func toRefundModel(e *entities.Refund) *models.Refund {
	return &models.Refund{
		ID:                 e.ID,
		TransactionID:      e.TransactionID,
		AmountMinor:        e.Amount.MinorUnits,
		Currency:           e.Amount.Currency,
		Status:             string(e.Status),
		Reason:             e.Reason,
		DecisionSource:     string(e.DecisionSource),
		ProcessorRefundRef: e.ProcessorRefundRef,
		FailureReason:      e.FailureReason,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		Version:            e.Version,
	}
}

func toRefundEntity(row *models.Refund) *entities.Refund {
	return &entities.Refund{
		ID:                 row.ID,
		TransactionID:      row.TransactionID,
		Amount:             entities.NewMoney(row.AmountMinor, row.Currency),
		Status:             entities.RefundStatus(row.Status),
		Reason:             row.Reason,
		DecisionSource:     entities.RefundDecisionSource(row.DecisionSource),
		ProcessorRefundRef: row.ProcessorRefundRef,
		FailureReason:      row.FailureReason,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		Version:            row.Version,
	}
}
