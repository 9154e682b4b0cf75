package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type payoutRepo struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) domainrepos.PayoutRepository {
	return &payoutRepo{db: db}
}

func (r *payoutRepo) Create(ctx context.Context, p *entities.Payout) error {
	return GetDB(ctx, r.db).WithContext(ctx).Create(toPayoutModel(p)).Error
}

func (r *payoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Payout, error) {
	var row models.Payout
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toPayoutEntity(&row), nil
}

func (r *payoutRepo) Update(ctx context.Context, p *entities.Payout) error {
	row := toPayoutModel(p)
	expected := row.Version
	row.Version = expected + 1
	res := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	p.Version = row.Version
	return nil
}

func (r *payoutRepo) ListPendingByCreator(ctx context.Context, creatorID string) ([]*entities.Payout, error) {
	return r.list(ctx, GetDB(ctx, r.db).WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, string(entities.PayoutPending)))
}

func (r *payoutRepo) ListApproved(ctx context.Context, limit int) ([]*entities.Payout, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("status = ?", string(entities.PayoutApproved)).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.list(ctx, q)
}

func (r *payoutRepo) list(_ context.Context, q *gorm.DB) ([]*entities.Payout, error) {
	var rows []models.Payout
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Payout, 0, len(rows))
	for i := range rows {
		out = append(out, toPayoutEntity(&rows[i]))
	}
	return out, nil
}

func toPayoutModel(e *entities.Payout) *models.Payout {
	return &models.Payout{
		ID:                  e.ID,
		CreatorID:           e.CreatorID,
		Method:              string(e.Method),
		AmountMinor:         e.Amount.MinorUnits,
		Currency:            e.Amount.Currency,
		FeesMinor:           e.Fees.MinorUnits,
		TaxWithholdingMinor: e.TaxWithholding.MinorUnits,
		Status:              string(e.Status),
		BatchID:             e.BatchID,
		FailureReason:       e.FailureReason,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		Version:             e.Version,
	}
}

func toPayoutEntity(row *models.Payout) *entities.Payout {
	return &entities.Payout{
		ID:             row.ID,
		CreatorID:      row.CreatorID,
		Method:         entities.PayoutMethod(row.Method),
		Amount:         entities.NewMoney(row.AmountMinor, row.Currency),
		Fees:           entities.NewMoney(row.FeesMinor, row.Currency),
		TaxWithholding: entities.NewMoney(row.TaxWithholdingMinor, row.Currency),
		Status:         entities.PayoutStatus(row.Status),
		BatchID:        row.BatchID,
		FailureReason:  row.FailureReason,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Version:        row.Version,
	}
}

type payoutBatchRepo struct {
	db *gorm.DB
}

func NewPayoutBatchRepository(db *gorm.DB) domainrepos.PayoutBatchRepository {
	return &payoutBatchRepo{db: db}
}

func (r *payoutBatchRepo) Create(ctx context.Context, b *entities.PayoutBatch) error {
	ids, err := json.Marshal(b.PayoutIDs)
	if err != nil {
		return err
	}
	row := &models.PayoutBatch{
		ID:            b.ID,
		Rail:          b.Rail,
		NetMinor:      b.Net.MinorUnits,
		Currency:      b.Net.Currency,
		PayoutIDsJSON: string(ids),
		CreatedAt:     b.CreatedAt,
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *payoutBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.PayoutBatch, error) {
	var row models.PayoutBatch
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	var ids []uuid.UUID
	if row.PayoutIDsJSON != "" {
		if err := json.Unmarshal([]byte(row.PayoutIDsJSON), &ids); err != nil {
			return nil, err
		}
	}
	return &entities.PayoutBatch{
		ID:        row.ID,
		Rail:      row.Rail,
		Net:       entities.NewMoney(row.NetMinor, row.Currency),
		PayoutIDs: ids,
		CreatedAt: row.CreatedAt,
	}, nil
}
