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

type disputeRepo struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) domainrepos.DisputeRepository {
	return &disputeRepo{db: db}
}

func (r *disputeRepo) Create(ctx context.Context, d *entities.Dispute) error {
	return GetDB(ctx, r.db).WithContext(ctx).Create(toDisputeModel(d)).Error
}

func (r *disputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Dispute, error) {
	var row models.Dispute
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toDisputeEntity(&row), nil
}

func (r *disputeRepo) Update(ctx context.Context, d *entities.Dispute) error {
	row := toDisputeModel(d)
	expected := row.Version
	row.Version = expected + 1
	res := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	d.Version = row.Version
	return nil
}

func (r *disputeRepo) GetByTransaction(ctx context.Context, txID uuid.UUID) (*entities.Dispute, error) {
	var row models.Dispute
	res := GetDB(ctx, r.db).WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at DESC").
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domainerrors.ErrNotFound
	}
	return toDisputeEntity(&row), nil
}

func toDisputeModel(e *entities.Dispute) *models.Dispute {
	return &models.Dispute{
		ID:                e.ID,
		TransactionID:     e.TransactionID,
		Type:              string(e.Type),
		Stage:             string(e.Stage),
		DeadlineAt:        e.DeadlineAt,
		Reason:            e.Reason,
		EvidenceSubmitted: e.EvidenceSubmitted,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		Version:           e.Version,
	}
}

func toDisputeEntity(row *models.Dispute) *entities.Dispute {
	return &entities.Dispute{
		ID:                row.ID,
		TransactionID:     row.TransactionID,
		Type:              entities.DisputeType(row.Type),
		Stage:             entities.DisputeStage(row.Stage),
		DeadlineAt:        row.DeadlineAt,
		Reason:            row.Reason,
		EvidenceSubmitted: row.EvidenceSubmitted,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		Version:           row.Version,
	}
}
