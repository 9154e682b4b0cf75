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

type settlementRepo struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) domainrepos.SettlementRepository {
	return &settlementRepo{db: db}
}

func (r *settlementRepo) Create(ctx context.Context, s *entities.Settlement) error {
	row, err := toSettlementModel(s)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *settlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error) {
	var row models.Settlement
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toSettlementEntity(&row)
}

func (r *settlementRepo) Update(ctx context.Context, s *entities.Settlement) error {
	row, err := toSettlementModel(s)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", row.ID).
		Select("*").Omit("id", "created_at").
		Updates(row).Error
}

func (r *settlementRepo) FindByBatchRef(ctx context.Context, processor, batchRef string) (*entities.Settlement, error) {
	var row models.Settlement
	res := GetDB(ctx, r.db).WithContext(ctx).
		Where("processor = ? AND batch_ref = ?", processor, batchRef).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domainerrors.ErrNotFound
	}
	return toSettlementEntity(&row)
}

func toSettlementModel(e *entities.Settlement) (*models.Settlement, error) {
	discrepancy, err := json.Marshal(e.Discrepancy)
	if err != nil {
		return nil, err
	}
	return &models.Settlement{
		ID:               e.ID,
		Processor:        e.Processor,
		BatchRef:         e.BatchRef,
		WindowStart:      e.WindowStart,
		WindowEnd:        e.WindowEnd,
		GrossMinor:       e.Gross.MinorUnits,
		FeesMinor:        e.Fees.MinorUnits,
		ChargebacksMinor: e.Chargebacks.MinorUnits,
		RefundsMinor:     e.Refunds.MinorUnits,
		NetMinor:         e.Net.MinorUnits,
		Currency:         e.Gross.Currency,
		Sealed:           e.Sealed,
		DiscrepancyJSON:  string(discrepancy),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}, nil
}

func toSettlementEntity(row *models.Settlement) (*entities.Settlement, error) {
	var discrepancy entities.DiscrepancyReport
	if row.DiscrepancyJSON != "" {
		if err := json.Unmarshal([]byte(row.DiscrepancyJSON), &discrepancy); err != nil {
			return nil, err
		}
	}
	return &entities.Settlement{
		ID:          row.ID,
		Processor:   row.Processor,
		BatchRef:    row.BatchRef,
		WindowStart: row.WindowStart,
		WindowEnd:   row.WindowEnd,
		Gross:       entities.NewMoney(row.GrossMinor, row.Currency),
		Fees:        entities.NewMoney(row.FeesMinor, row.Currency),
		Chargebacks: entities.NewMoney(row.ChargebacksMinor, row.Currency),
		Refunds:     entities.NewMoney(row.RefundsMinor, row.Currency),
		Net:         entities.NewMoney(row.NetMinor, row.Currency),
		Sealed:      row.Sealed,
		Discrepancy: discrepancy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
