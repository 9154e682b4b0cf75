package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type merchantAccountRepo struct {
	db *gorm.DB
}

func NewMerchantAccountRepository(db *gorm.DB) domainrepos.MerchantAccountRepository {
	return &merchantAccountRepo{db: db}
}

func (r *merchantAccountRepo) ListActive(ctx context.Context) ([]*entities.MerchantAccount, error) {
	var rows []models.MerchantAccount
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("active = ?", true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.MerchantAccount, 0, len(rows))
	for i := range rows {
		e, err := toMerchantAccountEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *merchantAccountRepo) GetByMID(ctx context.Context, mid string) (*entities.MerchantAccount, error) {
	var row models.MerchantAccount
	err := GetDB(ctx, r.db).WithContext(ctx).Where("mid = ?", mid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toMerchantAccountEntity(&row)
}

func toMerchantAccountEntity(row *models.MerchantAccount) (*entities.MerchantAccount, error) {
	var platforms []string
	if row.AllowedPlatformsJSON != "" {
		if err := json.Unmarshal([]byte(row.AllowedPlatformsJSON), &platforms); err != nil {
			return nil, err
		}
	}
	return &entities.MerchantAccount{
		MID:                   row.MID,
		Processor:             row.Processor,
		Region:                row.Region,
		Descriptor:            row.Descriptor,
		Currency:              row.Currency,
		MinAmount:             row.MinAmountMinor,
		MaxAmount:             row.MaxAmountMinor,
		RiskProfile:           row.RiskProfile,
		AllowedPlatforms:      platforms,
		KillSwitch:            row.KillSwitch,
		DailyVolumeCapMinor:   row.DailyVolumeCapMinor,
		MonthlyVolumeCapMinor: row.MonthlyVolumeCapMinor,
		UpdatedAt:             row.UpdatedAt,
	}, nil
}
