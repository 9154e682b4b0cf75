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

type trustScoreRepo struct {
	db *gorm.DB
}

func NewTrustScoreRepository(db *gorm.DB) domainrepos.TrustScoreRepository {
	return &trustScoreRepo{db: db}
}

func (r *trustScoreRepo) Create(ctx context.Context, s *entities.TrustScore) error {
	reasons, err := json.Marshal(s.ReasonCodes)
	if err != nil {
		return err
	}
	signals, err := json.Marshal(s.Signals)
	if err != nil {
		return err
	}
	row := &models.TrustScore{
		ID:               s.ID,
		TransactionID:    s.TransactionID,
		Score:            s.Score,
		Confidence:       s.Confidence,
		ModelVersion:     s.ModelVersion,
		Decision:         string(s.Decision),
		ReasonCodesJSON:  string(reasons),
		SignalsJSON:      string(signals),
		Explanation:      s.Explanation,
		ProcessingTimeMS: s.ProcessingTimeMS,
		CreatedAt:        s.CreatedAt,
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *trustScoreRepo) GetByTransaction(ctx context.Context, txID string) (*entities.TrustScore, error) {
	var row models.TrustScore
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}

	s := &entities.TrustScore{
		ID:               row.ID,
		TransactionID:    row.TransactionID,
		Score:            row.Score,
		Confidence:       row.Confidence,
		ModelVersion:     row.ModelVersion,
		Decision:         entities.TrustDecision(row.Decision),
		Explanation:      row.Explanation,
		ProcessingTimeMS: row.ProcessingTimeMS,
		CreatedAt:        row.CreatedAt,
	}
	if row.ReasonCodesJSON != "" {
		if err := json.Unmarshal([]byte(row.ReasonCodesJSON), &s.ReasonCodes); err != nil {
			return nil, err
		}
	}
	if row.SignalsJSON != "" {
		if err := json.Unmarshal([]byte(row.SignalsJSON), &s.Signals); err != nil {
			return nil, err
		}
	}
	return s, nil
}
