package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type transactionRepo struct {
	db *gorm.DB
}

// NewTransactionRepository creates the GORM-backed TransactionRepository.
func NewTransactionRepository(db *gorm.DB) domainrepos.TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, tx *entities.Transaction) error {
	row, err := toTransactionModel(tx)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *transactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	var row models.Transaction
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransactionEntity(&row)
}

// Update persists tx with an optimistic version check: the write only lands
// if the stored version matches, and bumps it.
func (r *transactionRepo) Update(ctx context.Context, tx *entities.Transaction) error {
	row, err := toTransactionModel(tx)
	if err != nil {
		return err
	}
	expected := row.Version
	row.Version = expected + 1
	res := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	tx.Version = row.Version
	return nil
}

func (r *transactionRepo) ListByCreator(ctx context.Context, creatorID string, capturedBefore, capturedAfter time.Time) ([]*entities.Transaction, error) {
	var rows []models.Transaction
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("creator_id = ? AND captured_at >= ? AND captured_at < ?", creatorID, capturedAfter, capturedBefore).
		Order("captured_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTransactionEntities(rows)
}

func (r *transactionRepo) FindByProcessorRef(ctx context.Context, processor, processorRef string) (*entities.Transaction, error) {
	var row models.Transaction
	res := GetDB(ctx, r.db).WithContext(ctx).
		Where("processor = ? AND (processor_auth_ref = ? OR processor_capture_ref = ?)", processor, processorRef, processorRef).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domainerrors.ErrNotFound
	}
	return toTransactionEntity(&row)
}

func (r *transactionRepo) ListCapturedInWindow(ctx context.Context, processor string, windowStart, windowEnd time.Time) ([]*entities.Transaction, error) {
	var rows []models.Transaction
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("processor = ? AND captured_at >= ? AND captured_at < ?", processor, windowStart, windowEnd).
		Order("captured_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toTransactionEntities(rows)
}

func toTransactionModel(tx *entities.Transaction) (*models.Transaction, error) {
	methodJSON, err := json.Marshal(tx.Method)
	if err != nil {
		return nil, err
	}
	riskJSON, err := json.Marshal(tx.RiskFlags)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:                  tx.ID,
		FanID:               tx.FanID,
		CreatorID:           tx.CreatorID,
		Platform:            tx.Platform,
		AmountMinor:         tx.Amount.MinorUnits,
		Currency:            tx.Amount.Currency,
		FeesMinor:           tx.Fees.MinorUnits,
		MethodJSON:          string(methodJSON),
		Processor:           tx.Processor,
		MerchantAccount:     tx.MerchantAccount,
		Status:              string(tx.Status),
		TrustScore:          tx.TrustScore,
		RiskFlagsJSON:       string(riskJSON),
		ProcessorAuthRef:    tx.ProcessorAuthRef,
		ProcessorCaptureRef: tx.ProcessorCaptureRef,
		FailureCode:         tx.FailureCode,
		FailureReason:       tx.FailureReason,
		RefundedTotalMinor:  tx.RefundedTotal.MinorUnits,
		Attempt:             tx.Attempt,
		InitiatedAt:         tx.InitiatedAt,
		AuthorizedAt:        tx.AuthorizedAt,
		CapturedAt:          tx.CapturedAt,
		FailedAt:            tx.FailedAt,
		SettledAt:           tx.SettledAt,
		CreatedAt:           tx.CreatedAt,
		UpdatedAt:           tx.UpdatedAt,
		Version:             tx.Version,
	}, nil
}

func toTransactionEntity(row *models.Transaction) (*entities.Transaction, error) {
	var method entities.PaymentMethod
	if row.MethodJSON != "" {
		if err := json.Unmarshal([]byte(row.MethodJSON), &method); err != nil {
			return nil, err
		}
	}
	var riskFlags []string
	if row.RiskFlagsJSON != "" {
		if err := json.Unmarshal([]byte(row.RiskFlagsJSON), &riskFlags); err != nil {
			return nil, err
		}
	}
	return &entities.Transaction{
		ID:                  row.ID,
		FanID:               row.FanID,
		CreatorID:           row.CreatorID,
		Platform:            row.Platform,
		Amount:              entities.NewMoney(row.AmountMinor, row.Currency),
		Fees:                entities.NewMoney(row.FeesMinor, row.Currency),
		Method:              method,
		Processor:           row.Processor,
		MerchantAccount:     row.MerchantAccount,
		Status:              entities.TransactionStatus(row.Status),
		TrustScore:          row.TrustScore,
		RiskFlags:           riskFlags,
		ProcessorAuthRef:    row.ProcessorAuthRef,
		ProcessorCaptureRef: row.ProcessorCaptureRef,
		FailureCode:         row.FailureCode,
		FailureReason:       row.FailureReason,
		RefundedTotal:       entities.NewMoney(row.RefundedTotalMinor, row.Currency),
		Attempt:             row.Attempt,
		InitiatedAt:         row.InitiatedAt,
		AuthorizedAt:        row.AuthorizedAt,
		CapturedAt:          row.CapturedAt,
		FailedAt:            row.FailedAt,
		SettledAt:           row.SettledAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		Version:             row.Version,
	}, nil
}

func toTransactionEntities(rows []models.Transaction) ([]*entities.Transaction, error) {
	out := make([]*entities.Transaction, 0, len(rows))
	for i := range rows {
		e, err := toTransactionEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
