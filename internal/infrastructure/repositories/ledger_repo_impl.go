package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type ledgerRepo struct {
	db *gorm.DB
}

// NewLedgerRepository creates the append-only ledger store. There is no
// Update or Delete here on purpose.
func NewLedgerRepository(db *gorm.DB) domainrepos.LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Append(ctx context.Context, entries []*entities.LedgerEntry) error {
	rows := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.LedgerEntry{
			EntryID:        e.EntryID,
			PairID:         e.PairID,
			Account:        e.Account,
			Direction:      string(e.Direction),
			AmountMinor:    e.Amount.MinorUnits,
			Currency:       e.Amount.Currency,
			TransactionRef: e.TransactionRef,
			CreatedAt:      e.CreatedAt,
		})
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(&rows).Error
}

func (r *ledgerRepo) ExistsPair(ctx context.Context, pairID string) ([]*entities.LedgerEntry, bool, error) {
	var rows []models.LedgerEntry
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("pair_id = ?", pairID).
		Find(&rows).Error
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return toLedgerEntities(rows), true, nil
}

// Balance returns credits minus debits for account: positive for liability
// accounts like creator_payable, which is what the payout gate reads.
func (r *ledgerRepo) Balance(ctx context.Context, account string, asOf *time.Time) (entities.Money, error) {
	type result struct {
		Total    int64
		Currency string
	}
	var res result
	q := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount_minor ELSE -amount_minor END), 0) AS total, MAX(currency) AS currency").
		Where("account = ?", account)
	if asOf != nil {
		q = q.Where("created_at <= ?", *asOf)
	}
	if err := q.Scan(&res).Error; err != nil {
		return entities.Money{}, err
	}
	return entities.NewMoney(res.Total, res.Currency), nil
}

func (r *ledgerRepo) Replay(ctx context.Context, account string) ([]*entities.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("account = ?", account).
		Order("created_at ASC, entry_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toLedgerEntities(rows), nil
}

func toLedgerEntities(rows []models.LedgerEntry) []*entities.LedgerEntry {
	out := make([]*entities.LedgerEntry, 0, len(rows))
	for i := range rows {
		row := rows[i]
		out = append(out, &entities.LedgerEntry{
			EntryID:        row.EntryID,
			PairID:         row.PairID,
			Account:        row.Account,
			Direction:      entities.LedgerDirection(row.Direction),
			Amount:         entities.NewMoney(row.AmountMinor, row.Currency),
			TransactionRef: row.TransactionRef,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out
}
