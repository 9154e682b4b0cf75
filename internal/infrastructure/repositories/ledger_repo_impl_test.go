package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/domain/entities"
)

func entry(pairID, account string, dir entities.LedgerDirection, minor int64, at time.Time) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		EntryID:   uuid.NewString(),
		PairID:    pairID,
		Account:   account,
		Direction: dir,
		Amount:    entities.NewMoney(minor, "USD"),
		CreatedAt: at,
	}
}

func TestLedgerAppendAndBalance(t *testing.T) {
	db := newTestDB(t)
	createLedgerEntriesTable(t, db)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, []*entities.LedgerEntry{
		entry("p1", "fan_receivable:F1", entities.Debit, 1000, at),
		entry("p1", "creator_payable:C1", entities.Credit, 921, at),
		entry("p1", "platform_fee_revenue", entities.Credit, 50, at),
		entry("p1", "processor_payable:ccbill", entities.Credit, 29, at),
	}))

	balance, err := repo.Balance(ctx, "creator_payable:C1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(921), balance.MinorUnits)
	assert.Equal(t, "USD", balance.Currency)

	// Credits minus debits: the receivable account reads negative.
	balance, err = repo.Balance(ctx, "fan_receivable:F1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), balance.MinorUnits)
}

func TestLedgerBalanceAsOf(t *testing.T) {
	db := newTestDB(t)
	createLedgerEntriesTable(t, db)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	early := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)
	require.NoError(t, repo.Append(ctx, []*entities.LedgerEntry{
		entry("p1", "creator_payable:C1", entities.Credit, 500, early),
		entry("p2", "creator_payable:C1", entities.Credit, 300, late),
	}))

	cutoff := early.Add(time.Hour)
	balance, err := repo.Balance(ctx, "creator_payable:C1", &cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.MinorUnits)
}

func TestLedgerExistsPair(t *testing.T) {
	db := newTestDB(t)
	createLedgerEntriesTable(t, db)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, []*entities.LedgerEntry{
		entry("p1", "a", entities.Debit, 100, at),
		entry("p1", "b", entities.Credit, 100, at),
	}))

	entries, found, err := repo.ExistsPair(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, entries, 2)

	_, found, err = repo.ExistsPair(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerReplayOrdered(t *testing.T) {
	db := newTestDB(t)
	createLedgerEntriesTable(t, db)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, []*entities.LedgerEntry{
			entry("p"+string(rune('a'+i)), "acct", entities.Credit, int64(i+1), base.Add(time.Duration(i)*time.Minute)),
		}))
	}

	entries, err := repo.Replay(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Amount.MinorUnits)
	assert.Equal(t, int64(3), entries[2].Amount.MinorUnits)
}
