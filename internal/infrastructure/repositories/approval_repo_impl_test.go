package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
)

func sampleApproval(slaAt time.Time) *entities.Approval {
	now := slaAt.Add(-time.Hour)
	return &entities.Approval{
		ID:           uuid.NewString(),
		EntityRef:    "transaction:t1",
		ApprovalType: entities.ApprovalTypeHighRiskPayment,
		State:        entities.ApprovalPending,
		Priority:     2,
		SLAMinutes:   60,
		SLAAt:        slaAt,
		History: []entities.ApprovalHistoryEntry{
			{At: now, Actor: "system", Action: "created"},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func TestApprovalRoundTripWithHistory(t *testing.T) {
	db := newTestDB(t)
	createApprovalsTable(t, db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	a := sampleApproval(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.EntityRef, got.EntityRef)
	require.Len(t, got.History, 1)
	assert.Equal(t, "created", got.History[0].Action)
}

func TestApprovalUpdateVersionConflict(t *testing.T) {
	db := newTestDB(t)
	createApprovalsTable(t, db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	a := sampleApproval(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, a))

	a.State = entities.ApprovalApproved
	a.Decided = true
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, 2, a.Version)

	stale := sampleApproval(a.SLAAt)
	stale.ID = a.ID
	stale.Version = 1
	assert.ErrorIs(t, repo.Update(ctx, stale), domainerrors.ErrVersionConflict)
}

func TestApprovalListPastSLA(t *testing.T) {
	db := newTestDB(t)
	createApprovalsTable(t, db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	overdue := sampleApproval(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	fresh := sampleApproval(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, overdue))
	require.NoError(t, repo.Create(ctx, fresh))

	got, err := repo.ListPastSLA(ctx, time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestApprovalListPendingIncludesEscalated(t *testing.T) {
	db := newTestDB(t)
	createApprovalsTable(t, db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	pending := sampleApproval(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	escalated := sampleApproval(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	escalated.State = entities.ApprovalEscalated
	decided := sampleApproval(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	decided.State = entities.ApprovalDenied

	for _, a := range []*entities.Approval{pending, escalated, decided} {
		require.NoError(t, repo.Create(ctx, a))
	}

	got, err := repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
