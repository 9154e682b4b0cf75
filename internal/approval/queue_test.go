package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/pkg/logger"
)

func init() {
	logger.Init("development")
}

type memApprovalRepo struct {
	mu   sync.Mutex
	rows map[string]*entities.Approval
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{rows: make(map[string]*entities.Approval)}
}

func (r *memApprovalRepo) Create(_ context.Context, a *entities.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *memApprovalRepo) GetByID(_ context.Context, id string) (*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memApprovalRepo) Update(_ context.Context, a *entities.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[a.ID]
	if !ok {
		return domainerrors.ErrNotFound
	}
	if row.Version != a.Version {
		return domainerrors.ErrVersionConflict
	}
	cp := *a
	cp.Version = a.Version + 1
	r.rows[a.ID] = &cp
	a.Version = cp.Version
	return nil
}

func (r *memApprovalRepo) ListPastSLA(_ context.Context, asOf time.Time) ([]*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Approval
	for _, row := range r.rows {
		if row.State == entities.ApprovalPending && row.SLAAt.Before(asOf) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memApprovalRepo) ListPending(_ context.Context) ([]*entities.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Approval
	for _, row := range r.rows {
		if row.State == entities.ApprovalPending || row.State == entities.ApprovalEscalated {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestQueue(t *testing.T) (*Queue, *memApprovalRepo, *clockwork.FakeClock, *eventbus.Bus) {
	t.Helper()
	clock := clockwork.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo := newMemApprovalRepo()
	bus := eventbus.New(nil, clock, "test")
	return NewQueue(repo, clock, bus), repo, clock, bus
}

func TestEnqueueSetsSLADeadline(t *testing.T) {
	q, _, clock, _ := newTestQueue(t)

	a, err := q.Enqueue(context.Background(), EnqueueInput{
		EntityRef:    "transaction:t1",
		ApprovalType: entities.ApprovalTypeHighRiskPayment,
		Priority:     PriorityHigh,
		SLAMinutes:   60,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.ApprovalPending, a.State)
	assert.Equal(t, clock.Now().Add(time.Hour), a.SLAAt)
	require.Len(t, a.History, 1)
	assert.Equal(t, "created", a.History[0].Action)
}

func TestOnlyFirstDecisionAccepted(t *testing.T) {
	q, repo, _, _ := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, EnqueueInput{
		EntityRef:    "refund:r1",
		ApprovalType: entities.ApprovalTypeRefund,
		Priority:     PriorityNormal,
		SLAMinutes:   240,
	})
	require.NoError(t, err)

	var decisions []string
	q.OnDecision(func(_ context.Context, a *entities.Approval) {
		decisions = append(decisions, a.Decision)
	})

	require.NoError(t, q.Decide(ctx, a.ID, "reviewer-1", "approve", "looks fine"))

	err = q.Decide(ctx, a.ID, "reviewer-2", "deny", "changed my mind")
	require.Error(t, err)

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ApprovalApproved, stored.State)
	assert.Equal(t, "approve", stored.Decision)
	assert.True(t, stored.Decided)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "reviewer-1", stored.History[1].Actor)

	assert.Equal(t, []string{"approve"}, decisions)
}

func TestDecideRejectsUnknownVerb(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	a, err := q.Enqueue(context.Background(), EnqueueInput{
		EntityRef: "x", ApprovalType: entities.ApprovalTypeRefund, SLAMinutes: 10,
	})
	require.NoError(t, err)
	require.Error(t, q.Decide(context.Background(), a.ID, "r", "maybe", ""))
}

func TestSweeperEscalatesPastSLA(t *testing.T) {
	q, repo, clock, bus := newTestQueue(t)
	ctx := context.Background()

	var escalated int
	bus.Subscribe(entities.EventApprovalEscalated, func(context.Context, entities.CanonicalEvent) {
		escalated++
	})

	a, err := q.Enqueue(ctx, EnqueueInput{
		EntityRef:    "dispute:d1",
		ApprovalType: entities.ApprovalTypeDispute,
		Priority:     PriorityHigh,
		SLAMinutes:   30,
	})
	require.NoError(t, err)

	sweeper := NewSweeper(q, clock, 30*time.Second)

	// Before the SLA nothing happens.
	sweeper.SweepOnce(ctx)
	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ApprovalPending, stored.State)

	clock.Advance(31 * time.Minute)
	sweeper.SweepOnce(ctx)

	stored, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ApprovalEscalated, stored.State)
	assert.Equal(t, 1, escalated)

	// An escalated entry can still be decided, exactly once.
	require.NoError(t, q.Decide(ctx, a.ID, "reviewer-1", "deny", "no evidence"))
	require.Error(t, q.Decide(ctx, a.ID, "reviewer-1", "deny", "again"))
}

func TestHasOpenHold(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	assert.False(t, q.HasOpenHold(ctx, "creator:C1"))
	_, err := q.Enqueue(ctx, EnqueueInput{
		EntityRef: "creator:C1", ApprovalType: entities.ApprovalTypeHighRiskPayment, SLAMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, q.HasOpenHold(ctx, "creator:C1"))
	assert.False(t, q.HasOpenHold(ctx, "creator:C2"))
}
