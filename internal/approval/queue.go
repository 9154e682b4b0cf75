// Package approval is the SLA-tracked review queue for high-risk items:
// challenged payments, refunds under manual review, disputes.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/metrics"
	"fanztrust.orchestrator/pkg/logger"
)

// Priorities; higher sorts first in reviewer tooling.
const (
	PriorityNormal = 1
	PriorityHigh   = 2
)

// defaultHighWater is the pending-entry count past which the orchestrator
// starts shedding non-urgent work.
const defaultHighWater = 1000

// EnqueueInput describes one review item.
type EnqueueInput struct {
	EntityRef    string
	ApprovalType entities.ApprovalType
	Priority     int
	Assignee     string
	SLAMinutes   int
}

// DecisionHandler observes accepted decisions; the orchestrator registers
// handlers to resume held payments and reviewed refunds.
type DecisionHandler func(ctx context.Context, a *entities.Approval)

// Queue persists approvals and accepts exactly one decision per entry.
type Queue struct {
	repo  repositories.ApprovalRepository
	clock clockwork.Clock
	bus   *eventbus.Bus

	mu        sync.RWMutex
	handlers  []DecisionHandler
	highWater int
}

// NewQueue builds a Queue.
func NewQueue(repo repositories.ApprovalRepository, clock clockwork.Clock, bus *eventbus.Bus) *Queue {
	return &Queue{repo: repo, clock: clock, bus: bus, highWater: defaultHighWater}
}

// OnDecision registers a handler called after every accepted decision.
func (q *Queue) OnDecision(h DecisionHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// Enqueue creates a pending entry with its SLA deadline
// (sla_at = now + sla_minutes).
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*entities.Approval, error) {
	now := q.clock.Now()
	a := &entities.Approval{
		ID:           uuid.NewString(),
		EntityRef:    in.EntityRef,
		ApprovalType: in.ApprovalType,
		State:        entities.ApprovalPending,
		Priority:     in.Priority,
		Assignee:     in.Assignee,
		SLAMinutes:   in.SLAMinutes,
		SLAAt:        now.Add(minutes(in.SLAMinutes)),
		History: []entities.ApprovalHistoryEntry{
			{At: now, Actor: "system", Action: "created"},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := q.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	q.refreshDepth(ctx)
	return a, nil
}

// Decide records one decision. Only the first decision is accepted;
// subsequent attempts fail with a conflict.
func (q *Queue) Decide(ctx context.Context, id, decider, decision, reason string) error {
	if decision != "approve" && decision != "deny" {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "decision must be approve or deny", nil)
	}
	a, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Decided || a.State.Terminal() {
		return domainerrors.New(domainerrors.CodeConflict, "approval already decided", nil)
	}

	now := q.clock.Now()
	if decision == "approve" {
		a.State = entities.ApprovalApproved
	} else {
		a.State = entities.ApprovalDenied
	}
	a.Decided = true
	a.Decision = decision
	a.DecisionReason = reason
	a.History = append(a.History, entities.ApprovalHistoryEntry{
		At: now, Actor: decider, Action: decision, Note: reason,
	})
	a.UpdatedAt = now
	if err := q.repo.Update(ctx, a); err != nil {
		return err
	}
	q.refreshDepth(ctx)

	q.mu.RLock()
	handlers := append([]DecisionHandler(nil), q.handlers...)
	q.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, a)
	}
	return nil
}

// HasOpenHold reports whether a pending or escalated entry exists for
// entityRef, used by the payout path's "no open hold" gate.
func (q *Queue) HasOpenHold(ctx context.Context, entityRef string) bool {
	pending, err := q.repo.ListPending(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn("open-hold check failed", zap.Error(err))
		return false
	}
	for _, a := range pending {
		if a.EntityRef == entityRef {
			return true
		}
	}
	return false
}

// Overloaded reports whether the queue depth crossed the high-water mark.
func (q *Queue) Overloaded(ctx context.Context) bool {
	pending, err := q.repo.ListPending(ctx)
	if err != nil {
		return false
	}
	return len(pending) > q.highWater
}

// SetHighWater overrides the backpressure threshold.
func (q *Queue) SetHighWater(n int) { q.highWater = n }

func (q *Queue) refreshDepth(ctx context.Context) {
	pending, err := q.repo.ListPending(ctx)
	if err != nil {
		return
	}
	metrics.ApprovalQueueDepth.Set(float64(len(pending)))
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
