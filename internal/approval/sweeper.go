package approval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	"fanztrust.orchestrator/internal/metrics"
	"fanztrust.orchestrator/pkg/logger"
)

// Sweeper escalates entries past their SLA. It wakes at most every
// interval (30 s by default) and re-notifies via approval.escalated.
type Sweeper struct {
	queue    *Queue
	clock    clockwork.Clock
	interval time.Duration
	stop     chan struct{}
}

// NewSweeper builds a Sweeper over queue.
func NewSweeper(queue *Queue, clock clockwork.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{queue: queue, clock: clock, interval: interval, stop: make(chan struct{})}
}

// Start loops until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// Stop signals the loop to exit.
func (s *Sweeper) Stop() { close(s.stop) }

// SweepOnce escalates every pending entry whose SLA has passed. Exported so
// tests can drive it against a fake clock without the ticker.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	overdue, err := s.queue.repo.ListPastSLA(ctx, s.clock.Now())
	if err != nil {
		logger.WithContext(ctx).Warn("approval sweep failed", zap.Error(err))
		return
	}
	for _, a := range overdue {
		if a.State != entities.ApprovalPending {
			continue
		}
		a.State = entities.ApprovalEscalated
		a.History = append(a.History, entities.ApprovalHistoryEntry{
			At: s.clock.Now(), Actor: "sweeper", Action: "escalated", Note: "SLA exceeded",
		})
		a.UpdatedAt = s.clock.Now()
		if err := s.queue.repo.Update(ctx, a); err != nil {
			logger.WithContext(ctx).Warn("failed to escalate approval",
				zap.String("approval_id", a.ID), zap.Error(err))
			continue
		}
		metrics.ApprovalEscalations.Inc()
		if s.queue.bus != nil {
			s.queue.bus.Publish(ctx, entities.EventApprovalEscalated, "approval:"+a.ID, map[string]interface{}{
				"entity_ref": a.EntityRef,
				"type":       a.ApprovalType,
				"sla_at":     a.SLAAt,
			})
		}
	}
}
