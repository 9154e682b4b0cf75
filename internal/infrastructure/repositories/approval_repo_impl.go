package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type approvalRepo struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) domainrepos.ApprovalRepository {
	return &approvalRepo{db: db}
}

func (r *approvalRepo) Create(ctx context.Context, a *entities.Approval) error {
	row, err := toApprovalModel(a)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(row).Error
}

func (r *approvalRepo) GetByID(ctx context.Context, id string) (*entities.Approval, error) {
	var row models.Approval
	err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toApprovalEntity(&row)
}

func (r *approvalRepo) Update(ctx context.Context, a *entities.Approval) error {
	row, err := toApprovalModel(a)
	if err != nil {
		return err
	}
	expected := row.Version
	row.Version = expected + 1
	res := GetDB(ctx, r.db).WithContext(ctx).
		Model(&models.Approval{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	a.Version = row.Version
	return nil
}

func (r *approvalRepo) ListPastSLA(ctx context.Context, asOf time.Time) ([]*entities.Approval, error) {
	return r.list(GetDB(ctx, r.db).WithContext(ctx).
		Where("state = ? AND sla_at < ?", string(entities.ApprovalPending), asOf))
}

func (r *approvalRepo) ListPending(ctx context.Context) ([]*entities.Approval, error) {
	return r.list(GetDB(ctx, r.db).WithContext(ctx).
		Where("state IN ?", []string{string(entities.ApprovalPending), string(entities.ApprovalEscalated)}).
		Order("priority DESC, sla_at ASC"))
}

func (r *approvalRepo) list(q *gorm.DB) ([]*entities.Approval, error) {
	var rows []models.Approval
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Approval, 0, len(rows))
	for i := range rows {
		e, err := toApprovalEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toApprovalModel(e *entities.Approval) (*models.Approval, error) {
	history, err := json.Marshal(e.History)
	if err != nil {
		return nil, err
	}
	return &models.Approval{
		ID:             e.ID,
		EntityRef:      e.EntityRef,
		ApprovalType:   string(e.ApprovalType),
		State:          string(e.State),
		Priority:       e.Priority,
		Assignee:       e.Assignee,
		SLAMinutes:     e.SLAMinutes,
		SLAAt:          e.SLAAt,
		HistoryJSON:    string(history),
		Decision:       e.Decision,
		DecisionReason: e.DecisionReason,
		Decided:        e.Decided,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		Version:        e.Version,
	}, nil
}

func toApprovalEntity(row *models.Approval) (*entities.Approval, error) {
	var history []entities.ApprovalHistoryEntry
	if row.HistoryJSON != "" {
		if err := json.Unmarshal([]byte(row.HistoryJSON), &history); err != nil {
			return nil, err
		}
	}
	return &entities.Approval{
		ID:             row.ID,
		EntityRef:      row.EntityRef,
		ApprovalType:   entities.ApprovalType(row.ApprovalType),
		State:          entities.ApprovalState(row.State),
		Priority:       row.Priority,
		Assignee:       row.Assignee,
		SLAMinutes:     row.SLAMinutes,
		SLAAt:          row.SLAAt,
		History:        history,
		Decision:       row.Decision,
		DecisionReason: row.DecisionReason,
		Decided:        row.Decided,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Version:        row.Version,
	}, nil
}
