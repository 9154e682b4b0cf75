package repositories

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/domain/entities"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/infrastructure/models"
)

type routingRuleRepo struct {
	db *gorm.DB
}

func NewRoutingRuleRepository(db *gorm.DB) domainrepos.RoutingRuleRepository {
	return &routingRuleRepo{db: db}
}

func (r *routingRuleRepo) ListActive(ctx context.Context) ([]*entities.RoutingRule, error) {
	var rows []models.RoutingRule
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("active = ?", true).
		Order("priority ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.RoutingRule, 0, len(rows))
	for i := range rows {
		row := rows[i]
		rule := &entities.RoutingRule{
			ID:       row.ID,
			Priority: row.Priority,
			Active:   row.Active,
		}
		if row.ConditionsJSON != "" {
			if err := json.Unmarshal([]byte(row.ConditionsJSON), &rule.Conditions); err != nil {
				return nil, err
			}
		}
		if row.TargetJSON != "" {
			if err := json.Unmarshal([]byte(row.TargetJSON), &rule.Target); err != nil {
				return nil, err
			}
		}
		if row.CanaryJSON != "" {
			if err := json.Unmarshal([]byte(row.CanaryJSON), &rule.Canary); err != nil {
				return nil, err
			}
		}
		out = append(out, rule)
	}
	return out, nil
}
