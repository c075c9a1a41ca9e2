package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// AgentRepository is tenant-scoped: every lookup takes orgID and returns
// NotFound (never Forbidden) for a correctly-formed id under another
// Organization, per spec.md §4.14.
type AgentRepository interface {
	Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error)
	GetByID(ctx context.Context, orgID, id string) (*domain.Agent, error)
	Update(ctx context.Context, orgID, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Agent, error)
	SetStatus(ctx context.Context, id string, status domain.AgentStatus) error
	CountActiveByOrg(ctx context.Context, orgID string) (int64, error)
}

type gormAgentRepository struct{ db *gorm.DB }

func (r *gormAgentRepository) Create(ctx context.Context, req *domain.CreateAgentRequest) (*domain.Agent, error) {
	var cpID *string
	if req.ContextProfileID != "" {
		cpID = &req.ContextProfileID
	}
	agent := &domain.Agent{
		OrgID:            req.OrgID,
		Name:             req.Name,
		Status:           domain.AgentStatusIdle,
		ContextProfileID: cpID,
		RuntimeConfig:    req.RuntimeConfig,
	}
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return nil, apperr.DependencyFailure("create agent", err)
	}
	return agent, nil
}

func (r *gormAgentRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, apperr.DependencyFailure("get agent", err)
	}
	return &agent, nil
}

func (r *gormAgentRepository) Update(ctx context.Context, orgID, id string, req *domain.UpdateAgentRequest) (*domain.Agent, error) {
	agent, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.ContextProfileID != nil {
		agent.ContextProfileID = req.ContextProfileID
	}
	if req.RuntimeConfig != nil {
		agent.RuntimeConfig = *req.RuntimeConfig
	}
	if err := r.db.WithContext(ctx).Save(agent).Error; err != nil {
		return nil, apperr.DependencyFailure("update agent", err)
	}
	return agent, nil
}

func (r *gormAgentRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	if err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("created_at DESC").Find(&agents).Error; err != nil {
		return nil, apperr.DependencyFailure("list agents", err)
	}
	return agents, nil
}

func (r *gormAgentRepository) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Agent{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return apperr.DependencyFailure("set agent status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("agent not found")
	}
	return nil
}

// CountActiveByOrg counts agents currently handling a call. The Session
// Registry enforces MaxConcurrentCalls with CallRepository.CountActiveByOrg,
// not with this count.
func (r *gormAgentRepository) CountActiveByOrg(ctx context.Context, orgID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Agent{}).
		Where("org_id = ? AND status = ?", orgID, domain.AgentStatusActive).Count(&count).Error; err != nil {
		return 0, apperr.DependencyFailure("count active agents", err)
	}
	return count, nil
}
