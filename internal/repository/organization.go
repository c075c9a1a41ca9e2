package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// OrganizationRepository is the tenant directory (spec.md §3, §4.14).
type OrganizationRepository interface {
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	Update(ctx context.Context, id string, fn func(*domain.Organization) error) (*domain.Organization, error)
	List(ctx context.Context, includeInactive bool) ([]*domain.Organization, error)
}

type gormOrganizationRepository struct{ db *gorm.DB }

func (r *gormOrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		return apperr.DependencyFailure("create organization", err)
	}
	return nil
}

func (r *gormOrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.DependencyFailure("get organization", err)
	}
	return &org, nil
}

func (r *gormOrganizationRepository) Update(ctx context.Context, id string, fn func(*domain.Organization) error) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.DependencyFailure("get organization", err)
	}
	if err := fn(&org); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(&org).Error; err != nil {
		return nil, apperr.DependencyFailure("update organization", err)
	}
	return &org, nil
}

func (r *gormOrganizationRepository) List(ctx context.Context, includeInactive bool) ([]*domain.Organization, error) {
	var orgs []*domain.Organization
	q := r.db.WithContext(ctx)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("created_at DESC").Find(&orgs).Error; err != nil {
		return nil, apperr.DependencyFailure("list organizations", err)
	}
	return orgs, nil
}
