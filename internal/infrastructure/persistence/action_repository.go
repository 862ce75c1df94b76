package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// GormActionRepository implements job.ActionRepository using GORM
type GormActionRepository struct {
	db *gorm.DB
}

// NewGormActionRepository creates a new GormActionRepository
func NewGormActionRepository(db *gorm.DB) *GormActionRepository {
	return &GormActionRepository{db: db}
}

// FindByIDForTenant finds an action by ID within a tenant
func (r *GormActionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*job.Action, error) {
	var action job.Action
	if err := r.db.WithContext(ctx).
		First(&action, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &action, nil
}

// FindLatestByScope returns the most recent action for the scope
func (r *GormActionRepository) FindLatestByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, actionType job.ActionType) (*job.Action, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey)
	if actionType != "" {
		query = query.Where("type = ?", actionType)
	}
	var action job.Action
	if err := query.Order("created_at desc").First(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &action, nil
}

// InFlightExists reports whether any pending or running action occupies the scope
func (r *GormActionRepository) InFlightExists(ctx context.Context, tenantID uuid.UUID, datasetKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&job.Action{}).
		Where("tenant_id = ? AND dataset_key = ? AND status IN ?", tenantID, datasetKey,
			[]job.ActionStatus{job.ActionStatusPending, job.ActionStatusRunning}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindRetryable returns failed import actions with retry budget left,
// oldest first. Only imports are re-dispatchable: a detection re-run
// needs the caller's conditions, which the action row does not carry.
func (r *GormActionRepository) FindRetryable(ctx context.Context, limit int) ([]job.Action, error) {
	var actions []job.Action
	query := r.db.WithContext(ctx).
		Where("status = ? AND type = ? AND retry_count < ?", job.ActionStatusFailed, job.ActionTypeImport, job.MaxRetries).
		Order("updated_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

// FindByScope lists actions for the scope, newest first
func (r *GormActionRepository) FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, filter shared.Filter) ([]job.Action, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Order("created_at desc")
	if filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	var actions []job.Action
	if err := query.Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

// Save creates or updates an action
func (r *GormActionRepository) Save(ctx context.Context, action *job.Action) error {
	return r.db.WithContext(ctx).Save(action).Error
}
