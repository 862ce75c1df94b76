package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// GormFieldOverrideRepository implements dedup.FieldOverrideRepository using GORM
type GormFieldOverrideRepository struct {
	db *gorm.DB
}

// NewGormFieldOverrideRepository creates a new GormFieldOverrideRepository
func NewGormFieldOverrideRepository(db *gorm.DB) *GormFieldOverrideRepository {
	return &GormFieldOverrideRepository{db: db}
}

// FindByGroup returns the override for a group, if any
func (r *GormFieldOverrideRepository) FindByGroup(ctx context.Context, groupID uuid.UUID) (*dedup.FieldOverride, error) {
	var override dedup.FieldOverride
	if err := r.db.WithContext(ctx).
		First(&override, "group_id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &override, nil
}

// FindByScope returns all overrides for the scope
func (r *GormFieldOverrideRepository) FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]dedup.FieldOverride, error) {
	var overrides []dedup.FieldOverride
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Order("created_at asc").
		Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}

// Save creates or updates an override
func (r *GormFieldOverrideRepository) Save(ctx context.Context, override *dedup.FieldOverride) error {
	return r.db.WithContext(ctx).Save(override).Error
}

// DeleteByGroup deletes the override rows for a group
func (r *GormFieldOverrideRepository) DeleteByGroup(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&dedup.FieldOverride{}).Error
}

// DeleteByScope deletes all overrides for the scope
func (r *GormFieldOverrideRepository) DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Delete(&dedup.FieldOverride{}).Error
}
