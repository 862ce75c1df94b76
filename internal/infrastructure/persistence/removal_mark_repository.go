package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// GormRemovalMarkRepository implements dedup.RemovalMarkRepository using GORM
type GormRemovalMarkRepository struct {
	db *gorm.DB
}

// NewGormRemovalMarkRepository creates a new GormRemovalMarkRepository
func NewGormRemovalMarkRepository(db *gorm.DB) *GormRemovalMarkRepository {
	return &GormRemovalMarkRepository{db: db}
}

// FindByIDForTenant finds a mark by ID within a tenant
func (r *GormRemovalMarkRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*dedup.RemovalMark, error) {
	var mark dedup.RemovalMark
	if err := r.db.WithContext(ctx).
		First(&mark, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mark, nil
}

// FindByContact returns the mark for a contact, if any
func (r *GormRemovalMarkRepository) FindByContact(ctx context.Context, contactID uuid.UUID) (*dedup.RemovalMark, error) {
	var mark dedup.RemovalMark
	if err := r.db.WithContext(ctx).
		First(&mark, "contact_id = ?", contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mark, nil
}

// FindByScope returns all marks for the scope
func (r *GormRemovalMarkRepository) FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]dedup.RemovalMark, error) {
	var marks []dedup.RemovalMark
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Order("created_at asc").
		Find(&marks).Error; err != nil {
		return nil, err
	}
	return marks, nil
}

// Save creates or updates a mark
func (r *GormRemovalMarkRepository) Save(ctx context.Context, mark *dedup.RemovalMark) error {
	return r.db.WithContext(ctx).Save(mark).Error
}

// SaveBatch persists the marks staged for one decision
func (r *GormRemovalMarkRepository) SaveBatch(ctx context.Context, marks []*dedup.RemovalMark) error {
	if len(marks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(marks).Error
}

// Delete deletes a single mark
func (r *GormRemovalMarkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&dedup.RemovalMark{}).Error
}

// DeleteByGroup deletes all marks for a group
func (r *GormRemovalMarkRepository) DeleteByGroup(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&dedup.RemovalMark{}).Error
}

// DeleteByScope deletes all marks for the scope
func (r *GormRemovalMarkRepository) DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Delete(&dedup.RemovalMark{}).Error
}
