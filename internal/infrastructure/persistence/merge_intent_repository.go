package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/dedup"
)

// GormMergeIntentRepository implements dedup.MergeIntentRepository using GORM
type GormMergeIntentRepository struct {
	db *gorm.DB
}

// NewGormMergeIntentRepository creates a new GormMergeIntentRepository
func NewGormMergeIntentRepository(db *gorm.DB) *GormMergeIntentRepository {
	return &GormMergeIntentRepository{db: db}
}

// ExistsPair reports whether an intent already exists for the tuple
func (r *GormMergeIntentRepository) ExistsPair(ctx context.Context, groupID uuid.UUID, survivorExternalID, absorbedExternalID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&dedup.MergeIntent{}).
		Where("group_id = ? AND survivor_external_id = ? AND absorbed_external_id = ?",
			groupID, survivorExternalID, absorbedExternalID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByGroup returns all intents for a group in creation order. Seq
// breaks ties between intents staged in a single batch.
func (r *GormMergeIntentRepository) FindByGroup(ctx context.Context, groupID uuid.UUID) ([]dedup.MergeIntent, error) {
	var intents []dedup.MergeIntent
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at asc, seq asc").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

// FindPendingByScope returns pending intents oldest first
func (r *GormMergeIntentRepository) FindPendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]dedup.MergeIntent, error) {
	var intents []dedup.MergeIntent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ? AND status = ?", tenantID, datasetKey, dedup.IntentStatusPending).
		Order("created_at asc, seq asc").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

// CountPendingByScope counts pending intents for the scope
func (r *GormMergeIntentRepository) CountPendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&dedup.MergeIntent{}).
		Where("tenant_id = ? AND dataset_key = ? AND status = ?", tenantID, datasetKey, dedup.IntentStatusPending).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates an intent
func (r *GormMergeIntentRepository) Save(ctx context.Context, intent *dedup.MergeIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

// SaveBatch persists the intents staged for one decision
func (r *GormMergeIntentRepository) SaveBatch(ctx context.Context, intents []*dedup.MergeIntent) error {
	if len(intents) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(intents).Error
}

// DeleteByGroup deletes all intents for a group
func (r *GormMergeIntentRepository) DeleteByGroup(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&dedup.MergeIntent{}).Error
}

// DeletePendingByScope deletes pending intents for the scope
func (r *GormMergeIntentRepository) DeletePendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ? AND status = ?", tenantID, datasetKey, dedup.IntentStatusPending).
		Delete(&dedup.MergeIntent{}).Error
}

// DeleteProcessedByScope deletes completed and failed intents for the scope
func (r *GormMergeIntentRepository) DeleteProcessedByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ? AND status IN ?", tenantID, datasetKey,
			[]dedup.IntentStatus{dedup.IntentStatusCompleted, dedup.IntentStatusFailed}).
		Delete(&dedup.MergeIntent{}).Error
}
