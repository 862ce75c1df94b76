package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mergedesk/backend/internal/domain/contact"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// GormContactRepository implements contact.Repository using GORM
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// FindByIDForTenant finds a contact by ID within a tenant
func (r *GormContactRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*contact.Contact, error) {
	var ct contact.Contact
	if err := r.db.WithContext(ctx).
		First(&ct, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ct, nil
}

// FindByIDs loads the given contacts within a tenant; missing ids are
// silently absent from the result
func (r *GormContactRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]contact.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var contacts []contact.Contact
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// FindAllByScope returns every contact in the (tenant, dataset) scope
func (r *GormContactRepository) FindAllByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]contact.Contact, error) {
	var contacts []contact.Contact
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Order("created_at asc").
		Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// CountByScope counts contacts in the scope
func (r *GormContactRepository) CountByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&contact.Contact{}).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertBatch inserts the contacts, updating the mirrored fields when
// the external id already exists in the scope
func (r *GormContactRepository) UpsertBatch(ctx context.Context, contacts []*contact.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"}, {Name: "dataset_key"}, {Name: "external_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "email", "phone", "company",
				"attributes", "source_updated_at", "updated_at", "version",
			}),
		}).
		Create(contacts).Error
}

// UpdateByExternalID loads the contact by external id, applies the
// mutation, and saves it
func (r *GormContactRepository) UpdateByExternalID(ctx context.Context, tenantID uuid.UUID, datasetKey, externalID string, apply func(*contact.Contact) error) error {
	var ct contact.Contact
	if err := r.db.WithContext(ctx).
		First(&ct, "tenant_id = ? AND dataset_key = ? AND external_id = ?", tenantID, datasetKey, externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if err := apply(&ct); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(&ct).Error
}

// DeleteByExternalIDs removes the contacts with the given external ids
// from the scope
func (r *GormContactRepository) DeleteByExternalIDs(ctx context.Context, tenantID uuid.UUID, datasetKey string, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ? AND external_id IN ?", tenantID, datasetKey, externalIDs).
		Delete(&contact.Contact{}).Error
}

// DeleteByScope removes every contact in the scope
func (r *GormContactRepository) DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Delete(&contact.Contact{}).Error
}
