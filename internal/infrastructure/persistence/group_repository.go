package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
	"github.com/mergedesk/backend/internal/infrastructure/persistence/models"
)

// GormGroupRepository implements dedup.GroupRepository using GORM
type GormGroupRepository struct {
	db *gorm.DB
}

// NewGormGroupRepository creates a new GormGroupRepository
func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

// FindByIDForTenant finds a group by ID within a tenant
func (r *GormGroupRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*dedup.DuplicateGroup, error) {
	var model models.GroupModel
	if err := r.db.WithContext(ctx).
		First(&model, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByScope returns groups in the scope with pagination
func (r *GormGroupRepository) FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool, filter shared.Filter) ([]dedup.DuplicateGroup, error) {
	orderBy := ValidateSortField(filter.OrderBy, GroupSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query := r.scopeQuery(ctx, tenantID, datasetKey, includeMerged).
		Order(orderBy + " " + orderDir)

	if filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var rows []models.GroupModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.toDomainSlice(rows), nil
}

// CountByScope counts groups in the scope
func (r *GormGroupRepository) CountByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool) (int64, error) {
	var count int64
	if err := r.scopeQuery(ctx, tenantID, datasetKey, includeMerged).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindOpenByScope returns every open group in the scope
func (r *GormGroupRepository) FindOpenByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]dedup.DuplicateGroup, error) {
	var rows []models.GroupModel
	if err := r.scopeQuery(ctx, tenantID, datasetKey, false).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.toDomainSlice(rows), nil
}

// Save creates or updates a single group
func (r *GormGroupRepository) Save(ctx context.Context, group *dedup.DuplicateGroup) error {
	model := models.GroupModelFromDomain(group)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveBatch persists one detection batch of groups
func (r *GormGroupRepository) SaveBatch(ctx context.Context, groups []*dedup.DuplicateGroup) error {
	if len(groups) == 0 {
		return nil
	}
	rows := make([]*models.GroupModel, len(groups))
	for i, g := range groups {
		rows[i] = models.GroupModelFromDomain(g)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// DeleteOpenByScope clears prior open groups so detection can re-run
func (r *GormGroupRepository) DeleteOpenByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND dataset_key = ? AND merged = ?", tenantID, datasetKey, false).
		Delete(&models.GroupModel{}).Error
}

// PruneMembersByScope empties member lists for every group in the scope
func (r *GormGroupRepository) PruneMembersByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	return r.db.WithContext(ctx).Model(&models.GroupModel{}).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey).
		Update("members", "[]").Error
}

func (r *GormGroupRepository) scopeQuery(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.GroupModel{}).
		Where("tenant_id = ? AND dataset_key = ?", tenantID, datasetKey)
	if !includeMerged {
		query = query.Where("merged = ?", false)
	}
	return query
}

func (r *GormGroupRepository) toDomainSlice(rows []models.GroupModel) []dedup.DuplicateGroup {
	groups := make([]dedup.DuplicateGroup, len(rows))
	for i := range rows {
		groups[i] = *rows[i].ToDomain()
	}
	return groups
}
