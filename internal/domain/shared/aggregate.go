package shared

import (
	"github.com/google/uuid"
)

// BaseAggregateRoot provides common fields for aggregate roots,
// including a version counter for optimistic locking
type BaseAggregateRoot struct {
	BaseEntity
	Version int `gorm:"not null;default:1"`
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// TenantAggregateRoot extends BaseAggregateRoot with multi-tenant support
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// NewTenantAggregateRoot creates a new tenant-scoped aggregate root
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          tenantID,
	}
}

// DatasetAggregateRoot extends TenantAggregateRoot with a dataset scope.
// Every record mirrored from or derived for one imported CRM contact list
// carries the (tenant, dataset) pair as its unit of isolation.
type DatasetAggregateRoot struct {
	TenantAggregateRoot
	DatasetKey string `gorm:"type:varchar(100);not null;index"`
}

// NewDatasetAggregateRoot creates a new dataset-scoped aggregate root
func NewDatasetAggregateRoot(tenantID uuid.UUID, datasetKey string) DatasetAggregateRoot {
	return DatasetAggregateRoot{
		TenantAggregateRoot: NewTenantAggregateRoot(tenantID),
		DatasetKey:          datasetKey,
	}
}
