package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// AggregateModel provides common persistence fields for aggregate roots.
// It extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
}

// DatasetAggregateModel provides common persistence fields for
// dataset-scoped aggregate roots.
type DatasetAggregateModel struct {
	AggregateModel
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	DatasetKey string    `gorm:"type:varchar(100);not null;index"`
}

// FromDomainDatasetAggregateRoot populates DatasetAggregateModel from
// domain DatasetAggregateRoot
func (m *DatasetAggregateModel) FromDomainDatasetAggregateRoot(d shared.DatasetAggregateRoot) {
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.TenantID = d.TenantID
	m.DatasetKey = d.DatasetKey
}

// PopulateDatasetAggregateRoot populates a domain DatasetAggregateRoot
// from the persistence model
func (m *DatasetAggregateModel) PopulateDatasetAggregateRoot(d *shared.DatasetAggregateRoot) {
	d.ID = m.ID
	d.CreatedAt = m.CreatedAt
	d.UpdatedAt = m.UpdatedAt
	d.Version = m.Version
	d.TenantID = m.TenantID
	d.DatasetKey = m.DatasetKey
}
