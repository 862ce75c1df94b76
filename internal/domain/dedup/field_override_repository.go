package dedup

import (
	"context"

	"github.com/google/uuid"
)

// FieldOverrideRepository defines the persistence contract for field overrides
type FieldOverrideRepository interface {
	// FindByGroup returns the override for a group, if any
	FindByGroup(ctx context.Context, groupID uuid.UUID) (*FieldOverride, error)

	// FindByScope returns all overrides for the (tenant, dataset) scope
	FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]FieldOverride, error)

	// Save creates or updates an override
	Save(ctx context.Context, override *FieldOverride) error

	// DeleteByGroup deletes the override rows for a group
	DeleteByGroup(ctx context.Context, groupID uuid.UUID) error

	// DeleteByScope deletes all overrides for the scope
	DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}
