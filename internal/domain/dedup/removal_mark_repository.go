package dedup

import (
	"context"

	"github.com/google/uuid"
)

// RemovalMarkRepository defines the persistence contract for removal marks
type RemovalMarkRepository interface {
	// FindByIDForTenant finds a mark by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*RemovalMark, error)

	// FindByContact returns the mark for a contact, if any
	FindByContact(ctx context.Context, contactID uuid.UUID) (*RemovalMark, error)

	// FindByScope returns all marks for the (tenant, dataset) scope
	FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]RemovalMark, error)

	// Save creates or updates a mark
	Save(ctx context.Context, mark *RemovalMark) error

	// SaveBatch persists the marks staged for one decision
	SaveBatch(ctx context.Context, marks []*RemovalMark) error

	// Delete deletes a single mark
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByGroup deletes all marks for a group
	DeleteByGroup(ctx context.Context, groupID uuid.UUID) error

	// DeleteByScope deletes all marks for the scope
	DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}
