package contact

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for the contact store.
// The grouping engine and the finish executor depend only on these
// operations.
type Repository interface {
	// FindByIDForTenant finds a contact by internal ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Contact, error)

	// FindByIDs finds multiple contacts by their internal IDs
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]Contact, error)

	// FindAllByScope returns every contact in the (tenant, dataset) scope
	FindAllByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]Contact, error)

	// CountByScope counts contacts in the (tenant, dataset) scope
	CountByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) (int64, error)

	// UpsertBatch creates or updates contacts keyed by external ID
	UpsertBatch(ctx context.Context, contacts []*Contact) error

	// UpdateByExternalID persists changes to the contact with the given
	// external ID in the scope
	UpdateByExternalID(ctx context.Context, tenantID uuid.UUID, datasetKey, externalID string, apply func(*Contact) error) error

	// DeleteByExternalIDs deletes contacts by external ID in the scope
	DeleteByExternalIDs(ctx context.Context, tenantID uuid.UUID, datasetKey string, externalIDs []string) error

	// DeleteByScope deletes every contact in the (tenant, dataset) scope
	DeleteByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}
