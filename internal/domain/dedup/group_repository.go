package dedup

import (
	"context"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// GroupRepository defines the persistence contract for duplicate groups
type GroupRepository interface {
	// FindByIDForTenant finds a group by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*DuplicateGroup, error)

	// FindByScope returns groups in the (tenant, dataset) scope; merged
	// groups are excluded unless includeMerged is set
	FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool, filter shared.Filter) ([]DuplicateGroup, error)

	// CountByScope counts groups in the scope under the same filter
	CountByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool) (int64, error)

	// FindOpenByScope returns every open group in the scope
	FindOpenByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]DuplicateGroup, error)

	// Save creates or updates a single group
	Save(ctx context.Context, group *DuplicateGroup) error

	// SaveBatch persists one detection batch of groups
	SaveBatch(ctx context.Context, groups []*DuplicateGroup) error

	// DeleteOpenByScope clears prior open groups so detection can re-run;
	// merged groups are preserved for audit
	DeleteOpenByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error

	// PruneMembersByScope empties member lists for every group in the
	// scope once the dataset's working copy has been consumed
	PruneMembersByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}
