package job

import (
	"context"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// ActionRepository defines the persistence contract for background actions
type ActionRepository interface {
	// FindByIDForTenant finds an action by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Action, error)

	// FindLatestByScope returns the most recently created action for the
	// scope, of the given type when actionType is non-empty
	FindLatestByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, actionType ActionType) (*Action, error)

	// InFlightExists reports whether any pending or running action
	// occupies the scope
	InFlightExists(ctx context.Context, tenantID uuid.UUID, datasetKey string) (bool, error)

	// FindRetryable returns failed re-dispatchable actions across all
	// tenants that still have retry budget, for the sweep
	FindRetryable(ctx context.Context, limit int) ([]Action, error)

	// FindByScope lists actions for the scope, newest first
	FindByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string, filter shared.Filter) ([]Action, error)

	// Save creates or updates an action
	Save(ctx context.Context, action *Action) error
}
