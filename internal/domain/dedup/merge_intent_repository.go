package dedup

import (
	"context"

	"github.com/google/uuid"
)

// MergeIntentRepository defines the persistence contract for merge intents
type MergeIntentRepository interface {
	// ExistsPair reports whether an intent already exists for the
	// (group, survivor, absorbed) tuple
	ExistsPair(ctx context.Context, groupID uuid.UUID, survivorExternalID, absorbedExternalID string) (bool, error)

	// FindByGroup returns all intents for a group in creation order
	FindByGroup(ctx context.Context, groupID uuid.UUID) ([]MergeIntent, error)

	// FindPendingByScope returns pending intents for the scope ordered
	// by creation time, oldest first
	FindPendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) ([]MergeIntent, error)

	// CountPendingByScope counts pending intents for the scope
	CountPendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) (int64, error)

	// Save creates or updates an intent
	Save(ctx context.Context, intent *MergeIntent) error

	// SaveBatch persists the intents staged for one decision
	SaveBatch(ctx context.Context, intents []*MergeIntent) error

	// DeleteByGroup deletes all intents for a group
	DeleteByGroup(ctx context.Context, groupID uuid.UUID) error

	// DeletePendingByScope deletes pending intents for the scope
	DeletePendingByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error

	// DeleteProcessedByScope deletes completed and failed intents for
	// the scope, preserving pending ones
	DeleteProcessedByScope(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}
