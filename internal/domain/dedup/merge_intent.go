package dedup

import (
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// IntentStatus represents the execution status of a merge intent
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusCompleted IntentStatus = "completed"
	IntentStatusFailed    IntentStatus = "failed"
)

// IsValid checks if the status is valid
func (s IntentStatus) IsValid() bool {
	switch s {
	case IntentStatusPending, IntentStatusCompleted, IntentStatusFailed:
		return true
	}
	return false
}

// IsProcessed returns true once the finish executor has attempted the pair
func (s IntentStatus) IsProcessed() bool {
	return s == IntentStatusCompleted || s == IntentStatusFailed
}

// MergeIntent records one user-authored "fold this contact into that
// one" decision as a (survivor, absorbed) pair. A batch merge of N
// absorbed contacts produces N rows so partial failure is trackable per
// pair. At most one row exists per (group, survivor, absorbed) tuple.
type MergeIntent struct {
	shared.DatasetAggregateRoot
	GroupID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_intent_pair,priority:1"`
	SurvivorExternalID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_intent_pair,priority:2"`
	AbsorbedExternalID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_intent_pair,priority:3"`
	// Seq is the staging position within the decision that created the
	// intent. Intents saved in one batch share a created_at, so created_at
	// alone cannot order them.
	Seq         int          `gorm:"not null;default:0"`
	Status      IntentStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	CompletedAt *time.Time
}

// TableName returns the table name for GORM
func (MergeIntent) TableName() string {
	return "merge_intents"
}

// NewMergeIntent creates a pending merge intent for one pair
func NewMergeIntent(tenantID uuid.UUID, datasetKey string, groupID uuid.UUID, survivorExternalID, absorbedExternalID string) (*MergeIntent, error) {
	if survivorExternalID == "" || absorbedExternalID == "" {
		return nil, shared.NewDomainError("INVALID_INTENT", "Survivor and absorbed external IDs are required")
	}
	if survivorExternalID == absorbedExternalID {
		return nil, shared.NewDomainError("INVALID_INTENT", "A contact cannot be merged into itself")
	}
	return &MergeIntent{
		DatasetAggregateRoot: shared.NewDatasetAggregateRoot(tenantID, datasetKey),
		GroupID:              groupID,
		SurvivorExternalID:   survivorExternalID,
		AbsorbedExternalID:   absorbedExternalID,
		Status:               IntentStatusPending,
	}, nil
}

// Complete marks the intent as executed against the CRM
func (i *MergeIntent) Complete() error {
	if i.Status != IntentStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only a pending intent can be completed")
	}
	now := time.Now()
	i.Status = IntentStatusCompleted
	i.CompletedAt = &now
	i.UpdatedAt = now
	i.IncrementVersion()
	return nil
}

// Fail marks the intent as attempted and failed; the failure of one
// pair never aborts the batch.
func (i *MergeIntent) Fail() error {
	if i.Status != IntentStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only a pending intent can be failed")
	}
	i.Status = IntentStatusFailed
	i.UpdatedAt = time.Now()
	i.IncrementVersion()
	return nil
}
