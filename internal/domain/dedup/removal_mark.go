package dedup

import (
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// RemovalMark slates one contact for deletion from the CRM as part of a
// group's resolution. Marks created by staging a merge keep the contact
// in the group (the whole decision is reversible as a unit); marks
// created by the standalone "mark for removal" action detach the
// contact from the group, and undoing such a mark re-inserts it if the
// group is still open.
type RemovalMark struct {
	shared.DatasetAggregateRoot
	GroupID           uuid.UUID `gorm:"type:uuid;not null;index"`
	ContactID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_removal_contact"`
	ContactExternalID string    `gorm:"type:varchar(100);not null"`
	DetachedFromGroup bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (RemovalMark) TableName() string {
	return "removal_marks"
}

// NewRemovalMark creates a removal mark for one contact
func NewRemovalMark(tenantID uuid.UUID, datasetKey string, groupID, contactID uuid.UUID, contactExternalID string, detached bool) (*RemovalMark, error) {
	if contactExternalID == "" {
		return nil, shared.NewDomainError("INVALID_REMOVAL", "Contact external ID is required")
	}
	return &RemovalMark{
		DatasetAggregateRoot: shared.NewDatasetAggregateRoot(tenantID, datasetKey),
		GroupID:              groupID,
		ContactID:            contactID,
		ContactExternalID:    contactExternalID,
		DetachedFromGroup:    detached,
	}, nil
}

// Touch updates bookkeeping timestamps after a mutation
func (m *RemovalMark) Touch() {
	m.UpdatedAt = time.Now()
	m.IncrementVersion()
}
