package dedup

import (
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// DuplicateGroup is an ordered set of contact ids believed to be
// duplicates of one another. A merged group is terminal for detection
// purposes but is kept for audit; groups are never hard-deleted once
// any decision has touched them, only flagged or pruned in membership.
type DuplicateGroup struct {
	shared.DatasetAggregateRoot
	MemberIDs       []uuid.UUID `gorm:"-"`
	Merged          bool        `gorm:"not null;default:false;index"`
	MergedAt        *time.Time
	PendingDecision bool `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (DuplicateGroup) TableName() string {
	return "duplicate_groups"
}

// NewDuplicateGroup creates a new open group; a group below two members
// is never created.
func NewDuplicateGroup(tenantID uuid.UUID, datasetKey string, memberIDs []uuid.UUID) (*DuplicateGroup, error) {
	if len(memberIDs) < 2 {
		return nil, shared.NewDomainError("INVALID_GROUP_SIZE", "A duplicate group needs at least two members")
	}
	members := make([]uuid.UUID, len(memberIDs))
	copy(members, memberIDs)
	return &DuplicateGroup{
		DatasetAggregateRoot: shared.NewDatasetAggregateRoot(tenantID, datasetKey),
		MemberIDs:            members,
	}, nil
}

// Contains reports whether the contact id is a current member
func (g *DuplicateGroup) Contains(contactID uuid.UUID) bool {
	for _, id := range g.MemberIDs {
		if id == contactID {
			return true
		}
	}
	return false
}

// RemoveMember drops a contact from the member list. A group that
// shrinks below two members has no further duplicates to resolve and
// auto-transitions to merged; this is not an error.
func (g *DuplicateGroup) RemoveMember(contactID uuid.UUID) error {
	if g.Merged {
		return shared.NewDomainError("GROUP_MERGED", "Cannot edit membership of a merged group")
	}
	idx := -1
	for i, id := range g.MemberIDs {
		if id == contactID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.ErrNotFound
	}
	g.MemberIDs = append(g.MemberIDs[:idx], g.MemberIDs[idx+1:]...)
	if len(g.MemberIDs) < 2 {
		g.markMerged()
	}
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return nil
}

// RestoreMember re-inserts a contact into a still-open group. Undoing a
// removal is the only path that grows membership after detection.
func (g *DuplicateGroup) RestoreMember(contactID uuid.UUID) error {
	if g.Merged {
		return shared.NewDomainError("GROUP_MERGED", "Cannot edit membership of a merged group")
	}
	if g.Contains(contactID) {
		return nil
	}
	g.MemberIDs = append(g.MemberIDs, contactID)
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
	return nil
}

// MarkPendingDecision records that a merge decision has been staged for
// this group. The group stays open: the authoritative merge has not
// happened yet.
func (g *DuplicateGroup) MarkPendingDecision() {
	g.PendingDecision = true
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
}

// MarkMerged flips the group to its terminal merged state
func (g *DuplicateGroup) MarkMerged() {
	if g.Merged {
		return
	}
	g.markMerged()
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
}

func (g *DuplicateGroup) markMerged() {
	now := time.Now()
	g.Merged = true
	g.MergedAt = &now
}

// Reopen returns the group to the open, undecided state after a reset
func (g *DuplicateGroup) Reopen() {
	g.Merged = false
	g.MergedAt = nil
	g.PendingDecision = false
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
}

// PruneMembers clears the member list once the dataset's working copy
// has been consumed by a finish run; the flagged group row remains for
// audit.
func (g *DuplicateGroup) PruneMembers() {
	g.MemberIDs = nil
	g.UpdatedAt = time.Now()
	g.IncrementVersion()
}
