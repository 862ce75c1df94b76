package dedup

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// RemovalService handles standalone "mark this contact for removal"
// actions. Unlike staging a merge, marking detaches the contact from
// its group immediately; the CRM deletion itself waits for finish.
type RemovalService struct {
	contacts contact.Repository
	groups   domain.GroupRepository
	marks    domain.RemovalMarkRepository
	logger   *zap.Logger
}

// NewRemovalService creates a new removal service
func NewRemovalService(
	contacts contact.Repository,
	groups domain.GroupRepository,
	marks domain.RemovalMarkRepository,
	logger *zap.Logger,
) *RemovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemovalService{
		contacts: contacts,
		groups:   groups,
		marks:    marks,
		logger:   logger,
	}
}

// Mark slates one group member for CRM deletion and detaches it from
// the group. A contact can carry at most one mark. A group that shrinks
// below two members auto-transitions to merged.
func (s *RemovalService) Mark(ctx context.Context, tenantID, groupID, contactID uuid.UUID) (*MarkRemovalResult, error) {
	group, err := s.groups.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	if !group.Contains(contactID) {
		return nil, shared.NewDomainError("INVALID_MEMBER", "Contact is not a member of the group")
	}

	if existing, err := s.marks.FindByContact(ctx, contactID); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_MARKED", "Contact is already marked for removal")
	} else if err != nil && !isNotFound(err) {
		return nil, err
	}

	ct, err := s.contacts.FindByIDForTenant(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	mark, err := domain.NewRemovalMark(tenantID, group.DatasetKey, groupID, contactID, ct.ExternalID, true)
	if err != nil {
		return nil, err
	}

	if err := group.RemoveMember(contactID); err != nil {
		return nil, err
	}
	if err := s.groups.Save(ctx, group); err != nil {
		return nil, err
	}
	if err := s.marks.Save(ctx, mark); err != nil {
		return nil, err
	}

	s.logger.Info("contact marked for removal",
		zap.String("tenant_id", tenantID.String()),
		zap.String("group_id", groupID.String()),
		zap.String("contact_id", contactID.String()),
		zap.Bool("group_auto_merged", group.Merged))
	return &MarkRemovalResult{RemovalID: mark.ID}, nil
}

// Undo deletes a removal mark. If the mark had detached the contact and
// the group is still open, the contact is re-inserted; this is the only
// path that grows a group's membership after detection.
func (s *RemovalService) Undo(ctx context.Context, tenantID, removalID uuid.UUID) error {
	mark, err := s.marks.FindByIDForTenant(ctx, tenantID, removalID)
	if err != nil {
		return err
	}

	if mark.DetachedFromGroup {
		group, err := s.groups.FindByIDForTenant(ctx, tenantID, mark.GroupID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if group != nil && !group.Merged {
			if err := group.RestoreMember(mark.ContactID); err != nil {
				return err
			}
			if err := s.groups.Save(ctx, group); err != nil {
				return err
			}
		}
	}

	if err := s.marks.Delete(ctx, mark.ID); err != nil {
		return err
	}

	s.logger.Info("removal mark undone",
		zap.String("tenant_id", tenantID.String()),
		zap.String("removal_id", removalID.String()),
		zap.String("contact_id", mark.ContactID.String()))
	return nil
}
