package dedup

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// MergeService stages and resets merge decisions. Staging writes the
// intent ledger and its side tables only; no CRM call happens until a
// finish run executes the ledger.
type MergeService struct {
	contacts  contact.Repository
	groups    domain.GroupRepository
	intents   domain.MergeIntentRepository
	overrides domain.FieldOverrideRepository
	marks     domain.RemovalMarkRepository
	logger    *zap.Logger
}

// NewMergeService creates a new merge service
func NewMergeService(
	contacts contact.Repository,
	groups domain.GroupRepository,
	intents domain.MergeIntentRepository,
	overrides domain.FieldOverrideRepository,
	marks domain.RemovalMarkRepository,
	logger *zap.Logger,
) *MergeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeService{
		contacts:  contacts,
		groups:    groups,
		intents:   intents,
		overrides: overrides,
		marks:     marks,
		logger:    logger,
	}
}

// StageMerge records one user decision for a group: an intent row per
// absorbed contact, one field-override row for the survivor, and a
// removal mark per absorbed contact. Re-staging the identical pair is
// idempotent. Membership is not shrunk here, which is what keeps the
// decision fully reversible until finish.
func (s *MergeService) StageMerge(ctx context.Context, tenantID, groupID uuid.UUID, req StageMergeRequest) (*StageMergeResult, error) {
	group, err := s.groups.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	if group.Merged {
		return nil, shared.NewDomainError("GROUP_MERGED", "Cannot stage a decision on a merged group")
	}
	if !group.Contains(req.SurvivorID) {
		return nil, shared.NewDomainError("INVALID_SURVIVOR", "Survivor must be a current member of the group")
	}
	for _, id := range req.AbsorbedIDs {
		if id == req.SurvivorID {
			return nil, shared.NewDomainError("INVALID_INTENT", "A contact cannot be merged into itself")
		}
		if !group.Contains(id) {
			return nil, shared.NewDomainError("INVALID_MEMBER", "Absorbed contacts must be current members of the group")
		}
	}

	externalIDs, err := s.resolveExternalIDs(ctx, tenantID, append([]uuid.UUID{req.SurvivorID}, req.AbsorbedIDs...))
	if err != nil {
		return nil, err
	}
	survivorExternal := externalIDs[req.SurvivorID]

	result := &StageMergeResult{}
	var staged []*domain.MergeIntent
	for _, absorbedID := range req.AbsorbedIDs {
		exists, err := s.intents.ExistsPair(ctx, groupID, survivorExternal, externalIDs[absorbedID])
		if err != nil {
			return nil, err
		}
		if exists {
			result.IntentsExisting++
			continue
		}
		intent, err := domain.NewMergeIntent(tenantID, group.DatasetKey, groupID, survivorExternal, externalIDs[absorbedID])
		if err != nil {
			return nil, err
		}
		intent.Seq = len(staged)
		staged = append(staged, intent)
	}
	if len(staged) > 0 {
		if err := s.intents.SaveBatch(ctx, staged); err != nil {
			return nil, err
		}
		result.IntentsCreated = len(staged)
	}

	// Re-staging replaces the survivor's chosen field values wholesale.
	if err := s.overrides.DeleteByGroup(ctx, groupID); err != nil {
		s.logger.Warn("stale override cleanup failed", zap.String("group_id", groupID.String()), zap.Error(err))
	}
	override, err := domain.NewFieldOverride(tenantID, group.DatasetKey, groupID, survivorExternal,
		req.Fields, len(group.MemberIDs), len(req.AbsorbedIDs))
	if err != nil {
		return nil, err
	}
	if err := s.overrides.Save(ctx, override); err != nil {
		return nil, err
	}

	for _, absorbedID := range req.AbsorbedIDs {
		existing, err := s.marks.FindByContact(ctx, absorbedID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		if existing != nil {
			continue
		}
		mark, err := domain.NewRemovalMark(tenantID, group.DatasetKey, groupID, absorbedID, externalIDs[absorbedID], false)
		if err != nil {
			return nil, err
		}
		if err := s.marks.Save(ctx, mark); err != nil {
			return nil, err
		}
		result.RemovalsMarked++
	}

	group.MarkPendingDecision()
	if err := s.groups.Save(ctx, group); err != nil {
		return nil, err
	}

	s.logger.Info("merge decision staged",
		zap.String("tenant_id", tenantID.String()),
		zap.String("group_id", groupID.String()),
		zap.Int("intents_created", result.IntentsCreated),
		zap.Int("intents_existing", result.IntentsExisting))
	return result, nil
}

// ResetGroup discards the staged decision for one group and returns it
// to the open, undecided state. Only pending intents can be reset this
// way; once the finish executor has processed an intent the decision
// can no longer be unstaged.
func (s *MergeService) ResetGroup(ctx context.Context, tenantID, groupID uuid.UUID) error {
	group, err := s.groups.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		return err
	}
	intents, err := s.intents.FindByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, intent := range intents {
		if intent.Status.IsProcessed() {
			return shared.NewDomainError("ALREADY_EXECUTED",
				"Group has executed intents; the merge has already happened in the CRM")
		}
	}
	return s.resetOne(ctx, group, intents)
}

// ResetAll discards every staged-but-unexecuted decision in the scope
func (s *MergeService) ResetAll(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	groups, err := s.groups.FindOpenByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return err
	}
	reset := 0
	for i := range groups {
		group := &groups[i]
		if !group.PendingDecision {
			continue
		}
		intents, err := s.intents.FindByGroup(ctx, group.ID)
		if err != nil {
			return err
		}
		processed := false
		for _, intent := range intents {
			if intent.Status.IsProcessed() {
				processed = true
				break
			}
		}
		if processed {
			continue
		}
		if err := s.resetOne(ctx, group, intents); err != nil {
			return err
		}
		reset++
	}
	s.logger.Info("staged decisions reset",
		zap.String("tenant_id", tenantID.String()),
		zap.String("dataset", datasetKey),
		zap.Int("groups", reset))
	return nil
}

func (s *MergeService) resetOne(ctx context.Context, group *domain.DuplicateGroup, intents []domain.MergeIntent) error {
	if len(intents) > 0 {
		if err := s.intents.DeleteByGroup(ctx, group.ID); err != nil {
			return err
		}
	}
	if err := s.overrides.DeleteByGroup(ctx, group.ID); err != nil {
		return err
	}

	// Staging never shrank the membership, so reopening plus restoring
	// any detached members puts the group back exactly as detection
	// left it.
	marks, err := s.marks.FindByScope(ctx, group.TenantID, group.DatasetKey)
	if err != nil {
		return err
	}
	group.Reopen()
	for _, mark := range marks {
		if mark.GroupID != group.ID {
			continue
		}
		if mark.DetachedFromGroup {
			if err := group.RestoreMember(mark.ContactID); err != nil {
				return err
			}
		}
		if err := s.marks.Delete(ctx, mark.ID); err != nil {
			return err
		}
	}
	return s.groups.Save(ctx, group)
}

func (s *MergeService) resolveExternalIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	contacts, err := s.contacts.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]string, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c.ExternalID
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, shared.NewDomainError("CONTACT_NOT_FOUND", "Contact not found in the local store: "+id.String())
		}
	}
	return byID, nil
}
