package dedup

import (
	"context"

	"github.com/google/uuid"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// QueryService serves the read side of the dedup workflow: group
// listings with hydrated members and per-member removal flags.
type QueryService struct {
	contacts contact.Repository
	groups   domain.GroupRepository
	marks    domain.RemovalMarkRepository
}

// NewQueryService creates a new query service
func NewQueryService(
	contacts contact.Repository,
	groups domain.GroupRepository,
	marks domain.RemovalMarkRepository,
) *QueryService {
	return &QueryService{
		contacts: contacts,
		groups:   groups,
		marks:    marks,
	}
}

// ListGroups returns the scope's groups with members hydrated from the
// contact store
func (s *QueryService) ListGroups(ctx context.Context, tenantID uuid.UUID, datasetKey string, includeMerged bool, filter shared.Filter) (*shared.Paginated[GroupResponse], error) {
	groups, err := s.groups.FindByScope(ctx, tenantID, datasetKey, includeMerged, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.groups.CountByScope(ctx, tenantID, datasetKey, includeMerged)
	if err != nil {
		return nil, err
	}

	marked, err := s.markedContacts(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}

	responses := make([]GroupResponse, 0, len(groups))
	for i := range groups {
		resp, err := s.hydrate(ctx, tenantID, &groups[i], marked)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	page := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &page, nil
}

// GetGroup returns one group with hydrated members
func (s *QueryService) GetGroup(ctx context.Context, tenantID, groupID uuid.UUID) (*GroupResponse, error) {
	group, err := s.groups.FindByIDForTenant(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	marked, err := s.markedContacts(ctx, tenantID, group.DatasetKey)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, tenantID, group, marked)
}

func (s *QueryService) markedContacts(ctx context.Context, tenantID uuid.UUID, datasetKey string) (map[uuid.UUID]struct{}, error) {
	marks, err := s.marks.FindByScope(ctx, tenantID, datasetKey)
	if err != nil {
		return nil, err
	}
	marked := make(map[uuid.UUID]struct{}, len(marks))
	for _, mark := range marks {
		marked[mark.ContactID] = struct{}{}
	}
	return marked, nil
}

func (s *QueryService) hydrate(ctx context.Context, tenantID uuid.UUID, group *domain.DuplicateGroup, marked map[uuid.UUID]struct{}) (*GroupResponse, error) {
	members := make([]GroupMemberResponse, 0, len(group.MemberIDs))
	if len(group.MemberIDs) > 0 {
		contacts, err := s.contacts.FindByIDs(ctx, tenantID, group.MemberIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*contact.Contact, len(contacts))
		for i := range contacts {
			byID[contacts[i].ID] = &contacts[i]
		}
		// Preserve group member order; skip ids the store no longer has.
		for _, id := range group.MemberIDs {
			ct, ok := byID[id]
			if !ok {
				continue
			}
			_, isMarked := marked[id]
			members = append(members, toMemberResponse(ct, isMarked))
		}
	}
	return &GroupResponse{
		ID:              group.ID,
		DatasetKey:      group.DatasetKey,
		Merged:          group.Merged,
		MergedAt:        group.MergedAt,
		PendingDecision: group.PendingDecision,
		MemberCount:     len(group.MemberIDs),
		Members:         members,
		CreatedAt:       group.CreatedAt,
	}, nil
}
