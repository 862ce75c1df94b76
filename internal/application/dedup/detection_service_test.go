package dedup

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/domain/shared"
)

func phoneCondition() domain.Condition {
	return domain.Condition{Attributes: []string{contact.AttrPhone}}
}

func memberSets(groups []domain.DuplicateGroup) [][]string {
	sets := make([][]string, 0, len(groups))
	for _, g := range groups {
		set := make([]string, 0, len(g.MemberIDs))
		for _, id := range g.MemberIDs {
			set = append(set, id.String())
		}
		sort.Strings(set)
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i][0] < sets[j][0] })
	return sets
}

func TestDetect_EmailAndConditionGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "1", "Ada", "ada@example.com", "111", "")
	b := f.seedContact(t, "2", "Ada", "ada@example.com", "222", "")
	c := f.seedContact(t, "3", "Carl", "carl@example.com", "333", "")
	d := f.seedContact(t, "4", "Carla", "carla@example.com", "333", "")
	f.seedContact(t, "5", "Eve", "eve@example.com", "555", "")

	result, err := f.detection.Detect(ctx, f.tenantID, testDataset, []domain.Condition{phoneCondition()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.GroupsCreated)
	assert.Equal(t, 4, result.ContactsGrouped)
	assert.Equal(t, 2, result.ConditionsApplied)

	groups, err := f.groups.FindOpenByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	seen := make(map[uuid.UUID]int)
	for _, g := range groups {
		assert.GreaterOrEqual(t, len(g.MemberIDs), 2)
		for _, id := range g.MemberIDs {
			seen[id]++
		}
	}
	// Groups are disjoint: no contact appears twice.
	for id, count := range seen {
		assert.Equal(t, 1, count, "contact %s grouped twice", id)
	}
	assert.Contains(t, seen, a.ID)
	assert.Contains(t, seen, b.ID)
	assert.Contains(t, seen, c.ID)
	assert.Contains(t, seen, d.ID)
}

func TestDetect_EmailClaimsBeforeLaterConditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a and b duplicate by email and share a phone with c. Email claims
	// a and b first; c is the lone unclaimed contact of the phone
	// partition and gets pulled into their group.
	a := f.seedContact(t, "1", "Ada", "ada@example.com", "111", "")
	b := f.seedContact(t, "2", "Ada", "ada@example.com", "111", "")
	c := f.seedContact(t, "3", "Carl", "carl@example.com", "111", "")

	result, err := f.detection.Detect(ctx, f.tenantID, testDataset, []domain.Condition{phoneCondition()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsCreated)
	assert.Equal(t, 3, result.ContactsGrouped)

	groups, err := f.groups.FindOpenByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID, c.ID}, groups[0].MemberIDs)
}

func TestDetect_SingletonPartitionsAreDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No two contacts agree on any attribute, so nothing groups; a
	// partition of one is not a duplicate set.
	f.seedContact(t, "1", "Ada", "ada@example.com", "111", "")
	f.seedContact(t, "2", "Bob", "bob@example.com", "222", "")

	result, err := f.detection.Detect(ctx, f.tenantID, testDataset, []domain.Condition{phoneCondition()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.GroupsCreated)
	assert.Equal(t, 0, result.ContactsGrouped)
}

func TestDetect_EmptyAttributeDisqualifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two contacts with no phone must not partition together on the
	// empty value.
	f.seedContact(t, "1", "Ada", "ada@example.com", "", "")
	f.seedContact(t, "2", "Bob", "bob@example.com", "", "")

	result, err := f.detection.Detect(ctx, f.tenantID, testDataset, []domain.Condition{phoneCondition()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.GroupsCreated)
}

func TestDetect_IsDeterministicAcrossReruns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedContact(t, "1", "Ada", "ada@example.com", "111", "Initech")
	f.seedContact(t, "2", "Ada", "ada@example.com", "222", "Initech")
	f.seedContact(t, "3", "Carl", "carl@example.com", "333", "Initech")
	f.seedContact(t, "4", "Carla", "carla@example.com", "333", "Globex")
	f.seedContact(t, "5", "Dana", "dana@example.com", "444", "Globex")

	conditions := []domain.Condition{
		phoneCondition(),
		{Attributes: []string{contact.AttrCompany}},
	}

	first, err := f.detection.Detect(ctx, f.tenantID, testDataset, conditions)
	require.NoError(t, err)
	firstGroups, err := f.groups.FindOpenByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)

	second, err := f.detection.Detect(ctx, f.tenantID, testDataset, conditions)
	require.NoError(t, err)
	secondGroups, err := f.groups.FindOpenByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, memberSets(firstGroups), memberSets(secondGroups))
	// The re-run replaced the prior open groups instead of stacking.
	assert.Len(t, secondGroups, first.GroupsCreated)
}

func TestDetect_DetachedContactsAreExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "1", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "2", "Ada", "ada@example.com", "", "")
	c := f.seedContact(t, "3", "Ada", "ada@example.com", "", "")

	mark, err := domain.NewRemovalMark(f.tenantID, testDataset, uuid.New(), c.ID, c.ExternalID, true)
	require.NoError(t, err)
	require.NoError(t, f.marks.Save(ctx, mark))

	_, err = f.detection.Detect(ctx, f.tenantID, testDataset, nil)
	require.NoError(t, err)

	groups, err := f.groups.FindOpenByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, groups[0].MemberIDs)
}

func TestDetect_InvalidConditionRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.detection.Detect(context.Background(), f.tenantID, testDataset,
		[]domain.Condition{{Attributes: []string{""}}})
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_CONDITION", domainErr.Code)
}

func TestStartDetection_RejectsWhenActionInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	running, err := job.NewAction(f.tenantID, testDataset, job.ActionTypeImport)
	require.NoError(t, err)
	require.NoError(t, running.Start())
	require.NoError(t, f.actions.Save(ctx, running))

	_, err = f.detection.StartDetection(ctx, f.tenantID, DetectRequest{DatasetKey: testDataset})
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ACTION_IN_FLIGHT", domainErr.Code)
}
