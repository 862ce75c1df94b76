package dedup

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/mergedesk/backend/internal/domain/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
)

func TestStageMerge_WritesLedgerAndSideTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	c := f.seedContact(t, "102", "Ada", "ada@example.com", "", "")
	group := f.seedGroup(t, a, b, c)

	result, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, StageMergeRequest{
		SurvivorID:  a.ID,
		AbsorbedIDs: []uuid.UUID{b.ID, c.ID},
		Fields:      map[string]string{"first_name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.IntentsCreated)
	assert.Equal(t, 0, result.IntentsExisting)
	assert.Equal(t, 2, result.RemovalsMarked)

	intents, err := f.intents.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	for i, intent := range intents {
		assert.Equal(t, domain.IntentStatusPending, intent.Status)
		assert.Equal(t, a.ExternalID, intent.SurvivorExternalID)
		assert.Equal(t, i, intent.Seq)
	}
	// Staging order is preserved even though the batch shares a created_at.
	assert.Equal(t, b.ExternalID, intents[0].AbsorbedExternalID)
	assert.Equal(t, c.ExternalID, intents[1].AbsorbedExternalID)

	override, err := f.overrides.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ExternalID, override.SurvivorExternalID)
	assert.Equal(t, 3, override.OriginalMemberCount)
	assert.Equal(t, 2, override.RemovedCount)
	fields, err := override.FieldValues()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"first_name": "Ada"}, fields)

	marks, err := f.marks.FindByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	for _, mark := range marks {
		assert.False(t, mark.DetachedFromGroup)
	}

	// Staging records the decision without executing it: membership is
	// untouched and the group is still open.
	reloaded, err := f.groups.FindByIDForTenant(ctx, f.tenantID, group.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.MemberIDs, 3)
	assert.False(t, reloaded.Merged)
	assert.True(t, reloaded.PendingDecision)
	assert.Empty(t, f.crm.merges())
}

func TestStageMerge_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	group := f.seedGroup(t, a, b)

	req := StageMergeRequest{SurvivorID: a.ID, AbsorbedIDs: []uuid.UUID{b.ID}}

	first, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.IntentsCreated)

	second, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.IntentsCreated)
	assert.Equal(t, 1, second.IntentsExisting)

	intents, err := f.intents.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, intents, 1)
	marks, err := f.marks.FindByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func TestStageMerge_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	outsider := f.seedContact(t, "102", "Eve", "eve@example.com", "", "")
	group := f.seedGroup(t, a, b)

	cases := []struct {
		name string
		req  StageMergeRequest
		code string
	}{
		{"survivor outside group", StageMergeRequest{SurvivorID: outsider.ID, AbsorbedIDs: []uuid.UUID{b.ID}}, "INVALID_SURVIVOR"},
		{"absorbed outside group", StageMergeRequest{SurvivorID: a.ID, AbsorbedIDs: []uuid.UUID{outsider.ID}}, "INVALID_MEMBER"},
		{"self merge", StageMergeRequest{SurvivorID: a.ID, AbsorbedIDs: []uuid.UUID{a.ID}}, "INVALID_INTENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, tc.req)
			require.Error(t, err)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tc.code, domainErr.Code)
		})
	}
}

func TestStageMerge_MergedGroupRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	group := f.seedGroup(t, a, b)
	group.MarkMerged()
	require.NoError(t, f.groups.Save(ctx, group))

	_, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, StageMergeRequest{
		SurvivorID:  a.ID,
		AbsorbedIDs: []uuid.UUID{b.ID},
	})
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "GROUP_MERGED", domainErr.Code)
}

func TestResetGroup_RestoresPreStageState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	c := f.seedContact(t, "102", "Ada", "ada@example.com", "", "")
	group := f.seedGroup(t, a, b, c)

	_, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, StageMergeRequest{
		SurvivorID:  a.ID,
		AbsorbedIDs: []uuid.UUID{b.ID, c.ID},
		Fields:      map[string]string{"phone": "555"},
	})
	require.NoError(t, err)

	require.NoError(t, f.merge.ResetGroup(ctx, f.tenantID, group.ID))

	intents, err := f.intents.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, intents)
	_, err = f.overrides.FindByGroup(ctx, group.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	marks, err := f.marks.FindByScope(ctx, f.tenantID, testDataset)
	require.NoError(t, err)
	assert.Empty(t, marks)

	reloaded, err := f.groups.FindByIDForTenant(ctx, f.tenantID, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID, c.ID}, reloaded.MemberIDs)
	assert.False(t, reloaded.Merged)
	assert.False(t, reloaded.PendingDecision)
}

func TestResetGroup_RejectedAfterExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	group := f.seedGroup(t, a, b)

	_, err := f.merge.StageMerge(ctx, f.tenantID, group.ID, StageMergeRequest{
		SurvivorID:  a.ID,
		AbsorbedIDs: []uuid.UUID{b.ID},
	})
	require.NoError(t, err)

	intents, err := f.intents.FindByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.NoError(t, intents[0].Complete())
	require.NoError(t, f.intents.Save(ctx, &intents[0]))

	err = f.merge.ResetGroup(ctx, f.tenantID, group.ID)
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ALREADY_EXECUTED", domainErr.Code)
}

func TestResetAll_SkipsExecutedGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedContact(t, "100", "Ada", "ada@example.com", "", "")
	b := f.seedContact(t, "101", "Ada", "ada@example.com", "", "")
	c := f.seedContact(t, "102", "Carl", "carl@example.com", "", "")
	d := f.seedContact(t, "103", "Carl", "carl@example.com", "", "")
	pendingGroup := f.seedGroup(t, a, b)
	executedGroup := f.seedGroup(t, c, d)

	for _, g := range []struct {
		group    *domain.DuplicateGroup
		survivor uuid.UUID
		absorbed uuid.UUID
	}{
		{pendingGroup, a.ID, b.ID},
		{executedGroup, c.ID, d.ID},
	} {
		_, err := f.merge.StageMerge(ctx, f.tenantID, g.group.ID, StageMergeRequest{
			SurvivorID:  g.survivor,
			AbsorbedIDs: []uuid.UUID{g.absorbed},
		})
		require.NoError(t, err)
	}

	executed, err := f.intents.FindByGroup(ctx, executedGroup.ID)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	require.NoError(t, executed[0].Complete())
	require.NoError(t, f.intents.Save(ctx, &executed[0]))

	require.NoError(t, f.merge.ResetAll(ctx, f.tenantID, testDataset))

	pendingIntents, err := f.intents.FindByGroup(ctx, pendingGroup.ID)
	require.NoError(t, err)
	assert.Empty(t, pendingIntents)
	executedIntents, err := f.intents.FindByGroup(ctx, executedGroup.ID)
	require.NoError(t, err)
	assert.Len(t, executedIntents, 1)

	reloaded, err := f.groups.FindByIDForTenant(ctx, f.tenantID, pendingGroup.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.PendingDecision)
}
