package dedup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMergeIntent(t *testing.T) {
	t.Run("valid intent", func(t *testing.T) {
		intent, err := NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "ext-1", "ext-2")
		require.NoError(t, err)
		assert.Equal(t, IntentStatusPending, intent.Status)
		assert.Nil(t, intent.CompletedAt)
	})

	t.Run("missing external IDs", func(t *testing.T) {
		_, err := NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "", "ext-2")
		assert.Error(t, err)
		_, err = NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "ext-1", "")
		assert.Error(t, err)
	})

	t.Run("self merge rejected", func(t *testing.T) {
		_, err := NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "ext-1", "ext-1")
		assert.Error(t, err)
	})
}

func TestMergeIntent_Transitions(t *testing.T) {
	t.Run("complete from pending", func(t *testing.T) {
		intent, _ := NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "ext-1", "ext-2")
		require.NoError(t, intent.Complete())
		assert.Equal(t, IntentStatusCompleted, intent.Status)
		assert.NotNil(t, intent.CompletedAt)
		assert.Error(t, intent.Complete())
		assert.Error(t, intent.Fail())
	})

	t.Run("fail from pending", func(t *testing.T) {
		intent, _ := NewMergeIntent(uuid.New(), "crm-2026", uuid.New(), "ext-1", "ext-2")
		require.NoError(t, intent.Fail())
		assert.Equal(t, IntentStatusFailed, intent.Status)
		assert.Error(t, intent.Complete())
	})
}

func TestIntentStatus(t *testing.T) {
	assert.True(t, IntentStatusPending.IsValid())
	assert.False(t, IntentStatus("unknown").IsValid())
	assert.False(t, IntentStatusPending.IsProcessed())
	assert.True(t, IntentStatusCompleted.IsProcessed())
	assert.True(t, IntentStatusFailed.IsProcessed())
}

func TestNewFieldOverride(t *testing.T) {
	override, err := NewFieldOverride(uuid.New(), "crm-2026", uuid.New(), "ext-1",
		map[string]string{"email": "kept@example.com"}, 4, 1)
	require.NoError(t, err)

	fields, err := override.FieldValues()
	require.NoError(t, err)
	assert.Equal(t, "kept@example.com", fields["email"])
	assert.Equal(t, 4, override.OriginalMemberCount)
	assert.Equal(t, 1, override.RemovedCount)

	t.Run("nil fields become an empty map", func(t *testing.T) {
		o, err := NewFieldOverride(uuid.New(), "crm-2026", uuid.New(), "ext-1", nil, 2, 0)
		require.NoError(t, err)
		fields, err := o.FieldValues()
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("survivor required", func(t *testing.T) {
		_, err := NewFieldOverride(uuid.New(), "crm-2026", uuid.New(), "", nil, 2, 0)
		assert.Error(t, err)
	})
}

func TestNewRemovalMark(t *testing.T) {
	mark, err := NewRemovalMark(uuid.New(), "crm-2026", uuid.New(), uuid.New(), "ext-9", true)
	require.NoError(t, err)
	assert.True(t, mark.DetachedFromGroup)
	assert.Equal(t, "ext-9", mark.ContactExternalID)

	_, err = NewRemovalMark(uuid.New(), "crm-2026", uuid.New(), uuid.New(), "", false)
	assert.Error(t, err)
}
