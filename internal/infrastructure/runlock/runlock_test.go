package runlock

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRunLock(t *testing.T) {
	lock := NewInMemoryRunLock()
	ctx := context.Background()
	tenantID := uuid.New()

	acquired, err := lock.TryAcquire(ctx, tenantID, "crm-2026")
	require.NoError(t, err)
	assert.True(t, acquired)

	t.Run("second acquire is rejected", func(t *testing.T) {
		acquired, err := lock.TryAcquire(ctx, tenantID, "crm-2026")
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("other scope is independent", func(t *testing.T) {
		acquired, err := lock.TryAcquire(ctx, tenantID, "crm-2025")
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("release frees the scope", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx, tenantID, "crm-2026"))
		acquired, err := lock.TryAcquire(ctx, tenantID, "crm-2026")
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}

func TestInMemoryRunLock_Concurrent(t *testing.T) {
	lock := NewInMemoryRunLock()
	ctx := context.Background()
	tenantID := uuid.New()

	var wg sync.WaitGroup
	winners := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := lock.TryAcquire(ctx, tenantID, "crm-2026")
			require.NoError(t, err)
			winners <- acquired
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for won := range winners {
		if won {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
