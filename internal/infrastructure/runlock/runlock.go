// Package runlock provides a single-flight lock per (tenant, dataset)
// scope. A finish run holds the lock for its whole background
// execution so a second trigger is rejected instead of queued.
package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock acquires and releases the per-scope execution lock
type RunLock interface {
	// TryAcquire attempts to take the lock; returns false if another
	// run already holds it
	TryAcquire(ctx context.Context, tenantID uuid.UUID, datasetKey string) (bool, error)

	// Release frees the lock for the scope
	Release(ctx context.Context, tenantID uuid.UUID, datasetKey string) error
}

func scopeKey(tenantID uuid.UUID, datasetKey string) string {
	return fmt.Sprintf("dedup:run:%s:%s", tenantID, datasetKey)
}

// InMemoryRunLock is a process-local lock for single-instance
// deployments and tests
type InMemoryRunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewInMemoryRunLock creates a new in-memory run lock
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{held: make(map[string]struct{})}
}

// TryAcquire attempts to take the lock
func (l *InMemoryRunLock) TryAcquire(_ context.Context, tenantID uuid.UUID, datasetKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := scopeKey(tenantID, datasetKey)
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

// Release frees the lock for the scope
func (l *InMemoryRunLock) Release(_ context.Context, tenantID uuid.UUID, datasetKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, scopeKey(tenantID, datasetKey))
	return nil
}

// RedisRunLock shares the lock across instances via SETNX. The TTL is a
// backstop against a crashed holder; the owner releases explicitly.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLock creates a Redis-backed run lock
func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRunLock{client: client, ttl: ttl}
}

// TryAcquire attempts to take the lock
func (l *RedisRunLock) TryAcquire(ctx context.Context, tenantID uuid.UUID, datasetKey string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, scopeKey(tenantID, datasetKey), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("runlock: failed to acquire: %w", err)
	}
	return acquired, nil
}

// Release frees the lock for the scope
func (l *RedisRunLock) Release(ctx context.Context, tenantID uuid.UUID, datasetKey string) error {
	if err := l.client.Del(ctx, scopeKey(tenantID, datasetKey)).Err(); err != nil {
		return fmt.Errorf("runlock: failed to release: %w", err)
	}
	return nil
}
