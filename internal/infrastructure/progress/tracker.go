// Package progress tracks the live status of a finish run. Snapshots
// are process-local and ephemeral: a restart forgets them, and the
// intent ledger remains the durable record.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase names the step a finish run is currently in
type Phase string

const (
	PhaseMerging   Phase = "merging"
	PhaseUpdating  Phase = "updating"
	PhaseDeleting  Phase = "deleting"
	PhaseFlagging  Phase = "flagging"
	PhaseCleanup   Phase = "cleanup"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Snapshot is the externally visible state of one finish run
type Snapshot struct {
	Phase       Phase     `json:"phase"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Failed      int       `json:"failed"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Running reports whether the run is still in flight
func (s Snapshot) Running() bool {
	return s.Phase != PhaseCompleted && s.Phase != PhaseFailed
}

// Tracker keeps one snapshot per (tenant, dataset) scope
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]Snapshot
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]Snapshot)}
}

func key(tenantID uuid.UUID, datasetKey string) string {
	return fmt.Sprintf("%s:%s", tenantID, datasetKey)
}

// Start records the beginning of a run
func (t *Tracker) Start(tenantID uuid.UUID, datasetKey string, total int) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[key(tenantID, datasetKey)] = Snapshot{
		Phase:     PhaseMerging,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Update advances the run to a phase and progress count
func (t *Tracker) Update(tenantID uuid.UUID, datasetKey string, phase Phase, done, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.runs[key(tenantID, datasetKey)]
	if !ok {
		return
	}
	snap.Phase = phase
	snap.Done = done
	snap.Failed = failed
	snap.UpdatedAt = time.Now()
	t.runs[key(tenantID, datasetKey)] = snap
}

// Complete marks the run finished
func (t *Tracker) Complete(tenantID uuid.UUID, datasetKey string) {
	t.finish(tenantID, datasetKey, PhaseCompleted, "")
}

// Fail marks the run failed with a reason
func (t *Tracker) Fail(tenantID uuid.UUID, datasetKey, message string) {
	t.finish(tenantID, datasetKey, PhaseFailed, message)
}

func (t *Tracker) finish(tenantID uuid.UUID, datasetKey string, phase Phase, message string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.runs[key(tenantID, datasetKey)]
	if !ok {
		snap = Snapshot{StartedAt: now}
	}
	snap.Phase = phase
	snap.Message = message
	snap.UpdatedAt = now
	snap.CompletedAt = now
	t.runs[key(tenantID, datasetKey)] = snap
}

// Get returns the snapshot for the scope, if one exists
func (t *Tracker) Get(tenantID uuid.UUID, datasetKey string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.runs[key(tenantID, datasetKey)]
	return snap, ok
}

// Clear drops the snapshot for the scope
func (t *Tracker) Clear(tenantID uuid.UUID, datasetKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, key(tenantID, datasetKey))
}
