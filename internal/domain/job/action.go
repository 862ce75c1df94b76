package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// ActionType represents the kind of background work an action tracks
type ActionType string

const (
	ActionTypeImport ActionType = "import"
	ActionTypeDetect ActionType = "detect"
	ActionTypeFinish ActionType = "finish"
)

// IsValid checks if the action type is valid
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTypeImport, ActionTypeDetect, ActionTypeFinish:
		return true
	}
	return false
}

// ActionStatus represents the status of a background action
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// IsValid checks if the status is valid
func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionStatusPending, ActionStatusRunning, ActionStatusCompleted, ActionStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed
}

// MaxRetries caps how often the sweep re-dispatches a failed action.
const MaxRetries = 3

// Action tracks one background run against a dataset: a CRM import or a
// finish execution. Only one action per scope may be in flight at a
// time, which is how import and finish are kept from racing each other.
type Action struct {
	shared.TenantAggregateRoot
	DatasetKey   string     `gorm:"type:varchar(100);not null;index"`
	Type         ActionType `gorm:"type:varchar(20);not null"`
	Status       ActionStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	Error        string     `gorm:"type:text"`
	TotalFetched int        `gorm:"not null;default:0"`
	RetryCount   int        `gorm:"not null;default:0"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// TableName returns the table name for GORM
func (Action) TableName() string {
	return "actions"
}

// NewAction creates a pending action for a dataset scope
func NewAction(tenantID uuid.UUID, datasetKey string, actionType ActionType) (*Action, error) {
	if datasetKey == "" {
		return nil, shared.NewDomainError("INVALID_DATASET", "Dataset key cannot be empty")
	}
	if !actionType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ACTION_TYPE", fmt.Sprintf("Invalid action type: %s", actionType))
	}
	return &Action{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DatasetKey:          datasetKey,
		Type:                actionType,
		Status:              ActionStatusPending,
	}, nil
}

// Start marks the action as running
func (a *Action) Start() error {
	if a.Status != ActionStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start from state: %s", a.Status))
	}
	a.Status = ActionStatusRunning
	now := time.Now()
	a.StartedAt = &now
	a.UpdatedAt = now
	a.IncrementVersion()
	return nil
}

// Complete marks the action as finished successfully
func (a *Action) Complete(totalFetched int) error {
	if a.Status != ActionStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete from state: %s", a.Status))
	}
	a.Status = ActionStatusCompleted
	a.TotalFetched = totalFetched
	now := time.Now()
	a.CompletedAt = &now
	a.UpdatedAt = now
	a.IncrementVersion()
	return nil
}

// Fail records the failure reason; the sweep may retry the action later
func (a *Action) Fail(reason string) error {
	if a.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail from terminal state: %s", a.Status))
	}
	a.Status = ActionStatusFailed
	a.Error = reason
	now := time.Now()
	a.CompletedAt = &now
	a.UpdatedAt = now
	a.IncrementVersion()
	return nil
}

// Retry returns a failed action to pending for another attempt. Actions
// that have exhausted their retry budget stay failed.
func (a *Action) Retry() error {
	if a.Status != ActionStatusFailed {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot retry from state: %s", a.Status))
	}
	if a.RetryCount >= MaxRetries {
		return shared.NewDomainError("RETRIES_EXHAUSTED", "Action has exhausted its retry budget")
	}
	a.Status = ActionStatusPending
	a.Error = ""
	a.RetryCount++
	a.StartedAt = nil
	a.CompletedAt = nil
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return nil
}

// CanRetry reports whether the sweep may re-dispatch this action
func (a *Action) CanRetry() bool {
	return a.Status == ActionStatusFailed && a.RetryCount < MaxRetries
}

// IsInFlight reports whether the action still occupies its scope
func (a *Action) IsInFlight() bool {
	return a.Status == ActionStatusPending || a.Status == ActionStatusRunning
}

// Duration returns how long the action ran
func (a *Action) Duration() time.Duration {
	if a.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	return end.Sub(*a.StartedAt)
}
