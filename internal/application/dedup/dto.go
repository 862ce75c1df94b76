package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/mergedesk/backend/internal/domain/contact"
	domain "github.com/mergedesk/backend/internal/domain/dedup"
)

// =============================================================================
// Detection DTOs
// =============================================================================

// ConditionSpec is one caller-supplied attribute combination for detection
type ConditionSpec struct {
	Attributes []string `json:"attributes" binding:"required,min=1,dive,min=1,max=100"`
}

// DetectRequest represents a request to start duplicate detection
type DetectRequest struct {
	DatasetKey string          `json:"dataset_key" binding:"required,min=1,max=100"`
	Conditions []ConditionSpec `json:"conditions"`
}

// DetectResult summarizes one completed detection run
type DetectResult struct {
	GroupsCreated     int `json:"groups_created"`
	ContactsGrouped   int `json:"contacts_grouped"`
	ConditionsApplied int `json:"conditions_applied"`
}

// =============================================================================
// Merge DTOs
// =============================================================================

// StageMergeRequest represents one user merge decision for a group
type StageMergeRequest struct {
	SurvivorID  uuid.UUID         `json:"survivor_id" binding:"required"`
	AbsorbedIDs []uuid.UUID       `json:"absorbed_ids" binding:"required,min=1"`
	Fields      map[string]string `json:"fields"`
}

// StageMergeResult reports how the staged decision landed in the ledger
type StageMergeResult struct {
	IntentsCreated  int `json:"intents_created"`
	IntentsExisting int `json:"intents_existing"`
	RemovalsMarked  int `json:"removals_marked"`
}

// MarkRemovalResult returns the id needed to undo a removal mark
type MarkRemovalResult struct {
	RemovalID uuid.UUID `json:"removal_id"`
}

// FinishResult acknowledges that a finish run has started
type FinishResult struct {
	Message string `json:"message"`
}

// =============================================================================
// Group read DTOs
// =============================================================================

// GroupMemberResponse is one hydrated member of a duplicate group
type GroupMemberResponse struct {
	ID               uuid.UUID `json:"id"`
	ExternalID       string    `json:"external_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Company          string    `json:"company"`
	MarkedForRemoval bool      `json:"marked_for_removal"`
}

// GroupResponse is one duplicate group with hydrated members
type GroupResponse struct {
	ID              uuid.UUID             `json:"id"`
	DatasetKey      string                `json:"dataset_key"`
	Merged          bool                  `json:"merged"`
	MergedAt        *time.Time            `json:"merged_at,omitempty"`
	PendingDecision bool                  `json:"pending_decision"`
	MemberCount     int                   `json:"member_count"`
	Members         []GroupMemberResponse `json:"members"`
	CreatedAt       time.Time             `json:"created_at"`
}

func toMemberResponse(ct *contact.Contact, marked bool) GroupMemberResponse {
	return GroupMemberResponse{
		ID:               ct.ID,
		ExternalID:       ct.ExternalID,
		FullName:         ct.FullName(),
		Email:            ct.Email,
		Phone:            ct.Phone,
		Company:          ct.Company,
		MarkedForRemoval: marked,
	}
}

func toConditions(specs []ConditionSpec) []domain.Condition {
	conditions := make([]domain.Condition, 0, len(specs))
	for _, spec := range specs {
		conditions = append(conditions, domain.Condition{Attributes: spec.Attributes})
	}
	return conditions
}
