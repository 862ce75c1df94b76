package dedup

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// FieldOverride captures the field values the user chose to keep for
// the surviving contact of a group, plus provenance counters. One row
// exists per (group, survivor).
type FieldOverride struct {
	shared.DatasetAggregateRoot
	GroupID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_override_group_survivor,priority:1"`
	SurvivorExternalID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_override_group_survivor,priority:2"`
	// ChainedExternalID holds the canonical id the CRM assigned while
	// merging the group, when it differs from the staged survivor id.
	// It survives the intent purge, so a re-entered run still knows
	// which record to push the override at.
	ChainedExternalID   string `gorm:"type:varchar(100)"`
	Fields              string `gorm:"type:jsonb"` // field name -> chosen value
	OriginalMemberCount int    `gorm:"not null;default:0"`
	RemovedCount        int    `gorm:"not null;default:0"`
	DecidedAt           time.Time
}

// TableName returns the table name for GORM
func (FieldOverride) TableName() string {
	return "field_overrides"
}

// NewFieldOverride creates the override row for a staged merge decision
func NewFieldOverride(tenantID uuid.UUID, datasetKey string, groupID uuid.UUID, survivorExternalID string, fields map[string]string, originalMemberCount, removedCount int) (*FieldOverride, error) {
	if survivorExternalID == "" {
		return nil, shared.NewDomainError("INVALID_OVERRIDE", "Survivor external ID is required")
	}
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_OVERRIDE", "Failed to encode field values")
	}
	return &FieldOverride{
		DatasetAggregateRoot: shared.NewDatasetAggregateRoot(tenantID, datasetKey),
		GroupID:              groupID,
		SurvivorExternalID:   survivorExternalID,
		Fields:               string(data),
		OriginalMemberCount:  originalMemberCount,
		RemovedCount:         removedCount,
		DecidedAt:            time.Now(),
	}, nil
}

// RetargetSurvivor records the id the CRM reports as canonical after a
// chained merge
func (o *FieldOverride) RetargetSurvivor(externalID string) {
	if externalID == "" || externalID == o.SurvivorExternalID {
		return
	}
	o.ChainedExternalID = externalID
}

// Target returns the CRM record the override applies to: the chained
// canonical id when the CRM renumbered the survivor, the staged
// survivor id otherwise
func (o *FieldOverride) Target() string {
	if o.ChainedExternalID != "" {
		return o.ChainedExternalID
	}
	return o.SurvivorExternalID
}

// FieldValues decodes the chosen field values
func (o *FieldOverride) FieldValues() (map[string]string, error) {
	if o.Fields == "" {
		return map[string]string{}, nil
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(o.Fields), &fields); err != nil {
		return nil, shared.NewDomainError("INVALID_OVERRIDE", "Stored field values are not valid JSON")
	}
	return fields, nil
}
