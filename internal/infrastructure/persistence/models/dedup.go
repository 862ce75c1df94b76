package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mergedesk/backend/internal/domain/dedup"
)

// GroupModel is the persistence model for the DuplicateGroup aggregate.
// The member list is stored as a JSON array of contact ids; the domain
// type keeps it as a slice.
type GroupModel struct {
	DatasetAggregateModel
	Members         string `gorm:"type:jsonb;default:'[]'"`
	Merged          bool   `gorm:"not null;default:false;index"`
	MergedAt        *time.Time
	PendingDecision bool `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (GroupModel) TableName() string {
	return "duplicate_groups"
}

// ToDomain converts the persistence model to a domain DuplicateGroup
func (m *GroupModel) ToDomain() *dedup.DuplicateGroup {
	group := &dedup.DuplicateGroup{
		Merged:          m.Merged,
		MergedAt:        m.MergedAt,
		PendingDecision: m.PendingDecision,
	}
	m.PopulateDatasetAggregateRoot(&group.DatasetAggregateRoot)

	if m.Members != "" {
		var members []uuid.UUID
		if err := json.Unmarshal([]byte(m.Members), &members); err == nil {
			group.MemberIDs = members
		}
	}
	return group
}

// FromDomain populates the persistence model from a domain DuplicateGroup
func (m *GroupModel) FromDomain(g *dedup.DuplicateGroup) {
	m.FromDomainDatasetAggregateRoot(g.DatasetAggregateRoot)
	m.Merged = g.Merged
	m.MergedAt = g.MergedAt
	m.PendingDecision = g.PendingDecision

	if len(g.MemberIDs) == 0 {
		m.Members = "[]"
		return
	}
	if data, err := json.Marshal(g.MemberIDs); err == nil {
		m.Members = string(data)
	} else {
		m.Members = "[]"
	}
}

// GroupModelFromDomain creates a new persistence model from a domain group
func GroupModelFromDomain(g *dedup.DuplicateGroup) *GroupModel {
	m := &GroupModel{}
	m.FromDomain(g)
	return m
}
