package dedup

import (
	"strings"

	"github.com/mergedesk/backend/internal/domain/contact"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// Condition is one attribute-set specification for duplicate detection:
// contacts whose values agree on every attribute of the tuple (none of
// them empty) are candidates for the same group.
type Condition struct {
	Attributes []string `json:"attributes"`
}

// EmailCondition is the mandatory exact-email condition, always applied
// first regardless of caller input.
func EmailCondition() Condition {
	return Condition{Attributes: []string{contact.AttrEmail}}
}

// IsEmailOnly reports whether the condition is the mandatory exact-email
// condition.
func (c Condition) IsEmailOnly() bool {
	return len(c.Attributes) == 1 && c.Attributes[0] == contact.AttrEmail
}

// Key computes the partition key for a contact under this condition.
// The second return value is false when any attribute value is empty,
// in which case the contact is ignored for this condition.
func (c Condition) Key(ct *contact.Contact) (string, bool) {
	parts := make([]string, 0, len(c.Attributes))
	for _, attr := range c.Attributes {
		v := strings.TrimSpace(strings.ToLower(ct.AttributeValue(attr)))
		if v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\x1f"), true
}

// Validate checks the condition specification
func (c Condition) Validate() error {
	if len(c.Attributes) == 0 {
		return shared.NewDomainError("INVALID_CONDITION", "Condition must name at least one attribute")
	}
	seen := make(map[string]struct{}, len(c.Attributes))
	for _, attr := range c.Attributes {
		if strings.TrimSpace(attr) == "" {
			return shared.NewDomainError("INVALID_CONDITION", "Condition attribute cannot be empty")
		}
		if len(attr) > 100 {
			return shared.NewDomainError("INVALID_CONDITION", "Condition attribute cannot exceed 100 characters")
		}
		if _, dup := seen[attr]; dup {
			return shared.NewDomainError("INVALID_CONDITION", "Condition attribute listed twice: "+attr)
		}
		seen[attr] = struct{}{}
	}
	return nil
}

// NormalizeConditions validates the caller-supplied conditions and
// prepends the mandatory email condition, dropping caller copies of it
// so it is never applied twice.
func NormalizeConditions(conditions []Condition) ([]Condition, error) {
	out := []Condition{EmailCondition()}
	for _, c := range conditions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.IsEmailOnly() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
