package contact

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mergedesk/backend/internal/domain/shared"
)

// Canonical attribute names usable in duplicate-detection conditions.
const (
	AttrFirstName = "first_name"
	AttrLastName  = "last_name"
	AttrEmail     = "email"
	AttrPhone     = "phone"
	AttrCompany   = "company"
)

// Contact mirrors one CRM record inside a tenant's imported dataset.
// It is keyed locally by UUID and remotely by ExternalID, which is the
// only identifier the CRM understands.
type Contact struct {
	shared.DatasetAggregateRoot
	ExternalID      string    `gorm:"type:varchar(100);not null;index"`
	FirstName       string    `gorm:"type:varchar(200)"`
	LastName        string    `gorm:"type:varchar(200)"`
	Email           string    `gorm:"type:varchar(200);index"`
	Phone           string    `gorm:"type:varchar(50)"`
	Company         string    `gorm:"type:varchar(200)"`
	Attributes      string    `gorm:"type:jsonb"` // Open map of additional CRM properties
	SourceUpdatedAt time.Time // Last-modified timestamp reported by the CRM
}

// TableName returns the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}

// NewContact creates a new contact mirrored from the CRM
func NewContact(tenantID uuid.UUID, datasetKey, externalID string) (*Contact, error) {
	if datasetKey == "" {
		return nil, shared.NewDomainError("INVALID_DATASET", "Dataset key cannot be empty")
	}
	if externalID == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot be empty")
	}
	return &Contact{
		DatasetAggregateRoot: shared.NewDatasetAggregateRoot(tenantID, datasetKey),
		ExternalID:           externalID,
		Attributes:           "{}",
	}, nil
}

// SetIdentity sets the contact's structured identity fields
func (c *Contact) SetIdentity(firstName, lastName, email, phone, company string) error {
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
	}
	c.FirstName = firstName
	c.LastName = lastName
	c.Email = strings.ToLower(email)
	c.Phone = phone
	c.Company = company
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return nil
}

// SetAttributes replaces the open attribute map with the given JSON object
func (c *Contact) SetAttributes(attributes string) error {
	if attributes == "" {
		attributes = "{}"
	}
	trimmed := strings.TrimSpace(attributes)
	if !json.Valid([]byte(trimmed)) || !strings.HasPrefix(trimmed, "{") {
		return shared.NewDomainError("INVALID_ATTRIBUTES", "Attributes must be a valid JSON object")
	}
	c.Attributes = trimmed
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return nil
}

// SetSourceUpdatedAt records the last-modified timestamp from the CRM
func (c *Contact) SetSourceUpdatedAt(t time.Time) {
	c.SourceUpdatedAt = t
}

// AttributeValue returns the contact's value for a condition attribute:
// the structured identity fields by canonical name, falling back to the
// open attribute map. Missing attributes yield the empty string.
func (c *Contact) AttributeValue(name string) string {
	switch name {
	case AttrFirstName:
		return c.FirstName
	case AttrLastName:
		return c.LastName
	case AttrEmail:
		return c.Email
	case AttrPhone:
		return c.Phone
	case AttrCompany:
		return c.Company
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal([]byte(c.Attributes), &attrs); err != nil {
		return ""
	}
	if v, ok := attrs[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ApplyFieldValues applies user-chosen field values to the contact,
// routing known identity fields to their columns and everything else
// into the open attribute map.
func (c *Contact) ApplyFieldValues(fields map[string]string) error {
	attrs := map[string]interface{}{}
	_ = json.Unmarshal([]byte(c.Attributes), &attrs)

	for name, value := range fields {
		switch name {
		case AttrFirstName:
			c.FirstName = value
		case AttrLastName:
			c.LastName = value
		case AttrEmail:
			if value != "" {
				if err := validateEmail(value); err != nil {
					return err
				}
			}
			c.Email = strings.ToLower(value)
		case AttrPhone:
			c.Phone = value
		case AttrCompany:
			c.Company = value
		default:
			attrs[name] = value
		}
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return shared.NewDomainError("INVALID_ATTRIBUTES", "Failed to encode attributes")
	}
	c.Attributes = string(data)
	c.UpdatedAt = time.Now()
	c.IncrementVersion()
	return nil
}

// FullName returns the contact's display name
func (c *Contact) FullName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Email
	}
	return name
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}
