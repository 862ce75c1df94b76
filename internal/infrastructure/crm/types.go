package crm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors surfaced by the CRM client
var (
	ErrCRMNotConfigured   = errors.New("crm: no API key configured for tenant")
	ErrCRMUnavailable     = errors.New("crm: service unavailable")
	ErrCRMRequestFailed   = errors.New("crm: request failed")
	ErrCRMInvalidResponse = errors.New("crm: invalid response")
	ErrContactNotFound    = errors.New("crm: contact not found")
)

// RemoteError carries the CRM's error payload for a failed request
type RemoteError struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("crm: HTTP %d %s: %s", e.StatusCode, e.Category, e.Message)
}

// IsRetryable reports whether the request may succeed on a later attempt
func (e *RemoteError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsUnknownProperty reports whether the CRM rejected a property name it
// does not know; the caller can create the property and retry.
func (e *RemoteError) IsUnknownProperty() bool {
	return e.Category == "VALIDATION_ERROR" &&
		strings.Contains(e.Message, "PROPERTY_DOESNT_EXIST")
}

// RemoteContact is one contact record as the CRM returns it
type RemoteContact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// ContactPage is one page of the CRM's contact listing
type ContactPage struct {
	Contacts []RemoteContact
	After    string // paging cursor, empty on the last page
}

type listResponse struct {
	Results []RemoteContact `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging,omitempty"`
}

type errorResponse struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

type mergeRequest struct {
	PrimaryObjectID string `json:"primaryObjectId"`
	ObjectIDToMerge string `json:"objectIdToMerge"`
}

type updateRequest struct {
	Properties map[string]string `json:"properties"`
}

type propertyDefinition struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	FieldType string `json:"fieldType"`
	GroupName string `json:"groupName"`
}
