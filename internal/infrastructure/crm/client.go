package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mergedesk/backend/internal/infrastructure/config"
)

// maxResponseSize is the maximum allowed response size from the CRM API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client talks to the upstream CRM's contact API. Requests are rate
// limited and retried with exponential backoff; only 429 and 5xx
// responses are retried, other client errors are permanent.
type Client struct {
	cfg        config.CRMConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	// tenantKeys stores per-tenant API keys
	// In production, this would be loaded from database
	tenantKeys map[uuid.UUID]string
	mu         sync.RWMutex
}

// NewClient creates a new CRM client
func NewClient(cfg config.CRMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger:     logger,
		tenantKeys: make(map[uuid.UUID]string),
	}
}

// SetTenantKey sets the API key for a specific tenant
func (c *Client) SetTenantKey(tenantID uuid.UUID, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenantKeys[tenantID] = apiKey
}

func (c *Client) tenantKey(tenantID uuid.UUID) (string, error) {
	c.mu.RLock()
	key, ok := c.tenantKeys[tenantID]
	c.mu.RUnlock()
	if !ok || key == "" {
		return "", ErrCRMNotConfigured
	}
	return key, nil
}

// ListContacts fetches one page of contacts carrying the requested
// property values. Pass the cursor from the previous page's result, or
// empty for the first page. Without an explicit property set the CRM
// falls back to its own default fields.
func (c *Client) ListContacts(ctx context.Context, tenantID uuid.UUID, after string, properties []string) (*ContactPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.cfg.PageSize))
	if after != "" {
		query.Set("after", after)
	}
	if len(properties) > 0 {
		query.Set("properties", strings.Join(properties, ","))
	}

	body, err := c.doRequest(ctx, tenantID, http.MethodGet, "/crm/v3/objects/contacts?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCRMInvalidResponse, err)
	}

	page := &ContactPage{Contacts: resp.Results}
	if resp.Paging != nil {
		page.After = resp.Paging.Next.After
	}
	return page, nil
}

// UpdateContact writes the given property values to a contact
func (c *Client) UpdateContact(ctx context.Context, tenantID uuid.UUID, externalID string, properties map[string]string) error {
	payload, err := json.Marshal(updateRequest{Properties: properties})
	if err != nil {
		return fmt.Errorf("crm: failed to encode update: %w", err)
	}
	_, err = c.doRequest(ctx, tenantID, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(externalID), payload)
	return err
}

// DeleteContact removes a contact from the CRM
func (c *Client) DeleteContact(ctx context.Context, tenantID uuid.UUID, externalID string) error {
	_, err := c.doRequest(ctx, tenantID, http.MethodDelete, "/crm/v3/objects/contacts/"+url.PathEscape(externalID), nil)
	return err
}

// MergeContacts folds one contact into another and returns the external
// id of the surviving record. The CRM may assign a fresh id to the
// result, so callers must use the returned id for subsequent merges.
func (c *Client) MergeContacts(ctx context.Context, tenantID uuid.UUID, primaryID, toMergeID string) (string, error) {
	payload, err := json.Marshal(mergeRequest{
		PrimaryObjectID: primaryID,
		ObjectIDToMerge: toMergeID,
	})
	if err != nil {
		return "", fmt.Errorf("crm: failed to encode merge: %w", err)
	}

	body, err := c.doRequest(ctx, tenantID, http.MethodPost, "/crm/v3/objects/contacts/merge", payload)
	if err != nil {
		return "", err
	}

	var merged RemoteContact
	if err := json.Unmarshal(body, &merged); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCRMInvalidResponse, err)
	}
	if merged.ID == "" {
		return "", fmt.Errorf("%w: merge response missing contact id", ErrCRMInvalidResponse)
	}
	return merged.ID, nil
}

// PropertyExists checks whether the named contact property is defined
func (c *Client) PropertyExists(ctx context.Context, tenantID uuid.UUID, name string) (bool, error) {
	_, err := c.doRequest(ctx, tenantID, http.MethodGet, "/crm/v3/properties/contacts/"+url.PathEscape(name), nil)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateProperty defines a custom text property on the contact object
func (c *Client) CreateProperty(ctx context.Context, tenantID uuid.UUID, name, label string) error {
	payload, err := json.Marshal(propertyDefinition{
		Name:      name,
		Label:     label,
		Type:      "string",
		FieldType: "text",
		GroupName: "contactinformation",
	})
	if err != nil {
		return fmt.Errorf("crm: failed to encode property: %w", err)
	}
	_, err = c.doRequest(ctx, tenantID, http.MethodPost, "/crm/v3/properties/contacts", payload)
	return err
}

// doRequest executes one CRM request with rate limiting and retries
func (c *Client) doRequest(ctx context.Context, tenantID uuid.UUID, method, path string, payload []byte) ([]byte, error) {
	apiKey, err := c.tenantKey(tenantID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.Debug("retrying crm request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.attempt(ctx, apiKey, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && !remoteErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, apiKey, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("crm: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCRMUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("crm: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		remoteErr := &RemoteError{StatusCode: resp.StatusCode}
		var parsed errorResponse
		if json.Unmarshal(body, &parsed) == nil {
			remoteErr.Category = parsed.Category
			remoteErr.Message = parsed.Message
		}
		if resp.StatusCode == http.StatusNotFound && remoteErr.Category == "" {
			remoteErr.Category = "OBJECT_NOT_FOUND"
		}
		return nil, remoteErr
	}

	return body, nil
}

// backoffDelay computes the exponential delay before the given attempt
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay << (attempt - 1)
	if delay > c.cfg.RetryMaxDelay {
		delay = c.cfg.RetryMaxDelay
	}
	return delay
}
