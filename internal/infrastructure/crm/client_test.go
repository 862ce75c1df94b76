package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedesk/backend/internal/infrastructure/config"
)

func testClient(t *testing.T, handler http.Handler) (*Client, uuid.UUID) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.CRMConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		PageSize:       2,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	client := NewClient(cfg, nil)

	tenantID := uuid.New()
	client.SetTenantKey(tenantID, "test-key")
	return client, tenantID
}

func TestClient_ListContacts(t *testing.T) {
	var gotAuth, gotProperties string
	client, tenantID := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotProperties = r.URL.Query().Get("properties")
		if r.URL.Query().Get("after") == "" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results": []map[string]interface{}{
					{"id": "1", "properties": map[string]string{"email": "a@example.com"}},
					{"id": "2", "properties": map[string]string{"email": "b@example.com"}},
				},
				"paging": map[string]interface{}{"next": map[string]string{"after": "2"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"id": "3", "properties": map[string]string{"email": "c@example.com"}},
			},
		})
	}))

	first, err := client.ListContacts(context.Background(), tenantID, "", []string{"email", "firstname"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "email,firstname", gotProperties)
	assert.Len(t, first.Contacts, 2)
	assert.Equal(t, "2", first.After)

	second, err := client.ListContacts(context.Background(), tenantID, first.After, []string{"email", "firstname"})
	require.NoError(t, err)
	assert.Len(t, second.Contacts, 1)
	assert.Empty(t, second.After)
}

func TestClient_MergeContacts(t *testing.T) {
	client, tenantID := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mergeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1", req.PrimaryObjectID)
		assert.Equal(t, "2", req.ObjectIDToMerge)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "99"})
	}))

	survivorID, err := client.MergeContacts(context.Background(), tenantID, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "99", survivorID)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	client, tenantID := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}})
	}))

	_, err := client.ListContacts(context.Background(), tenantID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	client, tenantID := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"category": "VALIDATION_ERROR",
			"message":  `Property values were not valid: PROPERTY_DOESNT_EXIST "custom_field"`,
		})
	}))

	err := client.UpdateContact(context.Background(), tenantID, "1", map[string]string{"custom_field": "x"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.True(t, remoteErr.IsUnknownProperty())
	assert.False(t, remoteErr.IsRetryable())
}

func TestClient_PropertyExists(t *testing.T) {
	client, tenantID := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm/v3/properties/contacts/known" {
			json.NewEncoder(w).Encode(map[string]string{"name": "known"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	exists, err := client.PropertyExists(context.Background(), tenantID, "known")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.PropertyExists(context.Background(), tenantID, "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_MissingTenantKey(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))

	_, err := client.ListContacts(context.Background(), uuid.New(), "", nil)
	assert.ErrorIs(t, err, ErrCRMNotConfigured)
}
