package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mergedesk/backend/internal/application/importer"
	"github.com/mergedesk/backend/internal/domain/contact"
	"github.com/mergedesk/backend/internal/domain/job"
	"github.com/mergedesk/backend/internal/infrastructure/crm"
	"github.com/mergedesk/backend/internal/infrastructure/persistence"
	"github.com/mergedesk/backend/internal/interfaces/http/dto"
)

type stubLister struct {
	contacts []crm.RemoteContact
}

func (l *stubLister) ListContacts(_ context.Context, _ uuid.UUID, after string, _ []string) (*crm.ContactPage, error) {
	if after != "" {
		return &crm.ContactPage{}, nil
	}
	return &crm.ContactPage{Contacts: l.contacts}, nil
}

type importHandlerFixture struct {
	tenantID uuid.UUID
	engine   *gin.Engine
	actions  job.ActionRepository
}

func newImportHandlerFixture(t *testing.T) *importHandlerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&contact.Contact{}, &job.Action{}))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_contact_scope_external ON contacts (tenant_id, dataset_key, external_id)",
	).Error)

	contacts := persistence.NewGormContactRepository(db)
	actions := persistence.NewGormActionRepository(db)
	lister := &stubLister{contacts: []crm.RemoteContact{
		{ID: "1", Properties: map[string]string{"firstname": "Ada", "email": "ada@example.com"}, UpdatedAt: time.Now()},
	}}
	service := importer.NewImportService(contacts, actions, lister, nil)

	engine := gin.New()
	api := engine.Group("/api/v1")
	NewImportHandler(service).RegisterRoutes(api)

	return &importHandlerFixture{
		tenantID: uuid.New(),
		engine:   engine,
		actions:  actions,
	}
}

func (f *importHandlerFixture) request(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Tenant-ID", f.tenantID.String())
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestImportHandler_StartImportAccepted(t *testing.T) {
	f := newImportHandlerFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/imports/datasets/"+testDataset)
	assert.Equal(t, http.StatusAccepted, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "import", data["type"])
	assert.Equal(t, testDataset, data["dataset_key"])

	// The import completes in the background and becomes visible on the
	// status endpoint.
	require.Eventually(t, func() bool {
		latest, err := f.actions.FindLatestByScope(context.Background(), f.tenantID, testDataset, job.ActionTypeImport)
		return err == nil && latest.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	w = f.request(t, http.MethodGet, "/api/v1/imports/datasets/"+testDataset+"/status")
	assert.Equal(t, http.StatusOK, w.Code)
	resp = decodeResponse(t, w)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, string(job.ActionStatusCompleted), data["status"])
	assert.Equal(t, float64(1), data["total_fetched"])
}

func TestImportHandler_StatusNotFoundBeforeAnyImport(t *testing.T) {
	f := newImportHandlerFixture(t)

	w := f.request(t, http.MethodGet, "/api/v1/imports/datasets/"+testDataset+"/status")
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}
