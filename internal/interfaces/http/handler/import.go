package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mergedesk/backend/internal/application/importer"
	"github.com/mergedesk/backend/internal/domain/job"
)

// ImportHandler handles contact import API endpoints
type ImportHandler struct {
	BaseHandler
	imports *importer.ImportService
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(imports *importer.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// RegisterRoutes registers import routes
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	imports := rg.Group("/imports")
	{
		imports.POST("/datasets/:dataset", h.StartImport)
		imports.GET("/datasets/:dataset/status", h.Status)
	}
}

// ActionResponse represents a background action in API responses
// @name HandlerActionResponse
type ActionResponse struct {
	ID           uuid.UUID  `json:"id"`
	DatasetKey   string     `json:"dataset_key"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	TotalFetched int        `json:"total_fetched"`
	RetryCount   int        `json:"retry_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toActionResponse(action *job.Action) ActionResponse {
	return ActionResponse{
		ID:           action.ID,
		DatasetKey:   action.DatasetKey,
		Type:         string(action.Type),
		Status:       string(action.Status),
		Error:        action.Error,
		TotalFetched: action.TotalFetched,
		RetryCount:   action.RetryCount,
		StartedAt:    action.StartedAt,
		CompletedAt:  action.CompletedAt,
	}
}

// StartImport godoc
// @ID           startContactImport
// @Summary      Start a contact import
// @Description  Starts a background import that pages through the remote CRM and upserts contacts into the dataset
// @Tags         imports
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Success      202 {object} APIResponse[ActionResponse]
// @Failure      409 {object} ErrorResponse
// @Router       /imports/datasets/{dataset} [post]
func (h *ImportHandler) StartImport(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	action, err := h.imports.StartImport(c.Request.Context(), tenantID, c.Param("dataset"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, toActionResponse(action))
}

// Status godoc
// @ID           getContactImportStatus
// @Summary      Get the latest import status
// @Tags         imports
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Success      200 {object} APIResponse[ActionResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /imports/datasets/{dataset}/status [get]
func (h *ImportHandler) Status(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	action, err := h.imports.Status(c.Request.Context(), tenantID, c.Param("dataset"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toActionResponse(action))
}
