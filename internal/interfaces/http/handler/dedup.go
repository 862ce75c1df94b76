package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appdedup "github.com/mergedesk/backend/internal/application/dedup"
	"github.com/mergedesk/backend/internal/domain/shared"
	"github.com/mergedesk/backend/internal/interfaces/http/dto"
)

// DedupHandler handles duplicate detection and resolution API endpoints
type DedupHandler struct {
	BaseHandler
	detection *appdedup.DetectionService
	merge     *appdedup.MergeService
	removal   *appdedup.RemovalService
	finish    *appdedup.FinishService
	query     *appdedup.QueryService
}

// NewDedupHandler creates a new DedupHandler
func NewDedupHandler(
	detection *appdedup.DetectionService,
	merge *appdedup.MergeService,
	removal *appdedup.RemovalService,
	finish *appdedup.FinishService,
	query *appdedup.QueryService,
) *DedupHandler {
	return &DedupHandler{
		detection: detection,
		merge:     merge,
		removal:   removal,
		finish:    finish,
		query:     query,
	}
}

// RegisterRoutes registers dedup routes
func (h *DedupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	dedup := rg.Group("/dedup")
	{
		dedup.POST("/detect", h.StartDetection)
		dedup.GET("/datasets/:dataset/groups", h.ListGroups)
		dedup.POST("/datasets/:dataset/reset", h.ResetAll)
		dedup.POST("/datasets/:dataset/finish", h.Finish)
		dedup.GET("/datasets/:dataset/progress", h.Progress)
		dedup.GET("/groups/:id", h.GetGroup)
		dedup.POST("/groups/:id/merge", h.StageMerge)
		dedup.POST("/groups/:id/reset", h.ResetGroup)
		dedup.POST("/groups/:id/members/:contactId/removal", h.MarkRemoval)
		dedup.DELETE("/removals/:id", h.UndoRemoval)
	}
}

// StartDetection godoc
// @ID           startDedupDetection
// @Summary      Start duplicate detection
// @Description  Starts a background detection run that groups contacts by the supplied attribute conditions
// @Tags         dedup
// @Accept       json
// @Produce      json
// @Success      202 {object} APIResponse[ActionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /dedup/detect [post]
func (h *DedupHandler) StartDetection(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	var req appdedup.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	action, err := h.detection.StartDetection(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, toActionResponse(action))
}

// ListGroups godoc
// @ID           listDedupGroups
// @Summary      List duplicate groups
// @Description  Returns the duplicate groups of a dataset with hydrated members
// @Tags         dedup
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Param        include_merged query bool false "Include merged groups"
// @Success      200 {object} APIResponse[[]appdedup.GroupResponse]
// @Router       /dedup/datasets/{dataset}/groups [get]
func (h *DedupHandler) ListGroups(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	includeMerged := c.Query("include_merged") == "true"

	filter := shared.DefaultFilter()
	filter.Page = req.Page
	filter.PageSize = req.PageSize

	page, err := h.query.ListGroups(c.Request.Context(), tenantID, c.Param("dataset"), includeMerged, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetGroup godoc
// @ID           getDedupGroup
// @Summary      Get a duplicate group
// @Tags         dedup
// @Produce      json
// @Param        id path string true "Group ID"
// @Success      200 {object} APIResponse[appdedup.GroupResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /dedup/groups/{id} [get]
func (h *DedupHandler) GetGroup(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}

	group, err := h.query.GetGroup(c.Request.Context(), tenantID, groupID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, group)
}

// StageMerge godoc
// @ID           stageDedupMerge
// @Summary      Stage a merge decision
// @Description  Records merge intents, field overrides and removal marks for a group without calling the CRM
// @Tags         dedup
// @Accept       json
// @Produce      json
// @Param        id path string true "Group ID"
// @Success      200 {object} APIResponse[appdedup.StageMergeResult]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /dedup/groups/{id}/merge [post]
func (h *DedupHandler) StageMerge(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}

	var req appdedup.StageMergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.merge.StageMerge(c.Request.Context(), tenantID, groupID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// ResetGroup godoc
// @ID           resetDedupGroup
// @Summary      Reset a staged group
// @Description  Discards the staged decision of a group and restores detached members
// @Tags         dedup
// @Produce      json
// @Param        id path string true "Group ID"
// @Success      204
// @Failure      422 {object} ErrorResponse
// @Router       /dedup/groups/{id}/reset [post]
func (h *DedupHandler) ResetGroup(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}

	if err := h.merge.ResetGroup(c.Request.Context(), tenantID, groupID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ResetAll godoc
// @ID           resetDedupDataset
// @Summary      Reset all staged groups of a dataset
// @Tags         dedup
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Success      204
// @Router       /dedup/datasets/{dataset}/reset [post]
func (h *DedupHandler) ResetAll(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	if err := h.merge.ResetAll(c.Request.Context(), tenantID, c.Param("dataset")); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// MarkRemoval godoc
// @ID           markDedupRemoval
// @Summary      Mark a contact for standalone removal
// @Description  Detaches the contact from its group and schedules remote deletion for the next finish run
// @Tags         dedup
// @Produce      json
// @Param        id path string true "Group ID"
// @Param        contactId path string true "Contact ID"
// @Success      200 {object} APIResponse[appdedup.MarkRemovalResult]
// @Failure      409 {object} ErrorResponse
// @Router       /dedup/groups/{id}/members/{contactId}/removal [post]
func (h *DedupHandler) MarkRemoval(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}
	contactID, err := uuid.Parse(c.Param("contactId"))
	if err != nil {
		h.BadRequest(c, "Invalid contact ID")
		return
	}

	result, err := h.removal.Mark(c.Request.Context(), tenantID, groupID, contactID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// UndoRemoval godoc
// @ID           undoDedupRemoval
// @Summary      Undo a removal mark
// @Description  Deletes the mark and reinserts the contact into its group when the group is still open
// @Tags         dedup
// @Produce      json
// @Param        id path string true "Removal ID"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /dedup/removals/{id} [delete]
func (h *DedupHandler) UndoRemoval(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	removalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid removal ID")
		return
	}

	if err := h.removal.Undo(c.Request.Context(), tenantID, removalID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Finish godoc
// @ID           finishDedupDataset
// @Summary      Execute staged decisions against the CRM
// @Description  Starts the background run that merges, updates, deletes and cleans up the dataset
// @Tags         dedup
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Success      202 {object} APIResponse[appdedup.FinishResult]
// @Failure      409 {object} ErrorResponse
// @Router       /dedup/datasets/{dataset}/finish [post]
func (h *DedupHandler) Finish(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	result, err := h.finish.Finish(c.Request.Context(), tenantID, c.Param("dataset"))
	if err != nil {
		if errors.Is(err, shared.ErrRunInProgress) {
			h.ErrorWithCode(c, dto.ErrCodeRunInProgress, "A finish run is already in progress for this dataset")
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, result)
}

// Progress godoc
// @ID           getDedupProgress
// @Summary      Get finish run progress
// @Tags         dedup
// @Produce      json
// @Param        dataset path string true "Dataset key"
// @Success      200 {object} APIResponse[progress.Snapshot]
// @Failure      404 {object} ErrorResponse
// @Router       /dedup/datasets/{dataset}/progress [get]
func (h *DedupHandler) Progress(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid tenant")
		return
	}

	snap, ok := h.finish.Progress(tenantID, c.Param("dataset"))
	if !ok {
		h.NotFound(c, "No finish run recorded for this dataset")
		return
	}

	h.Success(c, snap)
}
