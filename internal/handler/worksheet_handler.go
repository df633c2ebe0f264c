package handler

import (
	"net/http"
	"strconv"

	"backend/internal/catalog"
	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WorksheetHandler struct {
	worksheetService service.WorksheetService
}

func NewWorksheetHandler(worksheetService service.WorksheetService) *WorksheetHandler {
	return &WorksheetHandler{worksheetService: worksheetService}
}

func (h *WorksheetHandler) RegisterRoutes(router *gin.RouterGroup) {
	activities := router.Group("/api/activities")
	activities.Use(middleware.RequireRole(middleware.AllRoles()...))
	{
		activities.GET("/catalog", h.GetCatalog)
		activities.POST("/draft", h.SaveDraft)
		activities.POST("/submit", h.Submit)
		activities.GET("/draft/:key", h.LoadDraft)
		activities.DELETE("/draft/:key", h.DeleteDraft)
		activities.GET("/drafts", h.MyDrafts)
		activities.GET("/recent", h.Recent)
		activities.POST("/autosave", h.Autosave)
		activities.GET("/autosave/:batch_id", h.AutosaveState)
		activities.DELETE("/autosave/:batch_id", h.CancelAutosave)
	}
}

// GetCatalog returns the fixed task categories and the quick-entry bundles
// @Summary      Get task category catalog
// @Tags         activities
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/activities/catalog [get]
func (h *WorksheetHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"categories": catalog.All(),
		"bundles":    catalog.Bundles(),
	}))
}

// SaveDraft validates and saves the worksheet as a draft batch
// @Summary      Save worksheet draft
// @Tags         activities
// @Accept       json
// @Produce      json
// @Param        payload  body      service.WorksheetDTO  true  "Worksheet snapshot"
// @Success      200      {object}  response.Response{data=service.SaveResult}
// @Failure      422      {object}  response.Response
// @Router       /api/activities/draft [post]
func (h *WorksheetHandler) SaveDraft(c *gin.Context) {
	var req service.WorksheetDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.worksheetService.SaveDraft(c.Request.Context(), actorFromContext(c), req, true)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Submit validates strictly and moves the whole batch to pending
// @Summary      Submit worksheet for approval
// @Tags         activities
// @Accept       json
// @Produce      json
// @Param        payload  body      service.WorksheetDTO  true  "Worksheet snapshot"
// @Success      200      {object}  response.Response{data=service.SaveResult}
// @Failure      422      {object}  response.Response
// @Router       /api/activities/submit [post]
func (h *WorksheetHandler) Submit(c *gin.Context) {
	var req service.WorksheetDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.worksheetService.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// LoadDraft reopens a draft batch by batch id or single line id
// @Summary      Load a draft batch
// @Tags         activities
// @Produce      json
// @Param        key  path      string  true  "Batch or line id"
// @Success      200  {object}  response.Response{data=service.DraftBatchDTO}
// @Failure      404  {object}  response.Response
// @Router       /api/activities/draft/{key} [get]
func (h *WorksheetHandler) LoadDraft(c *gin.Context) {
	key, err := uuid.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	draft, err := h.worksheetService.LoadDraft(c.Request.Context(), actorFromContext(c), key)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, draft))
}

// DeleteDraft removes the still-editable rows of a draft batch
// @Summary      Delete a draft batch
// @Description  Rows whose edit window already elapsed survive the delete; the result reports whether the delete was partial.
// @Tags         activities
// @Produce      json
// @Param        key  path      string  true  "Batch id"
// @Success      200  {object}  response.Response{data=service.DeleteResult}
// @Failure      404  {object}  response.Response
// @Router       /api/activities/draft/{key} [delete]
func (h *WorksheetHandler) DeleteDraft(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	result, err := h.worksheetService.DeleteDraft(c.Request.Context(), actorFromContext(c), batchID)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// MyDrafts lists the caller's still-editable draft batches
// @Summary      List my drafts
// @Tags         activities
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.DraftBatchDTO}
// @Router       /api/activities/drafts [get]
func (h *WorksheetHandler) MyDrafts(c *gin.Context) {
	drafts, err := h.worksheetService.MyDrafts(c.Request.Context(), actorFromContext(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, drafts))
}

// Recent lists the caller's latest activity lines
// @Summary      List my recent activity
// @Tags         activities
// @Produce      json
// @Param        limit  query     int  false  "Max rows"
// @Success      200    {object}  response.Response
// @Router       /api/activities/recent [get]
func (h *WorksheetHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	lines, err := h.worksheetService.Recent(c.Request.Context(), actorFromContext(c), limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, lines))
}

type autosaveRequest struct {
	service.WorksheetDTO
	Immediate bool `json:"immediate"`
}

// Autosave replaces the session snapshot and (re)arms the debounced save
// @Summary      Queue a debounced draft autosave
// @Tags         activities
// @Accept       json
// @Produce      json
// @Param        payload  body      handler.autosaveRequest  true  "Worksheet snapshot"
// @Success      202      {object}  response.Response
// @Router       /api/activities/autosave [post]
func (h *WorksheetHandler) Autosave(c *gin.Context) {
	var req autosaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	if req.BatchID == "" {
		// First save of a new worksheet gets its batch id here.
		req.BatchID = uuid.New().String()
	}

	if err := h.worksheetService.QueueAutosave(actorFromContext(c), req.WorksheetDTO, req.Immediate); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, gin.H{"batch_id": req.BatchID}))
}

// AutosaveState reports the session's save task state
// @Summary      Get autosave state
// @Tags         activities
// @Produce      json
// @Param        batch_id  path      string  true  "Batch id"
// @Success      200       {object}  response.Response{data=service.AutosaveStateDTO}
// @Router       /api/activities/autosave/{batch_id} [get]
func (h *WorksheetHandler) AutosaveState(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.worksheetService.AutosaveState(batchID)))
}

// CancelAutosave drops a pending autosave timer
// @Summary      Cancel a pending autosave
// @Tags         activities
// @Produce      json
// @Param        batch_id  path      string  true  "Batch id"
// @Success      200       {object}  response.Response
// @Router       /api/activities/autosave/{batch_id} [delete]
func (h *WorksheetHandler) CancelAutosave(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}
	h.worksheetService.CancelAutosave(batchID)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, nil))
}
