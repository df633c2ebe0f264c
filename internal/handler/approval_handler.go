package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApprovalHandler struct {
	lifecycleService service.LifecycleService
	queueService     service.QueueService
}

func NewApprovalHandler(lifecycleService service.LifecycleService, queueService service.QueueService) *ApprovalHandler {
	return &ApprovalHandler{lifecycleService: lifecycleService, queueService: queueService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	{
		approvals.GET("", middleware.RequireRole(middleware.ApproverRoles()...), h.ListQueue)
		approvals.GET("/counts", middleware.RequireRole(middleware.ApproverRoles()...), h.Counts)
		approvals.PUT("/:id/approve", middleware.RequireRole(middleware.ApproverRoles()...), h.Approve)
		approvals.PUT("/:id/reject", middleware.RequireRole(middleware.ApproverRoles()...), h.Reject)
		approvals.PUT("/:id/bill", middleware.RequireRole(middleware.ApproverRoles()...), h.MarkBilled)
		approvals.PUT("/:id/complete", middleware.RequireRole(middleware.SeniorApproverRoles()...), h.Complete)
	}
}

// ListQueue returns one approval queue view
// @Summary      List the approval queue
// @Description  View is one of pending, approved, billed, history. The pending view folds in drafts whose edit window elapsed, labeled "pending (auto)".
// @Tags         approvals
// @Produce      json
// @Param        view    query     string  false  "Queue view"  default(pending)
// @Param        search  query     string  false  "Search term"
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=[]service.QueueItemDTO}
// @Failure      403     {object}  response.Response
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListQueue(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.QueueFilter{
		View:   c.DefaultQuery("view", service.QueueViewPending),
		Search: c.Query("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	}

	items, total, err := h.queueService.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   items,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// Counts returns the per-status line counts for the queue KPIs
// @Summary      Get queue counts
// @Tags         approvals
// @Produce      json
// @Success      200  {object}  response.Response{data=service.QueueCountsDTO}
// @Router       /api/approvals/counts [get]
func (h *ApprovalHandler) Counts(c *gin.Context) {
	counts, err := h.queueService.Counts(c.Request.Context(), actorFromContext(c))
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// Approve moves a pending line to approved
// @Summary      Approve an activity line
// @Tags         approvals
// @Produce      json
// @Param        id   path      string  true  "Line id"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.lifecycleService.Approve(c.Request.Context(), actorFromContext(c), id)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject moves a pending line to rejected; a reason is required
// @Summary      Reject an activity line
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Line id"
// @Param        payload  body      handler.rejectRequest  true  "Rejection reason"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req rejectRequest
	_ = c.ShouldBindJSON(&req)

	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.lifecycleService.Reject(c.Request.Context(), actorFromContext(c), id, req.Reason)
	})
}

// MarkBilled moves an approved line to billed
// @Summary      Mark an activity line billed
// @Tags         approvals
// @Produce      json
// @Param        id   path      string  true  "Line id"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/approvals/{id}/bill [put]
func (h *ApprovalHandler) MarkBilled(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.lifecycleService.MarkBilled(c.Request.Context(), actorFromContext(c), id)
	})
}

// Complete moves a billed line to completed
// @Summary      Complete a billed activity line
// @Tags         approvals
// @Produce      json
// @Param        id   path      string  true  "Line id"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/approvals/{id}/complete [put]
func (h *ApprovalHandler) Complete(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.lifecycleService.Complete(c.Request.Context(), actorFromContext(c), id)
	})
}

func (h *ApprovalHandler) transition(c *gin.Context, fn func(id uuid.UUID) (interface{}, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	result, err := fn(id)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
