package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AccountHandler struct {
	accountService service.AccountService
	matterService  service.MatterService
}

func NewAccountHandler(accountService service.AccountService, matterService service.MatterService) *AccountHandler {
	return &AccountHandler{accountService: accountService, matterService: matterService}
}

func (h *AccountHandler) RegisterRoutes(router *gin.RouterGroup) {
	accounts := router.Group("/api/accounts")
	accounts.Use(middleware.RequireRole(middleware.AllRoles()...))
	{
		accounts.GET("", h.ListAccounts)
		accounts.POST("", h.CreateAccount)
		accounts.GET("/:id", h.GetAccount)
		accounts.PUT("/:id/archive", middleware.RequireRole(middleware.SeniorApproverRoles()...), h.Archive)
		accounts.PUT("/:id/unarchive", middleware.RequireRole(middleware.SeniorApproverRoles()...), h.Unarchive)
		accounts.GET("/:id/matters", h.ListMatters)
	}

	matters := router.Group("/api/matters")
	matters.Use(middleware.RequireRole(middleware.AllRoles()...))
	{
		matters.POST("", h.CreateMatter)
		matters.PUT("/:id/close", h.CloseMatter)
		matters.PUT("/:id/reopen", h.ReopenMatter)
	}
}

// ListAccounts pages accounts, optionally with archived ones
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Param        include_archived  query     bool    false  "Include archived accounts"
// @Param        search            query     string  false  "Title search"
// @Param        page              query     int     false  "Page"
// @Param        limit             query     int     false  "Page size"
// @Success      200               {object}  response.Response{data=[]service.AccountResponse}
// @Router       /api/accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.AccountFilter{
		IncludeArchived: c.Query("include_archived") == "true",
		Search:          c.Query("search"),
		Page:            params.Page,
		Limit:           params.Limit,
	}

	accounts, total, err := h.accountService.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		abortServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   accounts,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// CreateAccount adds a client/engagement account
// @Summary      Create account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateAccountDTO  true  "Account"
// @Success      201      {object}  response.Response{data=service.AccountResponse}
// @Router       /api/accounts [post]
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, account))
}

// GetAccount returns one account
// @Summary      Get account
// @Tags         accounts
// @Produce      json
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  response.Response{data=service.AccountResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	account, err := h.accountService.GetAccount(c.Request.Context(), id)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, account))
}

// Archive flags an account as archived
// @Summary      Archive account
// @Tags         accounts
// @Produce      json
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/accounts/{id}/archive [put]
func (h *AccountHandler) Archive(c *gin.Context) {
	h.setArchived(c, true)
}

// Unarchive clears the archived flag
// @Summary      Unarchive account
// @Tags         accounts
// @Produce      json
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  response.Response
// @Router       /api/accounts/{id}/unarchive [put]
func (h *AccountHandler) Unarchive(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *AccountHandler) setArchived(c *gin.Context, archived bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	if err := h.accountService.SetArchived(c.Request.Context(), actorFromContext(c), id, archived); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"archived": archived}))
}

// ListMatters returns the structured engagements under an account
// @Summary      List matters of an account
// @Tags         matters
// @Produce      json
// @Param        id   path      string  true  "Account id"
// @Success      200  {object}  response.Response{data=[]service.MatterResponse}
// @Router       /api/accounts/{id}/matters [get]
func (h *AccountHandler) ListMatters(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	matters, err := h.matterService.ListByAccount(c.Request.Context(), id)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, matters))
}

// CreateMatter adds a matter under an account
// @Summary      Create matter
// @Tags         matters
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateMatterDTO  true  "Matter"
// @Success      201      {object}  response.Response{data=service.MatterResponse}
// @Router       /api/matters [post]
func (h *AccountHandler) CreateMatter(c *gin.Context) {
	var req service.CreateMatterDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	matter, err := h.matterService.CreateMatter(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, matter))
}

// CloseMatter marks a matter closed
// @Summary      Close matter
// @Tags         matters
// @Produce      json
// @Param        id   path      string  true  "Matter id"
// @Success      200  {object}  response.Response
// @Router       /api/matters/{id}/close [put]
func (h *AccountHandler) CloseMatter(c *gin.Context) {
	h.setMatterStatus(c, model.MatterClosed)
}

// ReopenMatter marks a matter active again
// @Summary      Reopen matter
// @Tags         matters
// @Produce      json
// @Param        id   path      string  true  "Matter id"
// @Success      200  {object}  response.Response
// @Router       /api/matters/{id}/reopen [put]
func (h *AccountHandler) ReopenMatter(c *gin.Context) {
	h.setMatterStatus(c, model.MatterActive)
}

func (h *AccountHandler) setMatterStatus(c *gin.Context, status string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return
	}

	if err := h.matterService.SetStatus(c.Request.Context(), actorFromContext(c), id, status); err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": status}))
}
