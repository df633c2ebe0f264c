package handler

import (
	"errors"
	"net/http"

	"backend/internal/service"
	"backend/internal/worksheet"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// actorFromContext rebuilds the acting user from the claims the auth
// middleware stashed on the request.
func actorFromContext(c *gin.Context) worksheet.ActorContext {
	actor := worksheet.ActorContext{
		Role:        c.GetString("userRole"),
		DisplayName: c.GetString("userName"),
	}
	if raw, ok := c.Get("userID"); ok {
		if idStr, ok := raw.(string); ok {
			if id, err := uuid.Parse(idStr); err == nil {
				actor.ID = id
			}
		}
	}
	return actor
}

// abortServiceError maps service errors onto HTTP statuses. Validation
// failures carry their field and row messages so the worksheet can render
// them inline.
func abortServiceError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"status":       "error",
			"status_code":  http.StatusUnprocessableEntity,
			"error":        "Validation failed",
			"field_errors": vErr.Result.FieldErrors,
			"row_errors":   vErr.Result.RowErrors,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrReasonRequired):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.Is(err, service.ErrStorage):
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}
