package handler

import (
	"io"
	"net/http"
	"strconv"

	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxReceiptSize bounds a single receipt upload.
const maxReceiptSize = 10 << 20

type ReceiptHandler struct {
	receiptService service.ReceiptService
}

func NewReceiptHandler(receiptService service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup) {
	receipts := router.Group("/api/receipts")
	{
		receipts.POST("", middleware.RequireRole(middleware.AllRoles()...), h.Upload)
		receipts.POST("/sign", middleware.RequireRole(middleware.AllRoles()...), h.Sign)
		// View is authenticated by the signed token itself.
		receipts.GET("/view", h.View)
	}
}

// Upload stores a receipt file and returns its attachment ref
// @Summary      Upload a receipt
// @Tags         receipts
// @Accept       multipart/form-data
// @Produce      json
// @Param        file      formData  file    true  "Receipt file"
// @Param        batch_id  formData  string  true  "Batch id"
// @Param        line_no   formData  int     true  "Line number"
// @Success      201       {object}  response.Response{data=service.ReceiptRefDTO}
// @Failure      502       {object}  response.Response
// @Router       /api/receipts [post]
func (h *ReceiptHandler) Upload(c *gin.Context) {
	batchID, err := uuid.Parse(c.PostForm("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid batch_id"))
		return
	}
	lineNo, err := strconv.Atoi(c.PostForm("line_no"))
	if err != nil || lineNo < 1 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid line_no"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing file"))
		return
	}
	if fileHeader.Size > maxReceiptSize {
		c.JSON(http.StatusRequestEntityTooLarge, response.Error(http.StatusRequestEntityTooLarge, "File too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Unreadable file"))
		return
	}
	defer file.Close()

	ref, err := h.receiptService.Upload(c.Request.Context(), actorFromContext(c), service.ReceiptUploadDTO{
		BatchID:  batchID,
		LineNo:   lineNo,
		Filename: fileHeader.Filename,
		Body:     file,
	})
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ref))
}

type signRequest struct {
	Ref string `json:"ref" binding:"required"`
}

// Sign mints a fresh time-limited read URL for an existing attachment ref
// @Summary      Sign a receipt read URL
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Param        payload  body      handler.signRequest  true  "Attachment ref"
// @Success      200      {object}  response.Response
// @Router       /api/receipts/sign [post]
func (h *ReceiptHandler) Sign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	url, err := h.receiptService.SignURL(req.Ref)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"signed_url": url}))
}

// View streams the object a valid signed token grants
// @Summary      View a receipt via signed token
// @Tags         receipts
// @Produce      octet-stream
// @Param        token  query  string  true  "Signed token"
// @Success      200
// @Failure      403  {object}  response.Response
// @Router       /api/receipts/view [get]
func (h *ReceiptHandler) View(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Missing token"))
		return
	}

	rc, err := h.receiptService.Open(c.Request.Context(), token)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	defer rc.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")
	_, _ = io.Copy(c.Writer, rc)
}
