package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-course-api/internal/service"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
	"github.com/noah-isme/edu-course-api/pkg/response"
)

// ExportHandler streams generated export files.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Download an export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "token is required"))
		return
	}

	file, fileName, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	if strings.HasSuffix(fileName, ".csv") {
		contentType = "text/csv"
	}

	modTime := time.Now()
	if info, statErr := file.Stat(); statErr == nil {
		modTime = info.ModTime()
	}

	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, fileName, modTime, file)
}
