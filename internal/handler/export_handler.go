package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/service"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type exportService interface {
	SessionCSV(ctx context.Context, sessionID string) (*models.ExportFile, error)
	SessionPDF(ctx context.Context, sessionID string) (*models.ExportFile, error)
	SessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	BulkCSV(ctx context.Context, req models.BulkExportRequest) (*models.ExportFile, int, error)
	BulkLink(ctx context.Context, req models.BulkExportRequest) (*models.ExportLink, error)
	Download(token string) (*service.ExportDownload, error)
}

// ExportHandler serves attendance exports.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// SessionCSV godoc
// @Summary Export a session as CSV
// @Tags Export
// @Produce text/csv
// @Param sessionId path string true "Session ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /export/session/{sessionId}/csv [get]
func (h *ExportHandler) SessionCSV(c *gin.Context) {
	file, err := h.service.SessionCSV(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// SessionPDF godoc
// @Summary Export a session as PDF
// @Tags Export
// @Produce application/pdf
// @Param sessionId path string true "Session ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /export/session/{sessionId}/pdf [get]
func (h *ExportHandler) SessionPDF(c *gin.Context) {
	file, err := h.service.SessionPDF(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// SessionSummary godoc
// @Summary Session report summary
// @Tags Export
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/session/{sessionId}/summary [get]
func (h *ExportHandler) SessionSummary(c *gin.Context) {
	summary, err := h.service.SessionSummary(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// BulkCSV godoc
// @Summary Export several sessions as one CSV
// @Tags Export
// @Accept json
// @Produce text/csv
// @Param payload body models.BulkExportRequest true "Sessions"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/bulk/csv [post]
func (h *ExportHandler) BulkCSV(c *gin.Context) {
	var req models.BulkExportRequest
	if !bindJSON(c, &req, "sessionIds array is required") {
		return
	}
	file, count, err := h.service.BulkCSV(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Session-Count", strconv.Itoa(count))
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// BulkLink godoc
// @Summary Store a bulk CSV behind a signed link
// @Tags Export
// @Accept json
// @Produce json
// @Param payload body models.BulkExportRequest true "Sessions"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/bulk/link [post]
func (h *ExportHandler) BulkLink(c *gin.Context) {
	var req models.BulkExportRequest
	if !bindJSON(c, &req, "sessionIds array is required") {
		return
	}
	link, err := h.service.BulkLink(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download godoc
// @Summary Download a stored export
// @Tags Export
// @Produce text/csv
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /export/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close() //nolint:errcheck

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", "attachment; filename=\""+download.Filename+"\"")
	c.Header("Content-Type", download.ContentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, download.Body)
}
