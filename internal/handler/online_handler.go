package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/middleware"
	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type onlineService interface {
	Status() models.ProviderStatus
	Roster(ctx context.Context, meetingID string) (*models.OnlineRoster, bool, error)
	Sync(ctx context.Context, sessionID string, req models.OnlineSyncRequest, requestedBy string) (*models.OnlineSyncJob, error)
}

// OnlineHandler exposes online meeting attendance endpoints.
type OnlineHandler struct {
	service onlineService
}

// NewOnlineHandler constructs the handler.
func NewOnlineHandler(service onlineService) *OnlineHandler {
	return &OnlineHandler{service: service}
}

// Status godoc
// @Summary Meeting provider status
// @Tags Online Attendance
// @Produce json
// @Success 200 {object} models.ProviderStatus
// @Router /attendance/online/status [get]
func (h *OnlineHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// Roster godoc
// @Summary Online meeting roster
// @Description Latest attendance report of the meeting; status no_data when none exists
// @Tags Online Attendance
// @Produce json
// @Param meetingId path string true "Online meeting ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance/online/{meetingId} [get]
func (h *OnlineHandler) Roster(c *gin.Context) {
	roster, hit, err := h.service.Roster(c.Request.Context(), c.Param("meetingId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, roster, nil, withMeta(c))
}

// Sync godoc
// @Summary Merge the meeting roster into a session
// @Description Queues a background job; uses the session's meeting when none is given
// @Tags Online Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.OnlineSyncRequest false "Meeting override"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{id}/online-sync [post]
func (h *OnlineHandler) Sync(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.OnlineSyncRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, "invalid sync payload") {
			return
		}
	}
	job, err := h.service.Sync(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}
