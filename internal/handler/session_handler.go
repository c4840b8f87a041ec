package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type sessionService interface {
	Start(ctx context.Context, req models.StartSessionRequest) (*models.SessionDetail, error)
	End(ctx context.Context, id string) (*models.SessionDetail, error)
	Active(ctx context.Context, courseID string) (*models.SessionDetail, error)
	Get(ctx context.Context, id string) (*models.SessionWithAttendance, error)
	History(ctx context.Context, courseID string, limit int) ([]models.SessionDetail, error)
	Completed(ctx context.Context, professorID string, limit int) ([]models.SessionDetail, error)
	LinkMeeting(ctx context.Context, id string, req models.LinkMeetingRequest) (*models.SessionDetail, error)
	Delete(ctx context.Context, id string) error
}

// SessionHandler exposes the session lifecycle endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Start godoc
// @Summary Start a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.StartSessionRequest true "Course"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req models.StartSessionRequest
	if !bindJSON(c, &req, "courseId is required") {
		return
	}
	session, err := h.service.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// End godoc
// @Summary End a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	session, err := h.service.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Active godoc
// @Summary Active session of a course
// @Description Returns null data when the course has no active session
// @Tags Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/active/{courseId} [get]
func (h *SessionHandler) Active(c *gin.Context) {
	session, err := h.service.Active(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"status": response.StatusSuccess, "data": nil})
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Get godoc
// @Summary Session with attendance records
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// History godoc
// @Summary Session history of a course
// @Tags Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Param limit query int false "Max rows (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Router /sessions/history/{courseId} [get]
func (h *SessionHandler) History(c *gin.Context) {
	sessions, err := h.service.History(c.Request.Context(), c.Param("courseId"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Completed godoc
// @Summary Completed sessions
// @Description Professors only see their own sessions
// @Tags Sessions
// @Produce json
// @Param limit query int false "Max rows (default 100, max 500)"
// @Success 200 {object} response.Envelope
// @Router /sessions/completed [get]
func (h *SessionHandler) Completed(c *gin.Context) {
	professorID := ""
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleProfessor {
		professorID = claims.UserID
	}
	sessions, err := h.service.Completed(c.Request.Context(), professorID, queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// LinkMeeting godoc
// @Summary Attach an online meeting to a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.LinkMeetingRequest true "Meeting"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/meeting [put]
func (h *SessionHandler) LinkMeeting(c *gin.Context) {
	var req models.LinkMeetingRequest
	if !bindJSON(c, &req, "meetingId is required") {
		return
	}
	session, err := h.service.LinkMeeting(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
