package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type attendanceService interface {
	Record(ctx context.Context, req models.RecordAttendanceRequest) (*models.AttendanceRecord, error)
	SessionAttendance(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
	Summary(ctx context.Context, sessionID string) (*models.AttendanceSummary, error)
	Update(ctx context.Context, id string, req models.UpdateAttendanceRequest) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, id string) error
	StudentHistory(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error)
}

// AttendanceHandler exposes attendance record endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Record godoc
// @Summary Record attendance
// @Description A 409 carries the existing record when the student is already recorded
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.RecordAttendanceRequest true "Attendance"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/record [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req models.RecordAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.Record(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, appErrors.ErrAlreadyRecorded) && record != nil {
			response.ErrorWithData(c, err, models.AttendanceConflict{ExistingRecord: record})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// SessionAttendance godoc
// @Summary Attendance of a session
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/session/{sessionId} [get]
func (h *AttendanceHandler) SessionAttendance(c *gin.Context) {
	records, err := h.service.SessionAttendance(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Attendance summary of a session
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/session/{sessionId}/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Update godoc
// @Summary Update an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body models.UpdateAttendanceRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req models.UpdateAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Param id path string true "Record ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentHistory godoc
// @Summary Attendance history of a student
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{studentId} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	rows, err := h.service.StudentHistory(c.Request.Context(), c.Param("studentId"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
