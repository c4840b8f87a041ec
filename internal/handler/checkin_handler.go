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

type checkInService interface {
	Generate(ctx context.Context, req models.GenerateCheckInRequest) (*models.CheckInCode, error)
	CheckIn(ctx context.Context, studentID string, req models.CheckInRequest) (*models.AttendanceRecord, error)
}

// CheckInHandler serves QR check-in codes and their redemption.
type CheckInHandler struct {
	service checkInService
}

// NewCheckInHandler constructs the handler.
func NewCheckInHandler(svc checkInService) *CheckInHandler {
	return &CheckInHandler{service: svc}
}

// Generate godoc
// @Summary Generate QR check-in code
// @Description Signs a time limited check-in token for an active session and renders it as a PNG data URL
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.GenerateCheckInRequest true "Session and duration in minutes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/qr [post]
func (h *CheckInHandler) Generate(c *gin.Context) {
	var req models.GenerateCheckInRequest
	if !bindJSON(c, &req, "invalid check-in payload") {
		return
	}
	code, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, code, nil)
}

// CheckIn godoc
// @Summary Redeem QR check-in code
// @Description Records onsite attendance for the calling student; a 409 carries the existing record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.CheckInRequest true "Scanned token"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/qr/check-in [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.CheckInRequest
	if !bindJSON(c, &req, "check-in token is required") {
		return
	}
	record, err := h.service.CheckIn(c.Request.Context(), claims.UserID, req)
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
