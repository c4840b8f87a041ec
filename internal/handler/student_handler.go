package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type studentService interface {
	Profile(ctx context.Context, userID string) (*models.StudentProfile, error)
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.StudentProfile, error)
	MyCourses(ctx context.Context, userID string) ([]models.CourseDetail, error)
	MyAttendance(ctx context.Context, userID string, limit int) ([]models.AttendanceHistoryRow, error)
}

// StudentHandler serves the companion student view for the signed-in user.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service studentService) *StudentHandler {
	return &StudentHandler{service: service}
}

// Profile godoc
// @Summary My profile
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/profile [get]
func (h *StudentHandler) Profile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateProfile godoc
// @Summary Update my profile
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body models.UpdateProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me/profile [put]
func (h *StudentHandler) UpdateProfile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req, "invalid profile payload") {
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// MyCourses godoc
// @Summary My courses
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/courses [get]
func (h *StudentHandler) MyCourses(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	courses, err := h.service.MyCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// MyAttendance godoc
// @Summary My attendance history
// @Tags Students
// @Produce json
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} response.Envelope
// @Router /me/attendance [get]
func (h *StudentHandler) MyAttendance(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	rows, err := h.service.MyAttendance(c.Request.Context(), claims.UserID, queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
