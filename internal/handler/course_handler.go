package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/middleware"
	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, bool, error)
	ProfessorCourses(ctx context.Context, professorID string) ([]models.CourseDetail, error)
	StudentCourses(ctx context.Context, studentID string) ([]models.CourseDetail, error)
	Get(ctx context.Context, id string) (*models.CourseWithStudents, error)
	Create(ctx context.Context, req models.CreateCourseRequest) (*models.CourseDetail, error)
	Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.CourseDetail, error)
	Delete(ctx context.Context, id string) error
	Students(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
	Enroll(ctx context.Context, courseID string, req models.EnrollRequest) (*models.Enrollment, error)
	Unenroll(ctx context.Context, courseID, studentID string) error
}

// CourseHandler exposes course and enrollment endpoints.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param professorId query string false "Professor ID"
// @Param search query string false "Code or name search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		ProfessorID: strings.TrimSpace(c.Query("professorId")),
		Search:      strings.TrimSpace(c.Query("search")),
		Page:        queryInt(c, "page"),
		PageSize:    queryInt(c, "limit"),
	}
	courses, pagination, hit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, pagination, withMeta(c))
}

// Get godoc
// @Summary Get course with enrolled students
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body models.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req models.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	// professors create courses for themselves unless one is named
	if claims := claimsFromContext(c); claims != nil && req.ProfessorID == "" && claims.Role == models.RoleProfessor {
		req.ProfessorID = claims.UserID
	}
	course, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req models.UpdateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Students godoc
// @Summary List enrolled students
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Students(c *gin.Context) {
	students, err := h.service.Students(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Enroll godoc
// @Summary Enroll a student
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body models.EnrollRequest true "Student"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	var req models.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Unenroll godoc
// @Summary Remove a student from a course
// @Tags Courses
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/enroll/{studentId} [delete]
func (h *CourseHandler) Unenroll(c *gin.Context) {
	if err := h.service.Unenroll(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ProfessorCourses godoc
// @Summary Courses taught by a professor
// @Tags Courses
// @Produce json
// @Param professorId path string true "Professor ID"
// @Success 200 {object} response.Envelope
// @Router /courses/professor/{professorId} [get]
func (h *CourseHandler) ProfessorCourses(c *gin.Context) {
	courses, err := h.service.ProfessorCourses(c.Request.Context(), c.Param("professorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// StudentCourses godoc
// @Summary Courses a student is enrolled in
// @Tags Courses
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/student/{studentId} [get]
func (h *CourseHandler) StudentCourses(c *gin.Context) {
	courses, err := h.service.StudentCourses(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}
