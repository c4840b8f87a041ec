package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
)

type fakeStudentService struct {
	seenUser string
	limit    int
	update   models.UpdateProfileRequest
}

func (f *fakeStudentService) Profile(_ context.Context, userID string) (*models.StudentProfile, error) {
	f.seenUser = userID
	return &models.StudentProfile{User: models.User{ID: userID, FullName: "Ana Cruz"}, CoursesCount: 3}, nil
}

func (f *fakeStudentService) UpdateProfile(_ context.Context, userID string, req models.UpdateProfileRequest) (*models.StudentProfile, error) {
	f.seenUser = userID
	f.update = req
	return &models.StudentProfile{User: models.User{ID: userID, FullName: *req.FullName}}, nil
}

func (f *fakeStudentService) MyCourses(_ context.Context, userID string) ([]models.CourseDetail, error) {
	f.seenUser = userID
	return []models.CourseDetail{}, nil
}

func (f *fakeStudentService) MyAttendance(_ context.Context, userID string, limit int) ([]models.AttendanceHistoryRow, error) {
	f.seenUser = userID
	f.limit = limit
	return []models.AttendanceHistoryRow{}, nil
}

func studentRouter(svc *fakeStudentService, role models.UserRole) http.Handler {
	h := NewStudentHandler(svc)
	r := testRouter(role, "stu-1")
	r.GET("/me/profile", h.Profile)
	r.PUT("/me/profile", h.UpdateProfile)
	r.GET("/me/courses", h.MyCourses)
	r.GET("/me/attendance", h.MyAttendance)
	return r
}

func TestStudentHandlerUsesCallerIdentity(t *testing.T) {
	svc := &fakeStudentService{}
	r := studentRouter(svc, models.RoleStudent)

	w := doJSON(r, http.MethodGet, "/me/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.seenUser)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"courses_count":3`)

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/me/courses", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/me/attendance?limit=5", nil).Code)
	assert.Equal(t, 5, svc.limit)
}

func TestStudentHandlerUpdateProfile(t *testing.T) {
	svc := &fakeStudentService{}
	r := studentRouter(svc, models.RoleStudent)

	w := doJSON(r, http.MethodPut, "/me/profile", map[string]string{"full_name": "Ana M. Cruz"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.update.FullName)
	assert.Equal(t, "Ana M. Cruz", *svc.update.FullName)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPut, "/me/profile", "{").Code)
}

func TestStudentHandlerRequiresClaims(t *testing.T) {
	r := studentRouter(&fakeStudentService{}, "")
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/me/profile", nil).Code)
}
