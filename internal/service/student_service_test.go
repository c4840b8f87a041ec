package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

type mockProfileRepo struct {
	users   map[string]*models.User
	courses int
	updated *models.User
}

func (m *mockProfileRepo) StudentProfile(ctx context.Context, id string) (*models.StudentProfile, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.StudentProfile{User: *user, CoursesCount: m.courses}, nil
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockProfileRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	m.updated = user
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

type stubStudentCourses struct{ courses []models.CourseDetail }

func (s stubStudentCourses) StudentCourses(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	return s.courses, nil
}

type stubStudentHistory struct{ lastLimit int }

func (s *stubStudentHistory) StudentHistory(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error) {
	s.lastLimit = limit
	return []models.AttendanceHistoryRow{{CourseCode: "CS101"}}, nil
}

func newTestStudentService() (*StudentService, *mockProfileRepo, *stubStudentHistory) {
	section := "A"
	repo := &mockProfileRepo{courses: 2, users: map[string]*models.User{
		testStudentID: {ID: testStudentID, FullName: "Ana Cruz", Role: models.RoleStudent, Section: &section},
	}}
	history := &stubStudentHistory{}
	courses := stubStudentCourses{courses: []models.CourseDetail{{Course: models.Course{ID: "c1"}}}}
	return NewStudentService(repo, courses, history, nil, nil), repo, history
}

func TestStudentServiceProfile(t *testing.T) {
	svc, _, _ := newTestStudentService()

	profile, err := svc.Profile(context.Background(), testStudentID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Cruz", profile.FullName)
	assert.Equal(t, 2, profile.CoursesCount)

	_, err = svc.Profile(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateProfile(t *testing.T) {
	svc, repo, _ := newTestStudentService()
	name := "  Ana M. Cruz "
	blank := ""
	photo := "https://cdn.example.edu/ana.png"

	profile, err := svc.UpdateProfile(context.Background(), testStudentID, models.UpdateProfileRequest{FullName: &name, Section: &blank, PhotoURL: &photo})
	require.NoError(t, err)
	assert.Equal(t, "Ana M. Cruz", profile.FullName)
	assert.Nil(t, profile.Section)
	require.NotNil(t, profile.PhotoURL)
	assert.Equal(t, photo, *profile.PhotoURL)
	require.NotNil(t, repo.updated)
}

func TestStudentServiceUpdateProfileValidation(t *testing.T) {
	svc, repo, _ := newTestStudentService()
	badURL := "not a url"
	spaces := "   "

	_, err := svc.UpdateProfile(context.Background(), testStudentID, models.UpdateProfileRequest{PhotoURL: &badURL})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateProfile(context.Background(), testStudentID, models.UpdateProfileRequest{FullName: &spaces})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestStudentServiceCoursesAndAttendance(t *testing.T) {
	svc, _, history := newTestStudentService()

	courses, err := svc.MyCourses(context.Background(), testStudentID)
	require.NoError(t, err)
	assert.Len(t, courses, 1)

	rows, err := svc.MyAttendance(context.Background(), testStudentID, 25)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 25, history.lastLimit)
}
