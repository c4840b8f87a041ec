package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

type profileRepository interface {
	StudentProfile(ctx context.Context, id string) (*models.StudentProfile, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
}

type studentCourseLister interface {
	StudentCourses(ctx context.Context, studentID string) ([]models.CourseDetail, error)
}

type studentHistoryReader interface {
	StudentHistory(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error)
}

// StudentService backs the companion student view.
type StudentService struct {
	repo      profileRepository
	courses   studentCourseLister
	history   studentHistoryReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo profileRepository, courses studentCourseLister, history studentHistoryReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, courses: courses, history: history, validator: validate, logger: logger}
}

// Profile returns the user profile with the number of enrolled courses.
func (s *StudentService) Profile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	profile, err := s.repo.StudentProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

// UpdateProfile edits the name, section and photo of the user.
func (s *StudentService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "full_name cannot be blank")
		}
		user.FullName = name
	}
	if req.Section != nil {
		user.Section = emptyToNil(*req.Section)
	}
	if req.PhotoURL != nil {
		user.PhotoURL = emptyToNil(*req.PhotoURL)
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	s.logger.Info("profile updated", zap.String("user_id", userID))
	return s.Profile(ctx, userID)
}

// MyCourses lists the courses the student is enrolled in.
func (s *StudentService) MyCourses(ctx context.Context, userID string) ([]models.CourseDetail, error) {
	return s.courses.StudentCourses(ctx, userID)
}

// MyAttendance lists the student's attendance records, newest first.
func (s *StudentService) MyAttendance(ctx context.Context, userID string, limit int) ([]models.AttendanceHistoryRow, error) {
	return s.history.StudentHistory(ctx, userID, limit)
}

func emptyToNil(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
