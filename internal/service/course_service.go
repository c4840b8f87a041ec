package service

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/repository"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

const courseCacheTTL = 5 * time.Minute

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ExistsByCodeSection(ctx context.Context, code, section, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CountSessions(ctx context.Context, id string) (int, error)
}

type courseEnrollmentRepository interface {
	ListStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
	Exists(ctx context.Context, courseID, studentID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, courseID, studentID string) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseService handles course and enrollment use cases.
type CourseService struct {
	repo        courseRepository
	enrollments courseEnrollmentRepository
	users       userReader
	cache       *CacheService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs the course service. cache may be nil.
func NewCourseService(repo courseRepository, enrollments courseEnrollmentRepository, users userReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, enrollments: enrollments, users: users, cache: cache, cacheTTL: courseCacheTTL, validator: validate, logger: logger}
}

// SetCacheTTL overrides how long course reads stay cached.
func (s *CourseService) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

type courseListPage struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// List returns courses with pagination metadata. Results are cached per filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, bool, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	page, hit, err := readThrough(ctx, s.cache, courseListKey(hashCourseFilter(filter)), s.cacheTTL, func() (courseListPage, error) {
		courses, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return courseListPage{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
		}
		return courseListPage{Courses: courses, Total: total}, nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	if page.Courses == nil {
		page.Courses = []models.CourseDetail{}
	}
	return page.Courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: page.Total}, hit, nil
}

// ProfessorCourses lists every course taught by the professor.
func (s *CourseService) ProfessorCourses(ctx context.Context, professorID string) ([]models.CourseDetail, error) {
	courses, _, _, err := s.List(ctx, models.CourseFilter{ProfessorID: professorID, PageSize: 100})
	return courses, err
}

// StudentCourses lists every course the student is enrolled in.
func (s *CourseService) StudentCourses(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	courses, _, _, err := s.List(ctx, models.CourseFilter{StudentID: studentID, PageSize: 100})
	return courses, err
}

// Get returns a course with its professor and enrolled students.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseWithStudents, error) {
	result, _, err := readThrough(ctx, s.cache, courseKey(id), s.cacheTTL, func() (*models.CourseWithStudents, error) {
		course, err := s.findCourse(ctx, id)
		if err != nil {
			return nil, err
		}
		students, err := s.enrollments.ListStudents(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
		}
		if students == nil {
			students = []models.EnrolledStudent{}
		}
		return &models.CourseWithStudents{CourseDetail: *course, Students: students}, nil
	})
	return result, err
}

// Create validates and stores a new course.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	schedule, err := courseSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}
	if err := s.ensureProfessor(ctx, req.ProfessorID); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueCode(ctx, req.CourseCode, req.Section, ""); err != nil {
		return nil, err
	}

	course := &models.Course{
		CourseCode:  strings.TrimSpace(req.CourseCode),
		CourseName:  strings.TrimSpace(req.CourseName),
		Section:     strings.TrimSpace(req.Section),
		ProfessorID: req.ProfessorID,
		Schedule:    schedule,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists for this section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidate(ctx)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("course_code", course.CourseCode))
	return s.findCourse(ctx, course.ID)
}

// Update modifies the provided fields of a course.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	existing, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	course := existing.Course
	if req.CourseCode != nil {
		course.CourseCode = strings.TrimSpace(*req.CourseCode)
	}
	if req.CourseName != nil {
		course.CourseName = strings.TrimSpace(*req.CourseName)
	}
	if req.Section != nil {
		course.Section = strings.TrimSpace(*req.Section)
	}
	if req.ProfessorID != nil && *req.ProfessorID != course.ProfessorID {
		if err := s.ensureProfessor(ctx, *req.ProfessorID); err != nil {
			return nil, err
		}
		course.ProfessorID = *req.ProfessorID
	}
	if len(req.Schedule) > 0 {
		schedule, err := courseSchedule(req.Schedule)
		if err != nil {
			return nil, err
		}
		course.Schedule = schedule
	}
	if course.CourseCode != existing.CourseCode || course.Section != existing.Section {
		if err := s.ensureUniqueCode(ctx, course.CourseCode, course.Section, id); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists for this section")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx)
	return s.findCourse(ctx, id)
}

// Delete removes a course that has no sessions.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.findCourse(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountSessions(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course sessions")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "course has sessions and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx)
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

// Students lists the students enrolled in a course.
func (s *CourseService) Students(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	students, err := s.enrollments.ListStudents(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
	}
	if students == nil {
		students = []models.EnrolledStudent{}
	}
	return students, nil
}

// Enroll adds a student account to a course.
func (s *CourseService) Enroll(ctx context.Context, courseID string, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}

	exists, err := s.enrollments.Exists(ctx, courseID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
	}

	enrollment := &models.Enrollment{CourseID: courseID, StudentID: req.StudentID}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	s.invalidate(ctx)
	_ = s.cache.Invalidate(ctx, summaryKey("*"))
	return enrollment, nil
}

// Unenroll removes a student from a course.
func (s *CourseService) Unenroll(ctx context.Context, courseID, studentID string) error {
	if err := s.enrollments.Delete(ctx, courseID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll student")
	}
	s.invalidate(ctx)
	_ = s.cache.Invalidate(ctx, summaryKey("*"))
	return nil
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) ensureProfessor(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	if user.Role != models.RoleProfessor && user.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "professor_id must reference a professor")
	}
	return nil
}

func (s *CourseService) ensureUniqueCode(ctx context.Context, code, section, excludeID string) error {
	exists, err := s.repo.ExistsByCodeSection(ctx, strings.TrimSpace(code), strings.TrimSpace(section), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course code already exists for this section")
	}
	return nil
}

func (s *CourseService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, "courses:*")
}

// courseSchedule normalises the optional schedule payload to a JSON object.
func courseSchedule(raw json.RawMessage) (types.JSONText, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return types.JSONText(`{}`), nil
	}
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "schedule must be valid JSON")
	}
	return types.JSONText(raw), nil
}

func hashCourseFilter(filter models.CourseFilter) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d|%d", filter.ProfessorID, filter.StudentID, strings.ToLower(filter.Search), filter.Page, filter.PageSize)))
	return hex.EncodeToString(sum[:])
}
