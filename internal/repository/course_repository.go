package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendease-api/internal/models"
)

const courseDetailSelect = `SELECT c.id, c.course_code, c.course_name, c.section, c.professor_id, c.schedule, c.created_at, c.updated_at,
COALESCE(p.full_name, '') AS professor_name, COALESCE(p.email, '') AS professor_email,
(SELECT COUNT(*) FROM course_enrollments ce WHERE ce.course_id = c.id) AS enrolled_count
FROM courses c LEFT JOIN users p ON p.id = c.professor_id`

// CourseRepository handles persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses ordered by course code together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_enrollments e WHERE e.course_id = c.id AND e.student_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.course_code) LIKE $%d OR LOWER(c.course_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := " WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY c.course_code ASC, c.section ASC LIMIT %d OFFSET %d", courseDetailSelect, where, pageSize, offset)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses c"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// FindByID returns a course with professor and enrollment details.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, courseDetailSelect+" WHERE c.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// ExistsByCodeSection checks uniqueness of a course code within a section.
func (r *CourseRepository) ExistsByCodeSection(ctx context.Context, code, section, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE LOWER(course_code) = LOWER($1) AND LOWER(section) = LOWER($2)"
	args := []interface{}{code, section}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, course_code, course_name, section, professor_id, schedule, created_at, updated_at) VALUES (:id, :course_code, :course_name, :section, :professor_id, :schedule, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update stores the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET course_code = :course_code, course_name = :course_name, section = :section, professor_id = :professor_id, schedule = :schedule, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course and, by cascade, its enrollments.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// CountSessions returns how many sessions reference the course.
func (r *CourseRepository) CountSessions(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE course_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count course sessions: %w", err)
	}
	return count, nil
}
