package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendease-api/internal/models"
)

// EnrollmentRepository manages course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListStudents returns the students enrolled in a course ordered by name.
func (r *EnrollmentRepository) ListStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	const query = `SELECT u.id, u.email, u.full_name, u.student_number, u.section, u.photo_url, e.enrolled_at
FROM course_enrollments e JOIN users u ON u.id = e.student_id
WHERE e.course_id = $1 ORDER BY u.full_name ASC`
	var students []models.EnrolledStudent
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// Exists reports whether the student is enrolled in the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, courseID, studentID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create enrolls a student in a course.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_enrollments (id, course_id, student_id, enrolled_at) VALUES (:id, :course_id, :student_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment, returning sql.ErrNoRows when none matched.
func (r *EnrollmentRepository) Delete(ctx context.Context, courseID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByCourse returns the number of students enrolled in a course.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}
