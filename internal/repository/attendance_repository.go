package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendease-api/internal/models"
)

const attendanceColumns = `id, session_id, student_id, attendance_type, check_in_time, confidence_score, status, notes, created_at, updated_at`

const attendanceDetailSelect = `SELECT ar.id, ar.session_id, ar.student_id, ar.attendance_type, ar.check_in_time, ar.confidence_score, ar.status, ar.notes, ar.created_at, ar.updated_at,
u.full_name AS student_name, u.email AS student_email, u.student_number
FROM attendance_records ar JOIN users u ON u.id = ar.student_id`

// AttendanceRepository persists session attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a record. A second record for the same session and student yields ErrDuplicate.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CheckInTime.IsZero() {
		record.CheckInTime = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `INSERT INTO attendance_records (` + attendanceColumns + `) VALUES (:id, :session_id, :student_id, :attendance_type, :check_in_time, :confidence_score, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// FindByID returns a record by identifier.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+attendanceColumns+` FROM attendance_records WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &record, nil
}

// FindBySessionAndStudent returns the record of a student in a session.
func (r *AttendanceRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session attendance: %w", err)
	}
	return &record, nil
}

// ListBySession returns a session's records ordered by check-in time.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	var records []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &records, attendanceDetailSelect+" WHERE ar.session_id = $1 ORDER BY ar.check_in_time ASC", sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}

// ListBySessions returns the records of several sessions ordered by check-in time.
func (r *AttendanceRepository) ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceDetail, error) {
	if len(sessionIDs) == 0 {
		return []models.AttendanceDetail{}, nil
	}
	var records []models.AttendanceDetail
	query := attendanceDetailSelect + " WHERE ar.session_id = ANY($1::uuid[]) ORDER BY ar.check_in_time ASC"
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(sessionIDs)); err != nil {
		return nil, fmt.Errorf("list attendance for sessions: %w", err)
	}
	return records, nil
}

// RecordedStudentIDs returns the ids of students already recorded in a session.
func (r *AttendanceRepository) RecordedStudentIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM attendance_records WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("list recorded students: %w", err)
	}
	return ids, nil
}

// ListByStudent returns a student's most recent records with session and course info.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error) {
	query := fmt.Sprintf(`SELECT ar.id, ar.session_id, ar.student_id, ar.attendance_type, ar.check_in_time, ar.confidence_score, ar.status, ar.notes, ar.created_at, ar.updated_at,
s.session_date, s.status AS session_status, c.id AS course_id, c.course_code, c.course_name, c.section
FROM attendance_records ar
JOIN sessions s ON s.id = ar.session_id
JOIN courses c ON c.id = s.course_id
WHERE ar.student_id = $1 ORDER BY ar.check_in_time DESC LIMIT %d`, limit)
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return rows, nil
}

// Update stores the editable fields of a record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET status = :status, notes = :notes, confidence_score = :confidence_score, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// Delete removes a record, returning sql.ErrNoRows when none matched.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
