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

const sessionDetailSelect = `SELECT s.id, s.course_id, s.session_date, s.start_time, s.end_time, s.status, s.meeting_id, s.created_at, s.updated_at,
c.course_code, c.course_name, c.section, c.professor_id,
(SELECT COUNT(*) FROM attendance_records ar WHERE ar.session_id = s.id) AS attendance_count
FROM sessions s JOIN courses c ON c.id = s.course_id`

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session. A second active session for the course yields ErrDuplicate.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, course_id, session_date, start_time, end_time, status, meeting_id, created_at, updated_at) VALUES (:id, :course_id, :session_date, :start_time, :end_time, :status, :meeting_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session joined with its course.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, sessionDetailSelect+" WHERE s.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindByIDs returns the existing sessions among ids ordered by start time.
func (r *SessionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.SessionDetail, error) {
	if len(ids) == 0 {
		return []models.SessionDetail{}, nil
	}
	var sessions []models.SessionDetail
	query := sessionDetailSelect + " WHERE s.id = ANY($1::uuid[]) ORDER BY s.start_time ASC"
	if err := r.db.SelectContext(ctx, &sessions, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return sessions, nil
}

// FindActiveByCourse returns the active session of a course.
func (r *SessionRepository) FindActiveByCourse(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	var session models.SessionDetail
	query := sessionDetailSelect + " WHERE s.course_id = $1 AND s.status = 'active' ORDER BY s.start_time DESC LIMIT 1"
	if err := r.db.GetContext(ctx, &session, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// ListByCourse returns the most recent sessions of a course.
func (r *SessionRepository) ListByCourse(ctx context.Context, courseID string, limit int) ([]models.SessionDetail, error) {
	var sessions []models.SessionDetail
	query := fmt.Sprintf("%s WHERE s.course_id = $1 ORDER BY s.start_time DESC LIMIT %d", sessionDetailSelect, limit)
	if err := r.db.SelectContext(ctx, &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	return sessions, nil
}

// ListCompleted returns the most recent completed sessions across courses,
// optionally restricted to one professor.
func (r *SessionRepository) ListCompleted(ctx context.Context, professorID string, limit int) ([]models.SessionDetail, error) {
	var sessions []models.SessionDetail
	query := sessionDetailSelect + " WHERE s.status = 'completed'"
	var args []interface{}
	if professorID != "" {
		query += " AND c.professor_id = $1"
		args = append(args, professorID)
	}
	query += fmt.Sprintf(" ORDER BY s.start_time DESC LIMIT %d", limit)
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	return sessions, nil
}

// End completes an active session. Returns sql.ErrNoRows when the session is not active.
func (r *SessionRepository) End(ctx context.Context, id string, endTime time.Time) error {
	const query = `UPDATE sessions SET status = 'completed', end_time = $2, updated_at = $2 WHERE id = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, id, endTime)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetMeeting stores the online meeting id of a session.
func (r *SessionRepository) SetMeeting(ctx context.Context, id, meetingID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET meeting_id = $2, updated_at = $3 WHERE id = $1`, id, meetingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set session meeting: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session and its attendance records.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
