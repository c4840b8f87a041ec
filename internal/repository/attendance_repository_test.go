package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
)

var attendanceDetailColumns = []string{"id", "session_id", "student_id", "attendance_type", "check_in_time", "confidence_score", "status", "notes", "created_at", "updated_at", "student_name", "student_email", "student_number"}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{SessionID: "s1", StudentID: "u1", AttendanceType: models.AttendanceTypeOnsite, Status: models.AttendanceStatusPresent}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CheckInTime.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.AttendanceRecord{SessionID: "s1", StudentID: "u1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAttendanceRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(attendanceDetailColumns).
		AddRow("a1", "s1", "u1", "onsite", now, 0.93, "present", nil, now, now, "Ana Cruz", "ana@school.edu", "2021-0001").
		AddRow("a2", "s1", "u2", "online", now.Add(time.Minute), nil, "left", nil, now, now, "Ben Tan", "ben@school.edu", nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.session_id = $1 ORDER BY ar.check_in_time ASC")).
		WithArgs("s1").
		WillReturnRows(rows)

	records, err := repo.ListBySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].ConfidenceScore)
	assert.InDelta(t, 0.93, *records[0].ConfidenceScore, 0.0001)
	assert.Nil(t, records[1].ConfidenceScore)
	assert.Equal(t, models.AttendanceTypeOnline, records[1].AttendanceType)
}

func TestAttendanceRepositoryFindBySessionAndStudentMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("s1", "u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindBySessionAndStudent(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAttendanceRepositoryRecordedStudentIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM attendance_records WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("u1").AddRow("u2"))

	ids, err := repo.RecordedStudentIDs(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestAttendanceRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "student_id", "attendance_type", "check_in_time", "confidence_score", "status", "notes", "created_at", "updated_at", "session_date", "session_status", "course_id", "course_code", "course_name", "section"}).
		AddRow("a1", "s1", "u1", "onsite", now, nil, "present", nil, now, now, now, "completed", "c1", "CS101", "Intro", "A")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.student_id = $1 ORDER BY ar.check_in_time DESC LIMIT 50")).
		WithArgs("u1").
		WillReturnRows(rows)

	history, err := repo.ListByStudent(context.Background(), "u1", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "CS101", history[0].CourseCode)
	assert.Equal(t, models.SessionStatusCompleted, history[0].SessionStatus)
}

func TestAttendanceRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE id = $1")).
		WithArgs("a9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "a9"), sql.ErrNoRows)
}
