package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
)

var courseRowColumns = []string{"id", "course_code", "course_name", "section", "professor_id", "schedule", "created_at", "updated_at", "professor_name", "professor_email", "enrolled_count"}

func TestCourseRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(courseRowColumns).
		AddRow("c1", "CS101", "Intro to Computing", "A", "p1", []byte(`{"days":["Mon"]}`), now, now, "Prof Reyes", "reyes@school.edu", 32)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND c.professor_id = $1 AND (LOWER(c.course_code) LIKE $2 OR LOWER(c.course_name) LIKE $2) ORDER BY c.course_code ASC, c.section ASC LIMIT 20 OFFSET 0")).
		WithArgs("p1", "%cs%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses c WHERE 1=1 AND c.professor_id = $1")).
		WithArgs("p1", "%cs%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{ProfessorID: "p1", Search: "CS"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 32, courses[0].EnrolledCount)
	assert.Equal(t, "Prof Reyes", courses[0].ProfessorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListByStudentPaged(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("e.student_id = $1) ORDER BY c.course_code ASC, c.section ASC LIMIT 10 OFFSET 10")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses c")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{StudentID: "s1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, courses)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCourseRepositoryExistsByCodeSection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM courses WHERE LOWER(course_code) = LOWER($1) AND LOWER(section) = LOWER($2) AND id <> $3 LIMIT 1")).
		WithArgs("CS101", "A", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByCodeSection(context.Background(), "CS101", "A", "c1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCourseRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Course{CourseCode: "CS101", Section: "A", ProfessorID: "p1", Schedule: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCourseRepositoryCountSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountSessions(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
