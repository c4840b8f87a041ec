package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Course represents a class section taught by a professor.
type Course struct {
	ID          string         `db:"id" json:"id"`
	CourseCode  string         `db:"course_code" json:"course_code"`
	CourseName  string         `db:"course_name" json:"course_name"`
	Section     string         `db:"section" json:"section"`
	ProfessorID string         `db:"professor_id" json:"professor_id"`
	Schedule    types.JSONText `db:"schedule" json:"schedule" swaggertype:"object"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches a course with professor and enrollment info.
type CourseDetail struct {
	Course
	ProfessorName  string `db:"professor_name" json:"professor_name"`
	ProfessorEmail string `db:"professor_email" json:"professor_email"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
}

// CourseWithStudents is returned when fetching a single course.
type CourseWithStudents struct {
	CourseDetail
	Students []EnrolledStudent `json:"students"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	ProfessorID string
	StudentID   string
	Search      string
	Page        int
	PageSize    int
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	CourseCode  string          `json:"course_code" validate:"required,max=32"`
	CourseName  string          `json:"course_name" validate:"required,max=200"`
	Section     string          `json:"section" validate:"required,max=50"`
	ProfessorID string          `json:"professor_id" validate:"required,uuid"`
	Schedule    json.RawMessage `json:"schedule,omitempty" swaggertype:"object"`
}

// UpdateCourseRequest is the payload for updating a course.
type UpdateCourseRequest struct {
	CourseCode  *string         `json:"course_code" validate:"omitempty,min=1,max=32"`
	CourseName  *string         `json:"course_name" validate:"omitempty,min=1,max=200"`
	Section     *string         `json:"section" validate:"omitempty,min=1,max=50"`
	ProfessorID *string         `json:"professor_id" validate:"omitempty,uuid"`
	Schedule    json.RawMessage `json:"schedule,omitempty" swaggertype:"object"`
}
