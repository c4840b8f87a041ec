package models

import "time"

// Enrollment links a student to a course.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrolledStudent is a student row as listed under a course.
type EnrolledStudent struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	FullName      string    `db:"full_name" json:"full_name"`
	StudentNumber *string   `db:"student_number" json:"student_number,omitempty"`
	Section       *string   `db:"section" json:"section,omitempty"`
	PhotoURL      *string   `db:"photo_url" json:"photo_url,omitempty"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollRequest adds a student to a course.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}
