package models

import "time"

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// Session is a single meeting of a course.
type Session struct {
	ID          string        `db:"id" json:"id"`
	CourseID    string        `db:"course_id" json:"course_id"`
	SessionDate time.Time     `db:"session_date" json:"session_date"`
	StartTime   time.Time     `db:"start_time" json:"start_time"`
	EndTime     *time.Time    `db:"end_time" json:"end_time,omitempty"`
	Status      SessionStatus `db:"status" json:"status"`
	MeetingID   *string       `db:"meeting_id" json:"meeting_id,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail carries the course columns joined on reads.
type SessionDetail struct {
	Session
	CourseCode      string `db:"course_code" json:"course_code"`
	CourseName      string `db:"course_name" json:"course_name"`
	Section         string `db:"section" json:"section"`
	ProfessorID     string `db:"professor_id" json:"professor_id"`
	AttendanceCount int    `db:"attendance_count" json:"attendance_count"`
}

// SessionWithAttendance is a session with all of its attendance records.
type SessionWithAttendance struct {
	SessionDetail
	Attendance []AttendanceDetail `json:"attendance_records"`
}

// StartSessionRequest opens a new session for a course.
type StartSessionRequest struct {
	CourseID  string  `json:"course_id" validate:"required,uuid"`
	MeetingID *string `json:"meeting_id" validate:"omitempty,max=512"`
}

// LinkMeetingRequest attaches an online meeting to a session.
type LinkMeetingRequest struct {
	MeetingID string `json:"meeting_id" validate:"required,max=512"`
}
