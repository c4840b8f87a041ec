package models

import "time"

// AttendanceType distinguishes onsite recognition from online meeting presence.
type AttendanceType string

const (
	AttendanceTypeOnsite AttendanceType = "onsite"
	AttendanceTypeOnline AttendanceType = "online"
)

// Valid returns true when the type is a supported value.
func (t AttendanceType) Valid() bool {
	return t == AttendanceTypeOnsite || t == AttendanceTypeOnline
}

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusLeft    AttendanceStatus = "left"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusLeft:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's presence in one session.
type AttendanceRecord struct {
	ID              string           `db:"id" json:"id"`
	SessionID       string           `db:"session_id" json:"session_id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	AttendanceType  AttendanceType   `db:"attendance_type" json:"attendance_type"`
	CheckInTime     time.Time        `db:"check_in_time" json:"check_in_time"`
	ConfidenceScore *float64         `db:"confidence_score" json:"confidence_score,omitempty"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail extends the record with student metadata.
type AttendanceDetail struct {
	AttendanceRecord
	StudentName   string  `db:"student_name" json:"student_name"`
	StudentEmail  string  `db:"student_email" json:"student_email"`
	StudentNumber *string `db:"student_number" json:"student_number,omitempty"`
}

// AttendanceHistoryRow is a student's record with session and course info.
type AttendanceHistoryRow struct {
	AttendanceRecord
	SessionDate   time.Time     `db:"session_date" json:"session_date"`
	SessionStatus SessionStatus `db:"session_status" json:"session_status"`
	CourseID      string        `db:"course_id" json:"course_id"`
	CourseCode    string        `db:"course_code" json:"course_code"`
	CourseName    string        `db:"course_name" json:"course_name"`
	Section       string        `db:"section" json:"section"`
}

// RecordAttendanceRequest records a student's attendance for a session.
type RecordAttendanceRequest struct {
	SessionID  string           `json:"session_id" validate:"required,uuid"`
	StudentID  string           `json:"student_id" validate:"required,uuid"`
	Type       AttendanceType   `json:"type" validate:"required,attendance_type"`
	Confidence *float64         `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Status     AttendanceStatus `json:"status" validate:"omitempty,attendance_status"`
	Notes      *string          `json:"notes" validate:"omitempty,max=500"`
}

// UpdateAttendanceRequest edits an existing record.
type UpdateAttendanceRequest struct {
	Status     *AttendanceStatus `json:"status" validate:"omitempty,attendance_status"`
	Notes      *string           `json:"notes" validate:"omitempty,max=500"`
	Confidence *float64          `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// AttendanceSummary aggregates a session's attendance against enrollment.
type AttendanceSummary struct {
	SessionID      string             `json:"session_id"`
	TotalEnrolled  int                `json:"total_enrolled"`
	TotalPresent   int                `json:"total_present"`
	AbsentCount    int                `json:"absent_count"`
	OnsiteCount    int                `json:"onsite_count"`
	OnlineCount    int                `json:"online_count"`
	AttendanceRate float64            `json:"attendance_rate"`
	Attendance     []AttendanceDetail `json:"attendance"`
}

// AttendanceConflict is returned alongside a 409 for duplicate records.
type AttendanceConflict struct {
	ExistingRecord *AttendanceRecord `json:"existing_record"`
}
