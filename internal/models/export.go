package models

import "time"

// ExportFormat identifies a rendered export type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// BulkExportRequest lists the sessions included in a multi-session export.
type BulkExportRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1,max=200,dive,uuid"`
}

// ExportFile is a rendered export ready to be sent to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportLink is a stored bulk export reachable through a signed URL.
type ExportLink struct {
	ExportID     string    `json:"export_id"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionCount int       `json:"session_count"`
}

// SessionSummaryRow is one student line of a session summary.
type SessionSummaryRow struct {
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Email       string    `json:"email"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	CheckInTime time.Time `json:"check_in_time"`
	Confidence  *float64  `json:"confidence"`
}

// SessionSummary is the report view of a session.
type SessionSummary struct {
	SessionID    string              `json:"session_id"`
	CourseCode   string              `json:"course_code"`
	CourseName   string              `json:"course_name"`
	Section      string              `json:"section"`
	SessionDate  string              `json:"session_date"`
	SessionTime  string              `json:"session_time"`
	TotalPresent int                 `json:"total_present"`
	OnsiteCount  int                 `json:"onsite_count"`
	OnlineCount  int                 `json:"online_count"`
	Attendance   []SessionSummaryRow `json:"attendance"`
}
