package models

import "time"

// Online roster statuses.
const (
	RosterStatusSuccess = "success"
	RosterStatusNoData  = "no_data"

	ProviderConfigured    = "configured"
	ProviderNotConfigured = "not_configured"
)

// ProviderStatus tells clients whether online attendance is available.
type ProviderStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OnlineParticipant is one participant from a meeting attendance report.
type OnlineParticipant struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	JoinTime        *time.Time `json:"join_time,omitempty"`
	LeaveTime       *time.Time `json:"leave_time,omitempty"`
	Status          string     `json:"status"`
	DurationSeconds int        `json:"duration_seconds"`
	Role            string     `json:"role"`
}

// OnlineRoster is the latest attendance report of a meeting.
type OnlineRoster struct {
	Status     string              `json:"status"`
	MeetingID  string              `json:"meeting_id"`
	Students   []OnlineParticipant `json:"students"`
	TotalCount int                 `json:"total_count"`
	Message    string              `json:"message,omitempty"`
	FetchedAt  time.Time           `json:"fetched_at"`
}

// OnlineSyncRequest asks for the roster to be merged into a session.
type OnlineSyncRequest struct {
	MeetingID *string `json:"meeting_id" validate:"omitempty,max=512"`
}

// OnlineSyncJob is the queued unit of work for a roster merge.
type OnlineSyncJob struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	MeetingID   string    `json:"meeting_id"`
	RequestedBy string    `json:"requested_by"`
	QueuedAt    time.Time `json:"queued_at"`
}

// OnlineSyncResult summarises a finished roster merge.
type OnlineSyncResult struct {
	SessionID    string   `json:"session_id"`
	MeetingID    string   `json:"meeting_id"`
	Participants int      `json:"participants"`
	Recorded     []string `json:"recorded"`
	Skipped      int      `json:"skipped"`
	Unmatched    []string `json:"unmatched"`
}
