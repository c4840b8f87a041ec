package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/graph"
	"github.com/noah-isme/attendease-api/pkg/jobs"
)

const (
	// JobTypeOnlineSync identifies roster merge jobs on the queue.
	JobTypeOnlineSync = "online.sync"
	// EventOnlineSynced is published when a roster merge finishes.
	EventOnlineSynced = "online.synced"

	defaultRosterTTL = 10 * time.Second
)

type meetingProvider interface {
	LatestAttendanceReport(ctx context.Context, meetingID string) (*graph.AttendanceReport, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type enrolledStudentLister interface {
	ListStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
}

type recordedStudentLister interface {
	RecordedStudentIDs(ctx context.Context, sessionID string) ([]string, error)
}

type attendanceRecorder interface {
	Record(ctx context.Context, req models.RecordAttendanceRequest) (*models.AttendanceRecord, error)
}

// OnlineService reads meeting attendance reports and merges them into sessions.
type OnlineService struct {
	provider  meetingProvider
	sessions  sessionReader
	students  enrolledStudentLister
	recorded  recordedStudentLister
	recorder  attendanceRecorder
	queue     jobEnqueuer
	events    EventPublisher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	rosterTTL time.Duration
	now       func() time.Time
}

// OnlineServiceDeps groups the collaborators of OnlineService.
type OnlineServiceDeps struct {
	Provider  meetingProvider
	Sessions  sessionReader
	Students  enrolledStudentLister
	Recorded  recordedStudentLister
	Recorder  attendanceRecorder
	Events    EventPublisher
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	RosterTTL time.Duration
}

// NewOnlineService constructs the service. A nil Provider reports the
// integration as not configured.
func NewOnlineService(deps OnlineServiceDeps) *OnlineService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RosterTTL <= 0 {
		deps.RosterTTL = defaultRosterTTL
	}
	return &OnlineService{
		provider:  deps.Provider,
		sessions:  deps.Sessions,
		students:  deps.Students,
		recorded:  deps.Recorded,
		recorder:  deps.Recorder,
		events:    deps.Events,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		rosterTTL: deps.RosterTTL,
		now:       time.Now,
	}
}

// AttachQueue sets the queue sync jobs are sent to. The queue's handler is
// expected to be HandleSyncJob.
func (s *OnlineService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Status reports whether the meeting provider is configured.
func (s *OnlineService) Status() models.ProviderStatus {
	if s.provider == nil {
		return models.ProviderStatus{Status: models.ProviderNotConfigured, Message: "Graph API credentials not configured"}
	}
	return models.ProviderStatus{Status: models.ProviderConfigured, Message: "Graph API is ready"}
}

// Roster returns the participants of the meeting's latest attendance report.
func (s *OnlineService) Roster(ctx context.Context, meetingID string) (*models.OnlineRoster, bool, error) {
	if s.provider == nil {
		return nil, false, appErrors.Clone(appErrors.ErrProviderNotEnabled, "Graph API not configured. Please check your environment variables.")
	}
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "meeting id is required")
	}
	return readThrough(ctx, s.cache, rosterKey(meetingID), s.rosterTTL, func() (*models.OnlineRoster, error) {
		return s.fetchRoster(ctx, meetingID)
	})
}

// Sync queues a merge of the meeting roster into the session as online
// attendance. The session's linked meeting is used when meetingID is empty.
func (s *OnlineService) Sync(ctx context.Context, sessionID string, req models.OnlineSyncRequest, requestedBy string) (*models.OnlineSyncJob, error) {
	if s.provider == nil {
		return nil, appErrors.Clone(appErrors.ErrProviderNotEnabled, "Graph API not configured. Please check your environment variables.")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "online sync worker is not running")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sync payload")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "session not found", "failed to load session")
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "cannot sync online attendance into a completed session")
	}

	meetingID := ""
	if req.MeetingID != nil {
		meetingID = strings.TrimSpace(*req.MeetingID)
	}
	if meetingID == "" && session.MeetingID != nil {
		meetingID = *session.MeetingID
	}
	if meetingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "meeting_id is required when the session has no linked meeting")
	}

	job := &models.OnlineSyncJob{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		MeetingID:   meetingID,
		RequestedBy: requestedBy,
		QueuedAt:    s.now().UTC(),
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeOnlineSync, Payload: *job, Enqueued: job.QueuedAt}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "online sync queue is busy, try again later")
	}
	s.logger.Info("online sync queued", zap.String("job_id", job.ID), zap.String("session_id", sessionID))
	return job, nil
}

// HandleSyncJob is the queue handler for roster merges. Returned errors are
// retried by the queue; permanent failures are logged and swallowed.
func (s *OnlineService) HandleSyncJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(models.OnlineSyncJob)
	if !ok {
		s.logger.Error("unexpected sync job payload", zap.String("job_id", job.ID))
		return nil
	}
	result, err := s.merge(ctx, payload)
	s.metrics.RecordSyncJob(err)
	if err != nil {
		if isPermanent(err) {
			s.logger.Warn("online sync abandoned", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		return err
	}

	s.logger.Info("online sync finished",
		zap.String("job_id", job.ID),
		zap.String("session_id", result.SessionID),
		zap.Int("participants", result.Participants),
		zap.Int("recorded", len(result.Recorded)),
		zap.Int("skipped", result.Skipped),
		zap.Int("unmatched", len(result.Unmatched)),
	)
	if s.events != nil {
		s.events.Publish(result.SessionID, EventOnlineSynced, result)
	}
	return nil
}

func (s *OnlineService) merge(ctx context.Context, job models.OnlineSyncJob) (*models.OnlineSyncResult, error) {
	session, err := s.sessions.FindByID(ctx, job.SessionID)
	if err != nil {
		return nil, notFoundOr(err, "session not found", "failed to load session")
	}
	roster, err := s.fetchRoster(ctx, job.MeetingID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, rosterKey(job.MeetingID), roster, s.rosterTTL)

	enrolled, err := s.students.ListStudents(ctx, session.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
	}
	byEmail := make(map[string]string, len(enrolled))
	for _, student := range enrolled {
		byEmail[strings.ToLower(strings.TrimSpace(student.Email))] = student.ID
	}

	already, err := s.recorded.RecordedStudentIDs(ctx, job.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recorded students")
	}
	done := make(map[string]struct{}, len(already))
	for _, id := range already {
		done[id] = struct{}{}
	}

	result := &models.OnlineSyncResult{
		SessionID:    job.SessionID,
		MeetingID:    job.MeetingID,
		Participants: len(roster.Students),
		Recorded:     []string{},
		Unmatched:    []string{},
	}
	for _, participant := range roster.Students {
		studentID, ok := byEmail[participant.Email]
		if !ok {
			if participant.Email != "" {
				result.Unmatched = append(result.Unmatched, participant.Email)
			}
			continue
		}
		if _, seen := done[studentID]; seen {
			result.Skipped++
			continue
		}

		status := models.AttendanceStatusPresent
		if participant.Status == string(models.AttendanceStatusLeft) {
			status = models.AttendanceStatusLeft
		}
		notes := fmt.Sprintf("online meeting, %d seconds attended", participant.DurationSeconds)
		_, err := s.recorder.Record(ctx, models.RecordAttendanceRequest{
			SessionID: job.SessionID,
			StudentID: studentID,
			Type:      models.AttendanceTypeOnline,
			Status:    status,
			Notes:     &notes,
		})
		switch {
		case err == nil:
			result.Recorded = append(result.Recorded, studentID)
		case errors.Is(err, appErrors.ErrAlreadyRecorded):
			result.Skipped++
		default:
			return result, err
		}
		done[studentID] = struct{}{}
	}
	return result, nil
}

func (s *OnlineService) fetchRoster(ctx context.Context, meetingID string) (*models.OnlineRoster, error) {
	start := time.Now()
	report, err := s.provider.LatestAttendanceReport(ctx, meetingID)
	s.metrics.ObserveUpstream("graph", err, time.Since(start))
	if err != nil {
		return nil, mapGraphError(err)
	}

	roster := &models.OnlineRoster{MeetingID: meetingID, Students: []models.OnlineParticipant{}, FetchedAt: s.now().UTC()}
	if report == nil {
		roster.Status = models.RosterStatusNoData
		roster.Message = "No attendance data available. Meeting may not have started or ended yet."
		return roster, nil
	}

	roster.Status = models.RosterStatusSuccess
	for _, record := range report.AttendanceRecords {
		roster.Students = append(roster.Students, participantFromRecord(record))
	}
	roster.TotalCount = len(roster.Students)
	return roster, nil
}

func participantFromRecord(record graph.AttendanceRecord) models.OnlineParticipant {
	participant := models.OnlineParticipant{
		Name:            record.Identity.DisplayName,
		Email:           strings.ToLower(strings.TrimSpace(record.EmailAddress)),
		Status:          string(models.AttendanceStatusPresent),
		DurationSeconds: record.TotalAttendanceInSeconds,
		Role:            record.Role,
	}
	if participant.Name == "" {
		participant.Name = "Unknown"
	}
	if len(record.AttendanceIntervals) > 0 {
		first := record.AttendanceIntervals[0]
		participant.JoinTime = first.JoinDateTime
		participant.LeaveTime = first.LeaveDateTime
		if first.LeaveDateTime != nil {
			participant.Status = string(models.AttendanceStatusLeft)
		}
	}
	return participant
}

func mapGraphError(err error) error {
	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "Meeting not found or you do not have access to this meeting.")
		case http.StatusForbidden:
			return appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "Permission denied. Ensure the app has OnlineMeetingArtifact.Read.All permission.")
		}
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "Graph API error: "+apiErr.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "Graph API error: "+err.Error())
}

// isPermanent reports whether retrying the failed sync cannot help.
func isPermanent(err error) bool {
	appErr := appErrors.FromError(err)
	switch appErr.Status {
	case http.StatusNotFound, http.StatusForbidden, http.StatusConflict, http.StatusBadRequest:
		return true
	}
	return false
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
