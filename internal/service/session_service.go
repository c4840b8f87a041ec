package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/repository"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

const (
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
	defaultCompletedLimit = 100
	maxCompletedLimit     = 500
)

// Realtime events pushed to session subscribers.
const (
	EventAttendanceRecorded = "attendance.recorded"
	EventAttendanceUpdated  = "attendance.updated"
	EventAttendanceDeleted  = "attendance.deleted"
	EventSessionEnded       = "session.ended"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.SessionDetail, error)
	FindActiveByCourse(ctx context.Context, courseID string) (*models.SessionDetail, error)
	ListByCourse(ctx context.Context, courseID string, limit int) ([]models.SessionDetail, error)
	ListCompleted(ctx context.Context, professorID string, limit int) ([]models.SessionDetail, error)
	End(ctx context.Context, id string, endTime time.Time) error
	SetMeeting(ctx context.Context, id, meetingID string) error
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

type sessionAttendanceReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
}

// EventPublisher fans events out to realtime subscribers of a session.
type EventPublisher interface {
	Publish(sessionID, event string, data interface{})
}

// SessionService manages the lifecycle of class sessions.
type SessionService struct {
	repo       sessionRepository
	courses    courseReader
	attendance sessionAttendanceReader
	events     EventPublisher
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionService constructs the session service. events and cache may be nil.
func NewSessionService(repo sessionRepository, courses courseReader, attendance sessionAttendanceReader, events EventPublisher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, courses: courses, attendance: attendance, events: events, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// Start opens a session for the course dated today.
func (s *SessionService) Start(ctx context.Context, req models.StartSessionRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	active, err := s.repo.FindActiveByCourse(ctx, req.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active session")
	}
	if active != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already has an active session")
	}

	// session_date and start_time come from the same UTC instant
	now := s.now().UTC()
	session := &models.Session{
		CourseID:    req.CourseID,
		SessionDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:   now,
		Status:      models.SessionStatusActive,
		MeetingID:   req.MeetingID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course already has an active session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}
	s.logger.Info("session started", zap.String("session_id", session.ID), zap.String("course_id", session.CourseID))
	return s.find(ctx, session.ID)
}

// End completes an active session.
func (s *SessionService) End(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "session is already completed")
	}
	if err := s.repo.End(ctx, id, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSessionClosed, "session is already completed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	_ = s.cache.Invalidate(ctx, summaryKey(id))

	ended, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Publish(id, EventSessionEnded, ended)
	}
	s.logger.Info("session ended", zap.String("session_id", id))
	return ended, nil
}

// Active returns the course's active session, or nil when there is none.
func (s *SessionService) Active(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	session, err := s.repo.FindActiveByCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	return session, nil
}

// Get returns a session with its attendance records.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionWithAttendance, error) {
	session, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.attendance.ListBySession(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if records == nil {
		records = []models.AttendanceDetail{}
	}
	return &models.SessionWithAttendance{SessionDetail: *session, Attendance: records}, nil
}

// History lists a course's sessions, newest first.
func (s *SessionService) History(ctx context.Context, courseID string, limit int) ([]models.SessionDetail, error) {
	sessions, err := s.repo.ListByCourse(ctx, courseID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session history")
	}
	if sessions == nil {
		sessions = []models.SessionDetail{}
	}
	return sessions, nil
}

// Completed lists completed sessions. An empty professorID lists every course.
func (s *SessionService) Completed(ctx context.Context, professorID string, limit int) ([]models.SessionDetail, error) {
	sessions, err := s.repo.ListCompleted(ctx, professorID, clampLimit(limit, defaultCompletedLimit, maxCompletedLimit))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed sessions")
	}
	if sessions == nil {
		sessions = []models.SessionDetail{}
	}
	return sessions, nil
}

// LinkMeeting stores the online meeting used for the session's roster.
func (s *SessionService) LinkMeeting(ctx context.Context, id string, req models.LinkMeetingRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid meeting payload")
	}
	if err := s.repo.SetMeeting(ctx, id, req.MeetingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link meeting")
	}
	return s.find(ctx, id)
}

// Delete removes a session and its attendance.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	_ = s.cache.Invalidate(ctx, summaryKey(id))
	return nil
}

func (s *SessionService) find(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
