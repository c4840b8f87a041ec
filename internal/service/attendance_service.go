package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/repository"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

const summaryCacheTTL = 30 * time.Second

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error)
	Update(ctx context.Context, record *models.AttendanceRecord) error
	Delete(ctx context.Context, id string) error
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.SessionDetail, error)
}

type enrollmentCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// AttendanceService coordinates attendance recording and reporting.
type AttendanceService struct {
	repo        attendanceRepository
	sessions    sessionReader
	enrollments enrollmentCounter
	events      EventPublisher
	cache       *CacheService
	cacheTTL    time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service and registers the
// attendance validation tags on validate.
func NewAttendanceService(repo attendanceRepository, sessions sessionReader, enrollments enrollmentCounter, events EventPublisher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{repo: repo, sessions: sessions, enrollments: enrollments, events: events, cache: cache, cacheTTL: summaryCacheTTL, metrics: metrics, validator: validate, logger: logger}
	svc.validator.RegisterValidation("attendance_type", func(fl validator.FieldLevel) bool {
		return models.AttendanceType(strings.ToLower(fl.Field().String())).Valid()
	})
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// SetCacheTTL overrides how long session summaries stay cached.
func (s *AttendanceService) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

// Record stores a student's attendance for a session. When the student is
// already recorded the existing record is returned with ErrAlreadyRecorded.
func (s *AttendanceService) Record(ctx context.Context, req models.RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.findSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "cannot record attendance for a completed session")
	}

	existing, err := s.repo.FindBySessionAndStudent(ctx, req.SessionID, req.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}
	if existing != nil {
		return existing, appErrors.Clone(appErrors.ErrAlreadyRecorded, "")
	}

	status := models.AttendanceStatus(strings.ToLower(string(req.Status)))
	if status == "" {
		status = models.AttendanceStatusPresent
	}
	record := &models.AttendanceRecord{
		SessionID:       req.SessionID,
		StudentID:       req.StudentID,
		AttendanceType:  models.AttendanceType(strings.ToLower(string(req.Type))),
		ConfidenceScore: req.Confidence,
		Status:          status,
		Notes:           req.Notes,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, findErr := s.repo.FindBySessionAndStudent(ctx, req.SessionID, req.StudentID)
			if findErr != nil {
				existing = nil
			}
			return existing, appErrors.Clone(appErrors.ErrAlreadyRecorded, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.metrics.RecordAttendance(record.AttendanceType)
	_ = s.cache.Invalidate(ctx, summaryKey(record.SessionID))
	s.publish(record.SessionID, EventAttendanceRecorded, record)
	s.logger.Debug("attendance recorded",
		zap.String("session_id", record.SessionID),
		zap.String("student_id", record.StudentID),
		zap.String("type", string(record.AttendanceType)),
	)
	return record, nil
}

// SessionAttendance lists a session's records ordered by check-in time.
func (s *AttendanceService) SessionAttendance(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	if _, err := s.findSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.listSession(ctx, sessionID)
}

// Summary aggregates a session's attendance against course enrollment.
func (s *AttendanceService) Summary(ctx context.Context, sessionID string) (*models.AttendanceSummary, error) {
	summary, _, err := readThrough(ctx, s.cache, summaryKey(sessionID), s.cacheTTL, func() (*models.AttendanceSummary, error) {
		session, err := s.findSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		records, err := s.listSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		enrolled, err := s.enrollments.CountByCourse(ctx, session.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
		}
		return summarize(sessionID, enrolled, records), nil
	})
	return summary, err
}

// Update edits the status, notes or confidence of a record.
func (s *AttendanceService) Update(ctx context.Context, id string, req models.UpdateAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	record, err := s.findRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		record.Status = models.AttendanceStatus(strings.ToLower(string(*req.Status)))
	}
	if req.Notes != nil {
		record.Notes = req.Notes
	}
	if req.Confidence != nil {
		record.ConfidenceScore = req.Confidence
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	_ = s.cache.Invalidate(ctx, summaryKey(record.SessionID))
	s.publish(record.SessionID, EventAttendanceUpdated, record)
	return record, nil
}

// Delete removes a record.
func (s *AttendanceService) Delete(ctx context.Context, id string) error {
	record, err := s.findRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	_ = s.cache.Invalidate(ctx, summaryKey(record.SessionID))
	s.publish(record.SessionID, EventAttendanceDeleted, map[string]string{"id": id, "student_id": record.StudentID})
	return nil
}

// StudentHistory lists a student's records with session and course info.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, limit int) ([]models.AttendanceHistoryRow, error) {
	rows, err := s.repo.ListByStudent(ctx, studentID, clampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	if rows == nil {
		rows = []models.AttendanceHistoryRow{}
	}
	return rows, nil
}

func (s *AttendanceService) listSession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if records == nil {
		records = []models.AttendanceDetail{}
	}
	return records, nil
}

func (s *AttendanceService) findSession(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *AttendanceService) findRecord(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return record, nil
}

func (s *AttendanceService) publish(sessionID, event string, data interface{}) {
	if s.events != nil {
		s.events.Publish(sessionID, event, data)
	}
}

func summarize(sessionID string, enrolled int, records []models.AttendanceDetail) *models.AttendanceSummary {
	summary := &models.AttendanceSummary{
		SessionID:     sessionID,
		TotalEnrolled: enrolled,
		TotalPresent:  len(records),
		Attendance:    records,
	}
	for _, record := range records {
		switch record.AttendanceType {
		case models.AttendanceTypeOnsite:
			summary.OnsiteCount++
		case models.AttendanceTypeOnline:
			summary.OnlineCount++
		}
	}
	if absent := enrolled - summary.TotalPresent; absent > 0 {
		summary.AbsentCount = absent
	}
	if enrolled > 0 {
		summary.AttendanceRate = math.Round(float64(summary.TotalPresent)/float64(enrolled)*10000) / 100
	}
	return summary
}
