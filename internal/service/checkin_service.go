package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/storage"
)

// checkInScope is signed into every token so export links cannot be replayed as check-ins.
const checkInScope = "checkin"

type checkInSigner interface {
	GenerateWithTTL(id, relPath string, ttl time.Duration) (string, time.Time, error)
	Parse(token string, allowExpired bool) (*storage.SignedFile, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, courseID, studentID string) (bool, error)
}

// CheckInConfig tunes generated codes.
type CheckInConfig struct {
	ScanURL         string
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	ImageSize       int
}

// CheckInService issues QR check-in codes for active sessions and records
// onsite attendance when a student redeems one.
type CheckInService struct {
	sessions    sessionReader
	enrollments enrollmentChecker
	recorder    attendanceRecorder
	signer      checkInSigner
	cfg         CheckInConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCheckInService wires the service.
func NewCheckInService(sessions sessionReader, enrollments enrollmentChecker, recorder attendanceRecorder, signer checkInSigner, cfg CheckInConfig, validate *validator.Validate, logger *zap.Logger) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 5 * time.Minute
	}
	if cfg.MaxDuration < cfg.DefaultDuration {
		cfg.MaxDuration = cfg.DefaultDuration
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 256
	}
	return &CheckInService{
		sessions:    sessions,
		enrollments: enrollments,
		recorder:    recorder,
		signer:      signer,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
	}
}

// Generate signs a code for the session and renders it as a PNG data URL.
func (s *CheckInService) Generate(ctx context.Context, req models.GenerateCheckInRequest) (*models.CheckInCode, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	ttl := s.cfg.DefaultDuration
	if req.Duration > 0 {
		ttl = time.Duration(req.Duration) * time.Minute
	}
	if ttl > s.cfg.MaxDuration {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must not exceed %d minutes", int(s.cfg.MaxDuration/time.Minute)))
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "cannot issue a check-in code for a completed session")
	}

	token, expiresAt, err := s.signer.GenerateWithTTL(session.ID, checkInScope, ttl)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign check-in code")
	}
	scanURL, err := s.scanURL(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid scan url")
	}
	png, err := qrcode.Encode(scanURL, qrcode.Medium, s.cfg.ImageSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render check-in code")
	}

	s.logger.Info("check-in code generated",
		zap.String("session_id", session.ID),
		zap.Duration("duration", ttl),
		zap.Time("expires_at", expiresAt),
	)

	return &models.CheckInCode{
		SessionID: session.ID,
		Token:     token,
		ScanURL:   scanURL,
		QRCodeURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Duration:  int(ttl / time.Minute),
		ExpiresAt: expiresAt,
	}, nil
}

// CheckIn redeems a scanned token for the student. A duplicate returns the
// existing record alongside ErrAlreadyRecorded.
func (s *CheckInService) CheckIn(ctx context.Context, studentID string, req models.CheckInRequest) (*models.AttendanceRecord, error) {
	req.Token = strings.TrimSpace(req.Token)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "check-in token is required")
	}

	signed, err := s.signer.Parse(req.Token, false)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "check-in code expired")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid check-in code")
	case signed.Path != checkInScope:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid check-in code")
	}

	session, err := s.loadSession(ctx, signed.ExportID)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.enrollments.Exists(ctx, session.CourseID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
	}

	notes := "qr check-in"
	record, err := s.recorder.Record(ctx, models.RecordAttendanceRequest{
		SessionID: session.ID,
		StudentID: studentID,
		Type:      models.AttendanceTypeOnsite,
		Status:    models.AttendanceStatusPresent,
		Notes:     &notes,
	})
	if err != nil {
		return record, err
	}
	s.logger.Info("qr check-in recorded", zap.String("session_id", session.ID), zap.String("student_id", studentID))
	return record, nil
}

func (s *CheckInService) loadSession(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *CheckInService) scanURL(token string) (string, error) {
	u, err := url.Parse(s.cfg.ScanURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
