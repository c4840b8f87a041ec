package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/recognition"
)

const recognitionNotRunning = "Facial recognition service is not running. Please start it with: python facial_recognition_service.py"

type recognitionClient interface {
	Forward(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error)
	ProcessFrame(ctx context.Context, frame string) (*recognition.FrameResult, error)
}

type courseRosterReader interface {
	Get(ctx context.Context, id string) (*models.CourseWithStudents, error)
}

// RecognitionService proxies camera control and frame processing to the
// recognition service and turns confirmed faces into onsite attendance.
type RecognitionService struct {
	client    recognitionClient
	sessions  sessionReader
	courses   courseRosterReader
	recorder  attendanceRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecognitionService constructs the recognition proxy.
func NewRecognitionService(client recognitionClient, sessions sessionReader, courses courseRosterReader, recorder attendanceRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RecognitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecognitionService{client: client, sessions: sessions, courses: courses, recorder: recorder, metrics: metrics, validator: validate, logger: logger}
}

// Cameras lists the cameras attached to the recognition host.
func (s *RecognitionService) Cameras(ctx context.Context) (json.RawMessage, error) {
	return s.forward(ctx, http.MethodGet, "camera/list", nil)
}

// CameraStatus reports whether the camera is running.
func (s *RecognitionService) CameraStatus(ctx context.Context) (json.RawMessage, error) {
	return s.forward(ctx, http.MethodGet, "camera/status", nil)
}

// StartCamera starts capture on the selected camera.
func (s *RecognitionService) StartCamera(ctx context.Context, req models.StartCameraRequest) (json.RawMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid camera payload")
	}
	return s.forward(ctx, http.MethodPost, "camera/start", req)
}

// StopCamera stops capture.
func (s *RecognitionService) StopCamera(ctx context.Context) (json.RawMessage, error) {
	return s.forward(ctx, http.MethodPost, "camera/stop", nil)
}

// Frame returns the latest annotated camera frame.
func (s *RecognitionService) Frame(ctx context.Context) (json.RawMessage, error) {
	return s.forward(ctx, http.MethodGet, "camera/frame", nil)
}

// ClearTrackers resets the face trackers.
func (s *RecognitionService) ClearTrackers(ctx context.Context) (json.RawMessage, error) {
	return s.forward(ctx, http.MethodPost, "clear-trackers", nil)
}

// ProcessFrame runs detection on an uploaded frame. When the request names an
// active session, confirmed faces matching enrolled students are recorded.
func (s *RecognitionService) ProcessFrame(ctx context.Context, req models.ProcessFrameRequest) (*models.ProcessFrameResponse, error) {
	req.Frame = strings.TrimSpace(req.Frame)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "No frame data provided")
	}

	start := time.Now()
	result, err := s.client.ProcessFrame(ctx, req.Frame)
	s.metrics.ObserveUpstream("recognition", err, time.Since(start))
	if err != nil {
		return nil, mapRecognitionError(err)
	}
	s.metrics.RecordFrame()

	resp := &models.ProcessFrameResponse{
		DetectedFaces: make([]models.DetectedFace, 0, len(result.DetectedFaces)),
		TotalFaces:    result.TotalFaces,
		Recorded:      []string{},
	}
	for _, face := range result.DetectedFaces {
		resp.DetectedFaces = append(resp.DetectedFaces, models.DetectedFace{
			ID:          face.ID,
			Name:        face.Name,
			Confidence:  face.Confidence,
			IsConfirmed: face.IsConfirmed,
			Location: models.FaceLocation{
				Top:    face.Location.Top,
				Right:  face.Location.Right,
				Bottom: face.Location.Bottom,
				Left:   face.Location.Left,
			},
		})
	}

	if req.SessionID != nil && *req.SessionID != "" {
		resp.Recorded = s.recordFaces(ctx, *req.SessionID, resp.DetectedFaces)
	}
	return resp, nil
}

func (s *RecognitionService) recordFaces(ctx context.Context, sessionID string, faces []models.DetectedFace) []string {
	recorded := []string{}
	candidates := make([]models.DetectedFace, 0, len(faces))
	for _, face := range faces {
		if face.IsConfirmed && face.Name != "" && !strings.EqualFold(face.Name, "unknown") {
			candidates = append(candidates, face)
		}
	}
	if len(candidates) == 0 {
		return recorded
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		s.logger.Warn("frame session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return recorded
	}
	if session.Status != models.SessionStatusActive {
		return recorded
	}
	course, err := s.courses.Get(ctx, session.CourseID)
	if err != nil {
		s.logger.Warn("frame roster lookup failed", zap.String("course_id", session.CourseID), zap.Error(err))
		return recorded
	}
	byName := make(map[string]string, len(course.Students))
	for _, student := range course.Students {
		byName[strings.ToLower(strings.TrimSpace(student.FullName))] = student.ID
	}

	for _, face := range candidates {
		studentID, ok := byName[strings.ToLower(strings.TrimSpace(face.Name))]
		if !ok {
			continue
		}
		confidence := face.Confidence
		_, err := s.recorder.Record(ctx, models.RecordAttendanceRequest{
			SessionID:  sessionID,
			StudentID:  studentID,
			Type:       models.AttendanceTypeOnsite,
			Confidence: &confidence,
		})
		switch {
		case err == nil:
			recorded = append(recorded, studentID)
		case errors.Is(err, appErrors.ErrAlreadyRecorded):
		default:
			s.logger.Warn("failed to record recognized face", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return recorded
}

func (s *RecognitionService) forward(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	start := time.Now()
	raw, err := s.client.Forward(ctx, method, path, payload)
	s.metrics.ObserveUpstream("recognition", err, time.Since(start))
	if err != nil {
		return nil, mapRecognitionError(err)
	}
	return raw, nil
}

func mapRecognitionError(err error) error {
	if errors.Is(err, recognition.ErrUnavailable) {
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, recognitionNotRunning)
	}
	var upstream *recognition.UpstreamError
	if errors.As(err, &upstream) {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, upstream.StatusCode, "Recognition service error: "+upstream.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Connection error: "+err.Error())
}
