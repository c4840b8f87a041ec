package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/export"
	"github.com/noah-isme/attendease-api/pkg/storage"
)

const (
	checkInLayout  = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04"
	contentTypeCSV = "text/csv; charset=utf-8"
	contentTypePDF = "application/pdf"
)

var sessionExportHeaders = []string{"Student ID", "Student Name", "Email", "Attendance Type", "Status", "Check-in Time", "Confidence Score"}

type exportSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.SessionDetail, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.SessionDetail, error)
}

type exportAttendanceReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
	ListBySessions(ctx context.Context, sessionIDs []string) ([]models.AttendanceDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitle ...string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is an opened stored export. Callers must close Body.
type ExportDownload struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// ExportService renders attendance exports and manages stored bulk files.
type ExportService struct {
	sessions   exportSessionReader
	attendance exportAttendanceReader
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sessions exportSessionReader, attendance exportAttendanceReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sessions:   sessions,
		attendance: attendance,
		storage:    store,
		csv:        csv,
		pdf:        pdf,
		signer:     signer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SessionCSV renders the attendance of one session.
func (s *ExportService) SessionCSV(ctx context.Context, sessionID string) (*models.ExportFile, error) {
	session, records, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(sessionDataset(records))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &models.ExportFile{
		Filename:    sessionFilename(session, "csv"),
		ContentType: contentTypeCSV,
		Body:        payload,
	}, nil
}

// SessionPDF renders the attendance of one session as a printable table.
func (s *ExportService) SessionPDF(ctx context.Context, sessionID string) (*models.ExportFile, error) {
	session, records, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%s - %s", session.CourseCode, session.CourseName)
	subtitle := []string{
		fmt.Sprintf("Section %s, %s, %s", session.Section, session.StartTime.UTC().Format(dateLayout), sessionTimeRange(session)),
		fmt.Sprintf("%d students recorded", len(records)),
	}
	payload, err := s.pdf.Render(sessionDataset(records), title, subtitle...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &models.ExportFile{
		Filename:    sessionFilename(session, "pdf"),
		ContentType: contentTypePDF,
		Body:        payload,
	}, nil
}

// SessionSummary builds the report view of a session.
func (s *ExportService) SessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	session, records, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := &models.SessionSummary{
		SessionID:    session.ID,
		CourseCode:   session.CourseCode,
		CourseName:   session.CourseName,
		Section:      session.Section,
		SessionDate:  session.StartTime.UTC().Format(dateLayout),
		SessionTime:  sessionTimeRange(session),
		TotalPresent: len(records),
		Attendance:   make([]models.SessionSummaryRow, 0, len(records)),
	}
	for _, record := range records {
		switch record.AttendanceType {
		case models.AttendanceTypeOnsite:
			summary.OnsiteCount++
		case models.AttendanceTypeOnline:
			summary.OnlineCount++
		}
		summary.Attendance = append(summary.Attendance, models.SessionSummaryRow{
			StudentID:   studentIdentifier(record),
			StudentName: record.StudentName,
			Email:       record.StudentEmail,
			Type:        string(record.AttendanceType),
			Status:      string(record.Status),
			CheckInTime: record.CheckInTime,
			Confidence:  record.ConfidenceScore,
		})
	}
	return summary, nil
}

// BulkCSV renders the attendance of several sessions into one file. Unknown ids are skipped.
func (s *ExportService) BulkCSV(ctx context.Context, req models.BulkExportRequest) (*models.ExportFile, int, error) {
	payload, count, err := s.renderBulk(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return &models.ExportFile{
		Filename:    fmt.Sprintf("attendance_bulk_%s.csv", s.now().UTC().Format(dateLayout)),
		ContentType: contentTypeCSV,
		Body:        payload,
	}, count, nil
}

// BulkLink stores a bulk export and returns a signed download URL for it.
func (s *ExportService) BulkLink(ctx context.Context, req models.BulkExportRequest) (*models.ExportLink, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export storage not configured")
	}
	payload, count, err := s.renderBulk(ctx, req)
	if err != nil {
		return nil, err
	}

	exportID := strings.ReplaceAll(uuid.NewString(), "-", "")
	filename := fmt.Sprintf("attendance_bulk_%s.csv", s.now().UTC().Format(dateLayout))
	relPath, err := s.storage.Save(exportID+"/"+filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("bulk export stored", zap.String("export_id", exportID), zap.Int("sessions", count))
	return &models.ExportLink{
		ExportID:     exportID,
		Filename:     filename,
		URL:          fmt.Sprintf("%s/export/download/%s", prefix, token),
		ExpiresAt:    expiresAt,
		SessionCount: count,
	}, nil
}

// Download opens the stored export referenced by a signed token.
func (s *ExportService) Download(token string) (*ExportDownload, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export storage not configured")
	}
	file, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	body, err := s.storage.Open(file.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	return &ExportDownload{Filename: pathBase(file.Path), ContentType: contentTypeCSV, Body: body}, nil
}

// Cleanup removes stored exports older than ttl (the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Cleanup(0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("export cleanup", zap.Int("deleted", len(deleted)))
				}
			}
		}
	}()
}

func (s *ExportService) loadSession(ctx context.Context, sessionID string) (*models.SessionDetail, []models.AttendanceDetail, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	records, err := s.attendance.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return session, records, nil
}

func (s *ExportService) renderBulk(ctx context.Context, req models.BulkExportRequest) ([]byte, int, error) {
	if len(req.SessionIDs) == 0 {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "sessionIds array is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session ids")
	}
	sessions, err := s.sessions.FindByIDs(ctx, dedupe(req.SessionIDs))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	if len(sessions) == 0 {
		return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "No valid sessions found")
	}

	ids := make([]string, 0, len(sessions))
	byID := make(map[string]models.SessionDetail, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
		byID[session.ID] = session
	}
	records, err := s.attendance.ListBySessions(ctx, ids)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	grouped := make(map[string][]models.AttendanceDetail, len(sessions))
	for _, record := range records {
		grouped[record.SessionID] = append(grouped[record.SessionID], record)
	}
	dataset := export.Dataset{Headers: append([]string{"Course", "Section", "Session Date"}, sessionExportHeaders...)}
	for _, id := range ids {
		session := byID[id]
		for _, record := range grouped[id] {
			row := attendanceRow(record)
			row["Course"] = session.CourseCode
			row["Section"] = session.Section
			row["Session Date"] = session.StartTime.UTC().Format(dateLayout)
			dataset.Rows = append(dataset.Rows, row)
		}
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, len(sessions), nil
}

func sessionDataset(records []models.AttendanceDetail) export.Dataset {
	dataset := export.Dataset{Headers: sessionExportHeaders, Rows: make([]map[string]string, 0, len(records))}
	for _, record := range records {
		dataset.Rows = append(dataset.Rows, attendanceRow(record))
	}
	return dataset
}

func attendanceRow(record models.AttendanceDetail) map[string]string {
	confidence := "N/A"
	if record.ConfidenceScore != nil {
		confidence = fmt.Sprintf("%.2f", *record.ConfidenceScore)
	}
	return map[string]string{
		"Student ID":       studentIdentifier(record),
		"Student Name":     record.StudentName,
		"Email":            record.StudentEmail,
		"Attendance Type":  string(record.AttendanceType),
		"Status":           string(record.Status),
		"Check-in Time":    record.CheckInTime.UTC().Format(checkInLayout),
		"Confidence Score": confidence,
	}
}

// studentIdentifier prefers the institutional student number over the user id.
func studentIdentifier(record models.AttendanceDetail) string {
	if record.StudentNumber != nil && *record.StudentNumber != "" {
		return *record.StudentNumber
	}
	return record.StudentID
}

func sessionTimeRange(session *models.SessionDetail) string {
	end := "Ongoing"
	if session.EndTime != nil {
		end = session.EndTime.UTC().Format(clockLayout)
	}
	return fmt.Sprintf("%s - %s", session.StartTime.UTC().Format(clockLayout), end)
}

func sessionFilename(session *models.SessionDetail, ext string) string {
	return fmt.Sprintf("attendance_%s_%s.%s", sanitizeFilename(session.CourseCode), session.StartTime.UTC().Format(dateLayout), ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func pathBase(rel string) string {
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		return rel[idx+1:]
	}
	return rel
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
