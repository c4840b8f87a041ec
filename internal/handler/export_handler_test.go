package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/service"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

type fakeExportService struct {
	bulkReq models.BulkExportRequest
}

func (f *fakeExportService) SessionCSV(_ context.Context, sessionID string) (*models.ExportFile, error) {
	if sessionID != "s1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
	}
	return &models.ExportFile{Filename: "attendance_CS101_2026-03-02.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("\"Student ID\"\n")}, nil
}

func (f *fakeExportService) SessionPDF(context.Context, string) (*models.ExportFile, error) {
	return &models.ExportFile{Filename: "attendance_CS101_2026-03-02.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}, nil
}

func (f *fakeExportService) SessionSummary(_ context.Context, sessionID string) (*models.SessionSummary, error) {
	return &models.SessionSummary{SessionID: sessionID, SessionTime: "09:00 - Ongoing", TotalPresent: 3}, nil
}

func (f *fakeExportService) BulkCSV(_ context.Context, req models.BulkExportRequest) (*models.ExportFile, int, error) {
	f.bulkReq = req
	return &models.ExportFile{Filename: "attendance_bulk_2026-03-02.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("x")}, len(req.SessionIDs), nil
}

func (f *fakeExportService) BulkLink(_ context.Context, req models.BulkExportRequest) (*models.ExportLink, error) {
	return &models.ExportLink{ExportID: "abc", URL: "/api/v1/export/download/tok", ExpiresAt: time.Now().Add(time.Hour), SessionCount: len(req.SessionIDs)}, nil
}

func (f *fakeExportService) Download(token string) (*service.ExportDownload, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
	}
	return &service.ExportDownload{Filename: "bulk.csv", ContentType: "text/csv; charset=utf-8", Body: io.NopCloser(strings.NewReader("a,b\n"))}, nil
}

func exportRouter(svc *fakeExportService) http.Handler {
	h := NewExportHandler(svc)
	r := testRouter(models.RoleProfessor, "prof-1")
	r.GET("/export/session/:sessionId/csv", h.SessionCSV)
	r.GET("/export/session/:sessionId/pdf", h.SessionPDF)
	r.GET("/export/session/:sessionId/summary", h.SessionSummary)
	r.POST("/export/bulk/csv", h.BulkCSV)
	r.POST("/export/bulk/link", h.BulkLink)
	r.GET("/export/download/:token", h.Download)
	return r
}

func TestExportHandlerSessionCSV(t *testing.T) {
	r := exportRouter(&fakeExportService{})

	w := doJSON(r, http.MethodGet, "/export/session/s1/csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="attendance_CS101_2026-03-02.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "\"Student ID\"\n", w.Body.String())

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/export/session/nope/csv", nil).Code)
}

func TestExportHandlerSessionPDFAndSummary(t *testing.T) {
	r := exportRouter(&fakeExportService{})

	w := doJSON(r, http.MethodGet, "/export/session/s1/pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = doJSON(r, http.MethodGet, "/export/session/s1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"session_time":"09:00 - Ongoing"`)
}

func TestExportHandlerBulk(t *testing.T) {
	svc := &fakeExportService{}
	r := exportRouter(svc)

	w := doJSON(r, http.MethodPost, "/export/bulk/csv", map[string][]string{"session_ids": {"s1", "s2"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Session-Count"))
	assert.Equal(t, []string{"s1", "s2"}, svc.bulkReq.SessionIDs)

	w = doJSON(r, http.MethodPost, "/export/bulk/csv", "[")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "sessionIds array is required", decodeEnvelope(t, w).Message)

	w = doJSON(r, http.MethodPost, "/export/bulk/link", map[string][]string{"session_ids": {"s1"}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"url":"/api/v1/export/download/tok"`)
}

func TestExportHandlerDownload(t *testing.T) {
	r := exportRouter(&fakeExportService{})

	w := doJSON(r, http.MethodGet, "/export/download/good", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="bulk.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "a,b\n", w.Body.String())

	w = doJSON(r, http.MethodGet, "/export/download/bad", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "download link expired", decodeEnvelope(t, w).Message)
}
