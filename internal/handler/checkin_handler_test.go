package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

type fakeCheckInService struct {
	generated models.GenerateCheckInRequest
	studentID string
	existing  *models.AttendanceRecord
}

func (f *fakeCheckInService) Generate(_ context.Context, req models.GenerateCheckInRequest) (*models.CheckInCode, error) {
	f.generated = req
	if req.SessionID == "closed" {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "cannot issue a check-in code for a completed session")
	}
	return &models.CheckInCode{
		SessionID: req.SessionID,
		Token:     "tok",
		ScanURL:   "http://localhost:3000/scan?token=tok",
		QRCodeURL: "data:image/png;base64,AAAA",
		Duration:  req.Duration,
		ExpiresAt: time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC),
	}, nil
}

func (f *fakeCheckInService) CheckIn(_ context.Context, studentID string, req models.CheckInRequest) (*models.AttendanceRecord, error) {
	f.studentID = studentID
	switch {
	case req.Token == "expired":
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "check-in code expired")
	case f.existing != nil:
		return f.existing, appErrors.Clone(appErrors.ErrAlreadyRecorded, "")
	}
	return &models.AttendanceRecord{ID: "a1", StudentID: studentID, AttendanceType: models.AttendanceTypeOnsite}, nil
}

func TestCheckInHandlerGenerate(t *testing.T) {
	svc := &fakeCheckInService{}
	h := NewCheckInHandler(svc)
	r := testRouter(models.RoleProfessor, "prof-1")
	r.POST("/attendance/qr", h.Generate)

	w := doJSON(r, http.MethodPost, "/attendance/qr", map[string]interface{}{"session_id": "s1", "duration": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.generated.Duration)

	var code models.CheckInCode
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &code))
	assert.Equal(t, "data:image/png;base64,AAAA", code.QRCodeURL)
	assert.Equal(t, "tok", code.Token)

	assert.Equal(t, http.StatusConflict, doJSON(r, http.MethodPost, "/attendance/qr", map[string]string{"session_id": "closed"}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/attendance/qr", "{").Code)
}

func TestCheckInHandlerCheckIn(t *testing.T) {
	svc := &fakeCheckInService{}
	h := NewCheckInHandler(svc)
	r := testRouter(models.RoleStudent, "stu-1")
	r.POST("/attendance/qr/check-in", h.CheckIn)

	w := doJSON(r, http.MethodPost, "/attendance/qr/check-in", map[string]string{"token": "tok"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "stu-1", svc.studentID)

	w = doJSON(r, http.MethodPost, "/attendance/qr/check-in", map[string]string{"token": "expired"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "check-in code expired", decodeEnvelope(t, w).Message)

	svc.existing = &models.AttendanceRecord{ID: "a0"}
	w = doJSON(r, http.MethodPost, "/attendance/qr/check-in", map[string]string{"token": "tok"})
	require.Equal(t, http.StatusConflict, w.Code)
	var data models.AttendanceConflict
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	require.NotNil(t, data.ExistingRecord)
	assert.Equal(t, "a0", data.ExistingRecord.ID)
}

func TestCheckInHandlerRequiresClaims(t *testing.T) {
	h := NewCheckInHandler(&fakeCheckInService{})
	r := testRouter("", "")
	r.POST("/attendance/qr/check-in", h.CheckIn)

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/attendance/qr/check-in", map[string]string{"token": "tok"}).Code)
}
