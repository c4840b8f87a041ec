package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/storage"
)

func newTestCheckInService(sessions *mockSessionRepo, attendance *mockAttendanceRepo, enrolled bool, signer *storage.SignedURLSigner) *CheckInService {
	recorder := newTestAttendanceService(sessions, attendance, 1, nil, nil)
	return NewCheckInService(sessions, &mockEnrollmentRepo{exists: enrolled}, recorder, signer, CheckInConfig{
		ScanURL:         "https://attendease.example.edu/scan?src=qr",
		DefaultDuration: 5 * time.Minute,
		MaxDuration:     time.Hour,
		ImageSize:       128,
	}, nil, nil)
}

func TestCheckInServiceGenerate(t *testing.T) {
	signer := storage.NewSignedURLSigner("checkin-secret", time.Hour)
	svc := newTestCheckInService(newMockSessionRepo(activeSession()), newMockAttendanceRepo(), true, signer)

	code, err := svc.Generate(context.Background(), models.GenerateCheckInRequest{SessionID: testSessionID, Duration: 10})
	require.NoError(t, err)
	assert.Equal(t, testSessionID, code.SessionID)
	assert.Equal(t, 10, code.Duration)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), code.ExpiresAt, 5*time.Second)

	scan, err := url.Parse(code.ScanURL)
	require.NoError(t, err)
	assert.Equal(t, "/scan", scan.Path)
	assert.Equal(t, "qr", scan.Query().Get("src"))
	assert.Equal(t, code.Token, scan.Query().Get("token"))

	require.True(t, strings.HasPrefix(code.QRCodeURL, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(code.QRCodeURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	signed, err := signer.Parse(code.Token, false)
	require.NoError(t, err)
	assert.Equal(t, testSessionID, signed.ExportID)
	assert.Equal(t, checkInScope, signed.Path)
}

func TestCheckInServiceGenerateErrors(t *testing.T) {
	signer := storage.NewSignedURLSigner("checkin-secret", time.Hour)
	completed := activeSession()
	completed.Status = models.SessionStatusCompleted
	svc := newTestCheckInService(newMockSessionRepo(completed), newMockAttendanceRepo(), true, signer)
	ctx := context.Background()

	_, err := svc.Generate(ctx, models.GenerateCheckInRequest{SessionID: "not-a-uuid"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(ctx, models.GenerateCheckInRequest{SessionID: testSessionID, Duration: 90})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(ctx, models.GenerateCheckInRequest{SessionID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(ctx, models.GenerateCheckInRequest{SessionID: testSessionID})
	assert.Equal(t, appErrors.ErrSessionClosed.Code, appErrors.FromError(err).Code)
}

func TestCheckInServiceCheckIn(t *testing.T) {
	signer := storage.NewSignedURLSigner("checkin-secret", time.Hour)
	attendance := newMockAttendanceRepo()
	svc := newTestCheckInService(newMockSessionRepo(activeSession()), attendance, true, signer)
	ctx := context.Background()

	code, err := svc.Generate(ctx, models.GenerateCheckInRequest{SessionID: testSessionID})
	require.NoError(t, err)

	record, err := svc.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: " " + code.Token + " "})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceTypeOnsite, record.AttendanceType)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	require.NotNil(t, record.Notes)
	assert.Equal(t, "qr check-in", *record.Notes)

	again, err := svc.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: code.Token})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyRecorded)
	require.NotNil(t, again)
	assert.Equal(t, 1, attendance.count())
}

func TestCheckInServiceCheckInRejects(t *testing.T) {
	signer := storage.NewSignedURLSigner("checkin-secret", time.Hour)
	ctx := context.Background()

	notEnrolled := newTestCheckInService(newMockSessionRepo(activeSession()), newMockAttendanceRepo(), false, signer)
	code, err := notEnrolled.Generate(ctx, models.GenerateCheckInRequest{SessionID: testSessionID})
	require.NoError(t, err)
	_, err = notEnrolled.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: code.Token})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	svc := newTestCheckInService(newMockSessionRepo(activeSession()), newMockAttendanceRepo(), true, signer)
	_, err = svc.CheckIn(ctx, testStudentID, models.CheckInRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: "garbage"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	exportToken, _, err := signer.Generate(testSessionID, "exp/attendance_bulk.csv")
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: exportToken})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Equal(t, "invalid check-in code", appErr.Message)

	// expiry is truncated to the second, so a nanosecond lifetime is already past
	expired, _, err := signer.GenerateWithTTL(testSessionID, checkInScope, time.Nanosecond)
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, testStudentID, models.CheckInRequest{Token: expired})
	assert.Equal(t, "check-in code expired", appErrors.FromError(err).Message)
}
