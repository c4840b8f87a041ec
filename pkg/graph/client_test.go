package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestAttendanceReportPicksNewest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/org-1/onlineMeetings/meet-1/attendanceReports", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[
			{"id":"old","meetingEndDateTime":"2024-03-01T09:00:00Z"},
			{"id":"new","meetingEndDateTime":"2024-03-08T09:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/users/org-1/onlineMeetings/meet-1/attendanceReports/new/attendanceRecords", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{
			"emailAddress":"ana@school.edu","role":"Attendee","totalAttendanceInSeconds":1800,
			"identity":{"displayName":"Ana Cruz"},
			"attendanceIntervals":[{"joinDateTime":"2024-03-08T08:00:00Z","leaveDateTime":null,"durationInSeconds":1800}]
		}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithHTTPClient(srv.URL+"/", "org-1", srv.Client())
	report, err := client.LatestAttendanceReport(context.Background(), "meet-1")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "new", report.ID)
	require.Len(t, report.AttendanceRecords, 1)
	rec := report.AttendanceRecords[0]
	assert.Equal(t, "Ana Cruz", rec.Identity.DisplayName)
	assert.Equal(t, 1800, rec.TotalAttendanceInSeconds)
	require.Len(t, rec.AttendanceIntervals, 1)
	assert.Nil(t, rec.AttendanceIntervals[0].LeaveDateTime)
}

func TestLatestAttendanceReportEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	report, err := NewWithHTTPClient(srv.URL, "org-1", srv.Client()).LatestAttendanceReport(context.Background(), "meet-1")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestLatestAttendanceReportMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"Forbidden","message":"Missing OnlineMeetingArtifact.Read.All"}}`))
	}))
	defer srv.Close()

	_, err := NewWithHTTPClient(srv.URL, "org-1", srv.Client()).LatestAttendanceReport(context.Background(), "meet-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Forbidden", apiErr.Code)
}
