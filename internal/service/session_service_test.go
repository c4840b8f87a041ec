package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/internal/repository"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

const (
	testCourseID  = "3e1f4a6b-2c8d-4e0f-9a1b-2c3d4e5f6a7b"
	testSessionID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type mockSessionRepo struct {
	sessions  map[string]*models.SessionDetail
	createErr error
	endErr    error
	lastLimit int
}

func newMockSessionRepo(sessions ...*models.SessionDetail) *mockSessionRepo {
	repo := &mockSessionRepo{sessions: make(map[string]*models.SessionDetail)}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = "new-session"
	m.sessions[session.ID] = &models.SessionDetail{Session: *session, CourseCode: "CS101"}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := *s
	return &detail, nil
}

func (m *mockSessionRepo) FindByIDs(ctx context.Context, ids []string) ([]models.SessionDetail, error) {
	out := make([]models.SessionDetail, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) FindActiveByCourse(ctx context.Context, courseID string) (*models.SessionDetail, error) {
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.Status == models.SessionStatusActive {
			detail := *s
			return &detail, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) ListByCourse(ctx context.Context, courseID string, limit int) ([]models.SessionDetail, error) {
	m.lastLimit = limit
	return nil, nil
}

func (m *mockSessionRepo) ListCompleted(ctx context.Context, professorID string, limit int) ([]models.SessionDetail, error) {
	m.lastLimit = limit
	return nil, nil
}

func (m *mockSessionRepo) End(ctx context.Context, id string, endTime time.Time) error {
	if m.endErr != nil {
		return m.endErr
	}
	s := m.sessions[id]
	s.Status = models.SessionStatusCompleted
	s.EndTime = &endTime
	return nil
}

func (m *mockSessionRepo) SetMeeting(ctx context.Context, id, meetingID string) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.MeetingID = &meetingID
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.sessions, id)
	return nil
}

type recordedEvent struct {
	SessionID string
	Event     string
	Data      interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) Publish(sessionID, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{SessionID: sessionID, Event: event, Data: data})
}

func activeSession() *models.SessionDetail {
	return &models.SessionDetail{Session: models.Session{ID: testSessionID, CourseID: testCourseID, Status: models.SessionStatusActive}, CourseCode: "CS101"}
}

func newTestSessionService(repo *mockSessionRepo, events EventPublisher) *SessionService {
	courses := newMockCourseRepo(&models.CourseDetail{Course: models.Course{ID: testCourseID, CourseCode: "CS101"}})
	svc := NewSessionService(repo, courses, newMockAttendanceRepo(), events, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestSessionServiceStart(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestSessionService(repo, nil)

	session, err := svc.Start(context.Background(), models.StartSessionRequest{CourseID: testCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), session.SessionDate)

	_, err = svc.Start(context.Background(), models.StartSessionRequest{CourseID: testCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceStartDatesFromUTCClock(t *testing.T) {
	svc := newTestSessionService(newMockSessionRepo(), nil)
	eastern := time.FixedZone("UTC-5", -5*60*60)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 23, 30, 0, 0, eastern) }

	session, err := svc.Start(context.Background(), models.StartSessionRequest{CourseID: testCourseID})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), session.SessionDate)
	assert.Equal(t, session.SessionDate.Format("2006-01-02"), session.StartTime.UTC().Format("2006-01-02"))
}

func TestSessionServiceStartErrors(t *testing.T) {
	svc := newTestSessionService(newMockSessionRepo(), nil)

	_, err := svc.Start(context.Background(), models.StartSessionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Start(context.Background(), models.StartSessionRequest{CourseID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	raced := newMockSessionRepo()
	raced.createErr = repository.ErrDuplicate
	svc = newTestSessionService(raced, nil)
	_, err = svc.Start(context.Background(), models.StartSessionRequest{CourseID: testCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceEnd(t *testing.T) {
	repo := newMockSessionRepo(activeSession())
	events := &fakePublisher{}
	svc := newTestSessionService(repo, events)

	ended, err := svc.End(context.Background(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, ended.Status)
	require.NotNil(t, ended.EndTime)
	require.Len(t, events.events, 1)
	assert.Equal(t, EventSessionEnded, events.events[0].Event)

	_, err = svc.End(context.Background(), testSessionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionClosed.Code, appErrors.FromError(err).Code)

	_, err = svc.End(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceActiveReturnsNil(t *testing.T) {
	svc := newTestSessionService(newMockSessionRepo(), nil)
	session, err := svc.Active(context.Background(), testCourseID)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionServiceGetIncludesAttendance(t *testing.T) {
	repo := newMockSessionRepo(activeSession())
	attendance := newMockAttendanceRepo()
	attendance.details = []models.AttendanceDetail{{AttendanceRecord: models.AttendanceRecord{ID: "r1", SessionID: testSessionID}}}
	svc := NewSessionService(repo, newMockCourseRepo(), attendance, nil, nil, nil, nil)

	session, err := svc.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Len(t, session.Attendance, 1)
}

func TestSessionServiceHistoryClampsLimit(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestSessionService(repo, nil)

	sessions, err := svc.History(context.Background(), testCourseID, 0)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Equal(t, 50, repo.lastLimit)

	_, err = svc.History(context.Background(), testCourseID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 200, repo.lastLimit)

	_, err = svc.Completed(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastLimit)

	_, err = svc.Completed(context.Background(), "", 9999)
	require.NoError(t, err)
	assert.Equal(t, 500, repo.lastLimit)
}

func TestSessionServiceLinkMeetingAndDelete(t *testing.T) {
	repo := newMockSessionRepo(activeSession())
	svc := newTestSessionService(repo, nil)

	session, err := svc.LinkMeeting(context.Background(), testSessionID, models.LinkMeetingRequest{MeetingID: "MSo1N2Y5"})
	require.NoError(t, err)
	require.NotNil(t, session.MeetingID)
	assert.Equal(t, "MSo1N2Y5", *session.MeetingID)

	_, err = svc.LinkMeeting(context.Background(), "missing", models.LinkMeetingRequest{MeetingID: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), testSessionID))
	err = svc.Delete(context.Background(), testSessionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
