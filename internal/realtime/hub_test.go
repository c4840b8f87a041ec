package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeStub struct {
	mu    sync.Mutex
	value int
}

func (g *gaugeStub) AddRealtimeClients(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += delta
}

func (g *gaugeStub) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func startHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
		if err := hub.Serve(w, r, sessionID, "user-1"); err != nil {
			t.Logf("serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubPublishesToSessionSubscribers(t *testing.T) {
	gauge := &gaugeStub{}
	hub := NewHub(nil, gauge, nil)
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "session-1")
	other := dial(t, srv, "session-2")
	require.Eventually(t, func() bool { return hub.Subscribers("session-1") == 1 && hub.Subscribers("session-2") == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return gauge.get() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish("session-1", "attendance.recorded", map[string]string{"student_id": "s1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event     string            `json:"event"`
		SessionID string            `json:"session_id"`
		Data      map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "attendance.recorded", msg.Event)
	assert.Equal(t, "session-1", msg.SessionID)
	assert.Equal(t, "s1", msg.Data["student_id"])

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	gauge := &gaugeStub{}
	hub := NewHub([]string{"*"}, gauge, nil)
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "session-1")
	require.Eventually(t, func() bool { return hub.Subscribers("session-1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Subscribers("session-1") == 0 && gauge.get() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("session-1", "session.ended", nil)
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := startHubServer(t, hub)

	dial(t, srv, "a")
	dial(t, srv, "b")
	require.Eventually(t, func() bool { return hub.Subscribers("a") == 1 && hub.Subscribers("b") == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers("a"))
	assert.Equal(t, 0, hub.Subscribers("b"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dashboard.example.edu"})

	req := httptest.NewRequest(http.MethodGet, "/ws/x", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://dashboard.example.edu")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
