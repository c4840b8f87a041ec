// Package realtime fans session events out to websocket subscribers.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Message is the envelope pushed to subscribers.
type Message struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type clientGauge interface {
	AddRealtimeClients(delta int)
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan Message
	once      sync.Once
}

// Hub keeps websocket subscribers grouped by session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	metrics  clientGauge
	logger   *zap.Logger
}

// NewHub constructs a hub. allowedOrigins empty or containing "*" accepts every origin.
func NewHub(allowedOrigins []string, metrics clientGauge, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sessions: make(map[string]map[*client]struct{}),
		metrics:  metrics,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Serve upgrades the request and subscribes the connection to the session feed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, sessionID: sessionID, userID: userID, send: make(chan Message, sendBuffer)}
	h.register(c)
	go c.writePump()
	go c.readPump()
	return nil
}

// Publish broadcasts an event to every subscriber of the session. Slow subscribers are dropped.
func (h *Hub) Publish(sessionID, event string, data interface{}) {
	msg := Message{Event: event, SessionID: sessionID, Data: data, Timestamp: time.Now().UTC()}

	var slow []*client
	h.mu.RLock()
	for c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("realtime subscriber too slow, dropping", zap.String("session_id", sessionID), zap.String("user_id", c.userID))
		h.unregister(c)
	}
}

// Subscribers returns the number of connections listening to the session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0)
	for _, clients := range h.sessions {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.sessionID]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[c.sessionID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.AddRealtimeClients(1)
	}
	h.logger.Debug("realtime client connected", zap.String("session_id", c.sessionID), zap.String("user_id", c.userID))
}

func (h *Hub) unregister(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		if clients, ok := h.sessions[c.sessionID]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.sessions, c.sessionID)
			}
		}
		// closed under the write lock so Publish never sends on a closed channel
		close(c.send)
		h.mu.Unlock()

		if h.metrics != nil {
			h.metrics.AddRealtimeClients(-1)
		}
		h.logger.Debug("realtime client disconnected", zap.String("session_id", c.sessionID), zap.String("user_id", c.userID))
	})
}

// readPump only watches for close frames and pongs; clients never send events.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("realtime read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
