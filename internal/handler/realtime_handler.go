package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type sessionLookup interface {
	Get(ctx context.Context, id string) (*models.SessionWithAttendance, error)
}

type websocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID, userID string) error
}

// RealtimeHandler upgrades session feeds to websockets.
type RealtimeHandler struct {
	hub      websocketServer
	sessions sessionLookup
	logger   *zap.Logger
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(hub websocketServer, sessions sessionLookup, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, sessions: sessions, logger: logger}
}

// Subscribe godoc
// @Summary Session event stream
// @Description Websocket pushing {event, data} messages for the session; token query parameter carries the access token
// @Tags Realtime
// @Param id path string true "Session ID"
// @Param token query string true "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /ws/sessions/{id} [get]
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	// feeds carry attendance records and participant emails
	if claims.Role != models.RoleProfessor && claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "session feeds are limited to staff"))
		return
	}
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, sessionID, claims.UserID); err != nil {
		// the upgrader has already written the handshake failure
		h.logger.Debug("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
