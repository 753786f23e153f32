package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"doccraft-collab/internal/hub"
	"doccraft-collab/internal/middleware"
	"doccraft-collab/internal/service"
)

const closeHandshakeTimeout = 5 * time.Second

// WebSocketHandler is the Connection Gateway: it upgrades HTTP requests,
// validates the routing parameters, registers the session, and hands the
// socket to the document synchronization hub.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	presence *service.PresenceService

	// jwtSecret enables the optional identity check on upgrades when
	// non-empty. Empty means identity is taken from the query parameters
	// as-is (the upstream auth boundary is trusted).
	jwtSecret string
}

// NewWebSocketHandler creates a WebSocketHandler instance.
func NewWebSocketHandler(h *hub.Hub, presence *service.PresenceService, jwtSecret string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if presence == nil {
		panic("PresenceService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// TODO: restrict to the configured dashboard origin once the
			// front-end deployment settles on one.
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:  upgrader,
		hub:       h,
		presence:  presence,
		jwtSecret: jwtSecret,
	}
}

// HandleConnection handles a WebSocket upgrade request.
// Expected query parameters: roomId, userId, userName, optional userColor.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		logrus.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	query := c.Request.URL.Query()
	roomID := query.Get("roomId")
	userID := query.Get("userId")
	userName := query.Get("userName")
	userColor := query.Get("userColor")

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	// Required routing parameters. A malformed connection gets a policy
	// violation close and no session record.
	if roomID == "" || userID == "" || userName == "" {
		logCtx.Warn("WS Handler: missing required connection parameters, closing")
		h.closeWith(conn, websocket.ClosePolicyViolation, "roomId, userId and userName are required")
		return
	}

	if h.jwtSecret != "" {
		tokenUserID, err := middleware.ParseUserID(query.Get("token"), h.jwtSecret)
		if err != nil || tokenUserID != userID {
			logCtx.WithError(err).Warn("WS Handler: identity check failed, closing")
			h.closeWith(conn, websocket.ClosePolicyViolation, "invalid identity token")
			return
		}
	}

	// Register the session before binding, so presence queries already see
	// the user while the document handshake is in flight.
	if err := h.presence.Join(c.Request.Context(), roomID, userID, userName, userColor); err != nil {
		logCtx.WithError(err).Error("WS Handler: failed to register session")
		h.closeWith(conn, websocket.CloseInternalServerErr, "failed to register session")
		return
	}

	// One-time handoff: from here the hub owns the socket and relays all
	// document frames for the room.
	if !h.hub.Bind(conn, roomID, userID) {
		logCtx.Error("WS Handler: hub rejected client registration")
		h.presence.OnSocketClose(c.Request.Context(), roomID, userID)
		h.closeWith(conn, websocket.CloseTryAgainLater, "server busy")
		return
	}
	logCtx.Info("WS Handler: client bound to document sync")
}

// closeWith sends a close frame with the given code and closes the socket.
func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(closeHandshakeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
