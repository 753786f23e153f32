package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"doccraft-collab/internal/service"
)

// PresenceHandler exposes room occupancy over HTTP, independent of any live
// socket.
type PresenceHandler struct {
	presence *service.PresenceService
}

// NewPresenceHandler creates a PresenceHandler instance.
func NewPresenceHandler(presence *service.PresenceService) *PresenceHandler {
	if presence == nil {
		panic("PresenceService cannot be nil for PresenceHandler")
	}
	return &PresenceHandler{presence: presence}
}

// Health reports liveness. The store is best-effort by design, so its
// reachability does not gate this endpoint.
func (h *PresenceHandler) Health(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// UserResponse is one occupant in a room listing.
type UserResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoomUsersResponse is the room occupancy payload.
type RoomUsersResponse struct {
	RoomID string         `json:"roomId"`
	Users  []UserResponse `json:"users"`
}

// ListUsers handles GET /rooms/:roomId/users. An unknown room is zero
// occupancy, never a 404.
func (h *PresenceHandler) ListUsers(c *gin.Context) {
	roomID := c.Param("roomId")

	sessions, err := h.presence.ListActive(c.Request.Context(), roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Handler.ListUsers: failed to list active sessions")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list room users")
		return
	}

	users := make([]UserResponse, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, UserResponse{
			ID:       s.UserID,
			Name:     s.DisplayName,
			Color:    s.DisplayColor,
			JoinedAt: s.JoinedAt,
		})
	}
	SuccessResponse(c, http.StatusOK, RoomUsersResponse{RoomID: roomID, Users: users})
}

// JoinRoomRequest is the body of POST /rooms/:roomId/join.
type JoinRoomRequest struct {
	UserID    string `json:"userId" binding:"required"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
}

// JoinRoom registers presence without a socket, e.g. for pre-flight checks
// before opening the document connection.
func (h *PresenceHandler) JoinRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Handler.JoinRoom: invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: userId is required")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": req.UserID})

	if err := h.presence.Join(c.Request.Context(), roomID, req.UserID, req.UserName, req.UserColor); err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		logCtx.WithError(err).Error("Handler.JoinRoom: failed to join via service")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to join room")
		return
	}

	logCtx.Info("Handler.JoinRoom: presence registered")
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// LeaveRoomRequest is the body of POST /rooms/:roomId/leave.
type LeaveRoomRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// LeaveRoom marks the user's session inactive. Leaving a room the user was
// never in is still a success.
func (h *PresenceHandler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	var req LeaveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Handler.LeaveRoom: invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: userId is required")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": req.UserID})

	if err := h.presence.Leave(c.Request.Context(), roomID, req.UserID); err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		logCtx.WithError(err).Error("Handler.LeaveRoom: failed to leave via service")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to leave room")
		return
	}

	logCtx.Info("Handler.LeaveRoom: presence cleared")
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}
