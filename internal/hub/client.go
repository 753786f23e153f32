package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket connection bound into a room's document sync.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string
	roomID string
	userID string
	send   chan frame
}

// Bind registers the connection with the room and starts its read/write
// pumps. This is the one-time handoff: after Bind the Hub owns the socket's
// lifetime. Returns false if the Hub could not accept the registration.
func (h *Hub) Bind(conn *websocket.Conn, roomID, userID string) bool {
	client := &Client{
		hub:    h,
		conn:   conn,
		connID: uuid.NewString(),
		roomID: roomID,
		userID: userID,
		send:   make(chan frame, 256),
	}

	if !h.queue(hubMessage{kind: "register", client: client}) {
		return false
	}

	go client.writePump()
	go client.readPump()
	return true
}

// readPump pumps frames from the WebSocket connection to the Hub.
func (c *Client) readPump() {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"user_id": c.userID,
		"conn_id": c.connID,
	})
	defer func() {
		unregisterMsg := hubMessage{kind: "unregister", client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		// Text and binary frames both carry document sync payloads; relay
		// either, preserving the frame type.
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			logCtx.Debugf("Ignoring non-data message type: %d", messageType)
			continue
		}

		frameMsg := hubMessage{
			kind:   "frame",
			client: c,
			frame:  frame{messageType: messageType, data: message},
		}
		select {
		case c.hub.messageChan <- frameMsg:
		default:
			logCtx.Warn("Hub message channel full, dropping client frame")
		}
	}
}

// writePump pumps frames from the send channel to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"user_id": c.userID,
		"conn_id": c.connID,
	})
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Info("writePump exited")
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the send channel during unregister.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				logCtx.WithError(err).Warn("Failed to write frame to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) RoomID() string { return c.roomID }
func (c *Client) UserID() string { return c.userID }
