package websocket_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wshandler "doccraft-collab/internal/handler/websocket"
	"doccraft-collab/internal/hub"
	"doccraft-collab/internal/registry"
	"doccraft-collab/internal/service"
)

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

type gatewayFixture struct {
	server   *httptest.Server
	hub      *hub.Hub
	presence *service.PresenceService
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	presence := service.NewPresenceService(registry.NewMemoryRegistry(), noopEnqueuer{})
	h := hub.NewHub(presence)
	go h.Run()
	t.Cleanup(h.Stop)

	handler := wshandler.NewWebSocketHandler(h, presence, "")

	router := gin.New()
	router.GET("/ws", handler.HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, hub: h, presence: presence}
}

func (f *gatewayFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleConnection_ValidParamsBindsSession(t *testing.T) {
	f := setupGateway(t)

	f.dial(t, "roomId=doc-1&userId=u1&userName=Alice&userColor=%23FF0000")

	assert.Eventually(t, func() bool {
		return f.hub.RoomClientCount("doc-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	sessions, err := f.presence.ListActive(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].UserID)
	assert.Equal(t, "Alice", sessions[0].DisplayName)
	assert.Equal(t, "#FF0000", sessions[0].DisplayColor)
}

func TestHandleConnection_MissingParamsClosesWithPolicyViolation(t *testing.T) {
	f := setupGateway(t)

	// userName is required too; the upgrade succeeds but the server closes
	// immediately with a policy violation instead of binding the socket.
	conn := f.dial(t, "roomId=doc-1&userId=u1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected close code 1008, got: %v", err)

	sessions, listErr := f.presence.ListActive(context.Background(), "doc-1")
	require.NoError(t, listErr)
	assert.Empty(t, sessions, "no session may be recorded for a rejected connection")
}

func TestHandleConnection_RelaysFramesWithinRoom(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t, "roomId=doc-1&userId=u1&userName=Alice")
	connB := f.dial(t, "roomId=doc-1&userId=u2&userName=Bob")

	require.Eventually(t, func() bool {
		return f.hub.RoomClientCount("doc-1") == 2
	}, 2*time.Second, 10*time.Millisecond)

	payload := []byte{0x01, 0x02, 0xFF, 0x00}
	require.NoError(t, connA.WriteMessage(websocket.BinaryMessage, payload))

	_ = connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, received, err := connB.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType, "frame type must be preserved")
	assert.Equal(t, payload, received)
}

func TestHandleConnection_FramesDoNotCrossRooms(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t, "roomId=doc-1&userId=u1&userName=Alice")
	connOther := f.dial(t, "roomId=doc-2&userId=u2&userName=Bob")

	require.Eventually(t, func() bool {
		return f.hub.RoomClientCount("doc-1") == 1 && f.hub.RoomClientCount("doc-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, connA.WriteMessage(websocket.TextMessage, []byte("update")))

	_ = connOther.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := connOther.ReadMessage()
	assert.Error(t, err, "a frame must never leak into another room")
}

func TestHandleConnection_CloseReleasesRoomAndSession(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t, "roomId=doc-1&userId=u1&userName=Alice")

	require.Eventually(t, func() bool {
		return f.hub.RoomClientCount("doc-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	conn.Close()

	assert.Eventually(t, func() bool {
		return f.hub.RoomClientCount("doc-1") == 0
	}, 2*time.Second, 10*time.Millisecond, "hub must drop the room once the last socket leaves")

	assert.Eventually(t, func() bool {
		sessions, err := f.presence.ListActive(context.Background(), "doc-1")
		return err == nil && len(sessions) == 0
	}, 2*time.Second, 10*time.Millisecond, "session must be closed after the socket drops")
}
