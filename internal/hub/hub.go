package hub

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WebSocket timing and size limits, shared by hub and client.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Document update frames can
	// carry full state vectors, so this is generous.
	maxMessageSize = 512 * 1024
)

// SessionCloser is notified when a bound socket drops, so session
// bookkeeping can catch up with the connection state.
type SessionCloser interface {
	OnSocketClose(ctx context.Context, roomID, userID string)
}

// hubMessage is the unit of work on the Hub's internal channel.
type hubMessage struct {
	kind   string // "register", "unregister", "frame"
	client *Client
	frame  frame // only for "frame"
}

// frame is one WebSocket message preserved with its type, so binary
// document updates pass through untouched.
type frame struct {
	messageType int
	data        []byte
}

// Hub is the attach point of the document synchronization protocol: every
// frame a bound socket sends is fanned out verbatim to the other sockets in
// the same room. Merge semantics live entirely in the clients' CRDT; the
// server never inspects frame contents.
type Hub struct {
	messageChan chan hubMessage
	stopChan    chan struct{}
	stopOnce    sync.Once

	// rooms maps roomID -> connected clients.
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	closer SessionCloser
}

// NewHub creates a Hub. closer must not be nil; it receives a callback for
// every socket that drops after a successful Bind.
func NewHub(closer SessionCloser) *Hub {
	if closer == nil {
		panic("SessionCloser cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		stopChan:    make(chan struct{}),
		rooms:       make(map[string]map[*Client]bool),
		closer:      closer,
	}
}

// Run is the Hub's main event loop. It should run in its own goroutine.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.kind {
			case "register":
				h.registerClient(msg.client)
			case "unregister":
				h.unregisterClient(msg.client)
			case "frame":
				h.relayFrame(msg.client, msg.frame)
			default:
				log.Warnf("Hub: received unknown message kind: %s", msg.kind)
			}
		case <-h.stopChan:
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop terminates the Run loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// registerClient adds the client to its room's set.
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"conn_id": client.connID,
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.roomID]; !ok {
		h.rooms[client.roomID] = make(map[*Client]bool)
		logCtx.Info("Client set created for new room")
	}
	h.rooms[client.roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")
}

// unregisterClient removes the client from its room, closes its send
// channel, drops the room when it empties, and notifies the SessionCloser.
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"conn_id": client.connID,
	})

	h.roomsMu.Lock()
	if roomClients, roomExists := h.rooms[client.roomID]; roomExists {
		if _, clientExists := roomClients[client]; clientExists {
			delete(roomClients, client)
			close(client.send)
			logCtx.Info("Client removed from room, send channel closed")

			if len(roomClients) == 0 {
				delete(h.rooms, client.roomID)
				logCtx.Info("Room empty, removed from Hub")
			}
		} else {
			logCtx.Warn("Client not found in room during unregister")
		}
	} else {
		logCtx.Warn("Room not found during client unregister")
	}
	h.roomsMu.Unlock()

	// Session bookkeeping runs off the Hub loop; a store round-trip must
	// not stall frame relay.
	go h.closer.OnSocketClose(context.Background(), client.roomID, client.userID)
}

// relayFrame fans the frame out to every other client in the sender's room.
func (h *Hub) relayFrame(sender *Client, f frame) {
	if sender == nil {
		return
	}

	h.roomsMu.RLock()
	roomClients, ok := h.rooms[sender.roomID]
	recipients := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != sender {
				recipients = append(recipients, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":         sender.roomID,
		"sender_user_id":  sender.userID,
		"frame_size":      len(f.data),
		"recipient_count": len(recipients),
	})
	logCtx.Debug("Relaying document frame")

	for _, client := range recipients {
		// Non-blocking send; a slow client must not stall the room.
		select {
		case client.send <- f:
		default:
			logCtx.WithField("receiver_user_id", client.userID).Warn("Client send channel full during relay, skipping this client")
		}
	}
}

// queue puts a message on the Hub's channel without blocking. Returns false
// if the channel is full.
func (h *Hub) queue(msg hubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_kind": msg.kind,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// RoomClientCount reports how many sockets are bound to the room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}
