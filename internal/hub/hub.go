// Package hub tracks live transport connections and fans events out to them.
// It never touches persistence: delivery is best-effort and at-most-once per
// connection, and durability always comes from the conversation store.
package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// sendQueueSize bounds each connection's outbound queue. A full queue drops
// the oldest event so one slow client never stalls a room.
const sendQueueSize = 64

type connection struct {
	id     string
	userID uint
	send   chan []byte
	rooms  map[uint]struct{}
}

// enqueue offers msg to the connection's outbound queue without ever blocking
// the caller. On overflow the oldest queued event is dropped to make room; if
// the queue is still full after that, msg itself is dropped.
func (c *connection) enqueue(msg []byte) {
	select {
	case c.send <- msg:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Hub is the connection registry and fan-out broadcaster. Construct one per
// process and pass it to whatever needs delivery; it has no global instance
// so tests can swap in their own.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection
	users map[uint]map[string]*connection
	rooms map[uint]map[string]*connection
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		conns: make(map[string]*connection),
		users: make(map[uint]map[string]*connection),
		rooms: make(map[uint]map[string]*connection),
	}
}

// Register adds a live connection for userID and returns the channel its
// write pump must drain. The channel is closed by Unregister.
func (h *Hub) Register(connectionID string, userID uint) <-chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn := &connection{
		id:     connectionID,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[uint]struct{}),
	}
	h.conns[connectionID] = conn
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]*connection)
	}
	h.users[userID][connectionID] = conn
	return conn.send
}

// Unregister removes the connection from every room it had joined and closes
// its send channel. Safe to call more than once: disconnect can race with
// explicit leave calls.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	delete(h.conns, connectionID)

	for roomID := range conn.rooms {
		h.removeFromRoom(conn, roomID)
	}

	if userConns, ok := h.users[conn.userID]; ok {
		delete(userConns, connectionID)
		if len(userConns) == 0 {
			delete(h.users, conn.userID)
		}
	}

	close(conn.send)
}

// JoinRoom subscribes the connection to a conversation's events. Idempotent.
// Authorization is the gateway's job; the registry applies none.
func (h *Hub) JoinRoom(connectionID string, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	conn.rooms[conversationID] = struct{}{}
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*connection)
	}
	h.rooms[conversationID][connectionID] = conn
}

// LeaveRoom unsubscribes the connection from a conversation's events. Idempotent.
func (h *Hub) LeaveRoom(connectionID string, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connectionID]
	if !ok {
		return
	}
	delete(conn.rooms, conversationID)
	h.removeFromRoom(conn, conversationID)
}

// removeFromRoom must be called with h.mu held.
func (h *Hub) removeFromRoom(conn *connection, conversationID uint) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, conn.id)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// ConnectionsFor returns the ids of every live connection for a user.
func (h *Hub) ConnectionsFor(userID uint) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.users[userID]))
	for id := range h.users[userID] {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastToRoom delivers an event to every connection currently joined to
// the conversation's room, the sender's own connection included: the client
// renders from the echoed event, so there is no optimistic merge to reconcile.
func (h *Hub) BroadcastToRoom(conversationID uint, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.rooms[conversationID] {
		conn.enqueue(msg)
	}
}

// SendToUser delivers an event to every live connection of a user,
// independent of room membership (multi-device fan-out).
func (h *Hub) SendToUser(userID uint, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.users[userID] {
		conn.enqueue(msg)
	}
}

// SendToConnection delivers an event to a single connection, used for scoped
// error events that must never be broadcast.
func (h *Hub) SendToConnection(connectionID string, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if conn, ok := h.conns[connectionID]; ok {
		conn.enqueue(msg)
	}
}
