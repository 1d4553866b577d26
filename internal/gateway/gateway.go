// Package gateway binds the live transport to the social core: it
// authorizes each inbound client action, persists through the conversation
// store, and only then hands the result to the hub for fan-out.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"commune/backend/internal/apperr"
	"commune/backend/internal/hub"
	"commune/backend/internal/models"
	"commune/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client -> server event names.
const (
	evRoomJoin    = "room.join"
	evRoomLeave   = "room.leave"
	evMessageSend = "message.send"
	evTypingStart = "typing.start"
	evTypingStop  = "typing.stop"
)

// Server -> client event names.
const (
	evMessageNew     = "message.new"
	evTypingUpdate   = "typing.update"
	evPresenceUpdate = "presence.update"
	evError          = "error"
)

type inboundEvent struct {
	Type    string         `json:"type"`
	Payload inboundPayload `json:"payload"`
}

type inboundPayload struct {
	ConversationID uint   `json:"conversation_id"`
	Content        string `json:"content"`
}

// MessageView is the wire shape of a message in live events.
type MessageView struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	AuthorID       uint      `json:"author_id"`
	Content        string    `json:"content"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageNewPayload struct {
	ConversationID uint        `json:"conversation_id"`
	Message        MessageView `json:"message"`
}

type typingUpdatePayload struct {
	ConversationID uint `json:"conversation_id"`
	UserID         uint `json:"user_id"`
	IsTyping       bool `json:"is_typing"`
}

type presenceUpdatePayload struct {
	UserID uint `json:"user_id"`
	Online bool `json:"online"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessageEvent builds the message.new event for a persisted message. The
// REST message handler uses it too, so both paths emit the same shape.
func NewMessageEvent(msg *models.Message) hub.Event {
	return hub.Event{
		Type: evMessageNew,
		Payload: messageNewPayload{
			ConversationID: msg.ConversationID,
			Message: MessageView{
				ID:             msg.ID,
				ConversationID: msg.ConversationID,
				AuthorID:       msg.AuthorID,
				Content:        msg.Content,
				Edited:         msg.Edited,
				CreatedAt:      msg.CreatedAt,
			},
		},
	}
}

// Gateway drives one WebSocket connection per client through the social core.
type Gateway struct {
	hub           *hub.Hub
	conversations *store.ConversationStore
	relationships *store.RelationshipStore
}

// New creates a Gateway. The hub is injected so tests can observe delivery.
func New(h *hub.Hub, conversations *store.ConversationStore, relationships *store.RelationshipStore) *Gateway {
	return &Gateway{hub: h, conversations: conversations, relationships: relationships}
}

// ServeWS godoc
// @Summary      Open the live event stream
// @Description  Upgrades to a WebSocket carrying room, message, typing and presence events.
// @Tags         live
// @Security     BearerAuth
// @Router       /ws [get]
func (g *Gateway) ServeWS(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("gateway: websocket upgrade failed: %v", err)
		return
	}

	connectionID := uuid.NewString()
	send := g.hub.Register(connectionID, userID)

	if len(g.hub.ConnectionsFor(userID)) == 1 {
		g.notifyPresence(c.Request.Context(), userID, true)
	}

	go writePump(conn, send)
	g.readPump(conn, connectionID, userID)
}

// readPump drives a single connection. Handlers for one connection run one at
// a time in arrival order; different connections run concurrently.
func (g *Gateway) readPump(conn *websocket.Conn, connectionID string, userID uint) {
	// Disconnect drops all room memberships immediately. An appendMessage
	// already in flight still completes and is still broadcast.
	defer func() {
		g.hub.Unregister(connectionID)
		conn.Close()
		if len(g.hub.ConnectionsFor(userID)) == 0 {
			g.notifyPresence(context.Background(), userID, false)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: connection %s read error: %v", connectionID, err)
			}
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			g.sendError(connectionID, apperr.Validation("malformed event"))
			continue
		}

		g.handleEvent(context.Background(), connectionID, userID, ev)
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// handleEvent dispatches one inbound client action. Failures are reported
// only to the originating connection, never broadcast.
func (g *Gateway) handleEvent(ctx context.Context, connectionID string, userID uint, ev inboundEvent) {
	switch ev.Type {
	case evRoomJoin:
		if _, err := g.conversations.Authorize(ctx, userID, ev.Payload.ConversationID); err != nil {
			g.sendError(connectionID, err)
			return
		}
		g.hub.JoinRoom(connectionID, ev.Payload.ConversationID)

	case evRoomLeave:
		g.hub.LeaveRoom(connectionID, ev.Payload.ConversationID)

	case evMessageSend:
		if _, err := g.conversations.Authorize(ctx, userID, ev.Payload.ConversationID); err != nil {
			g.sendError(connectionID, err)
			return
		}
		msg, err := g.conversations.AppendMessage(ctx, ev.Payload.ConversationID, userID, ev.Payload.Content)
		if err != nil {
			g.sendError(connectionID, err)
			return
		}
		// Persisted; now, and only now, fan out.
		g.hub.BroadcastToRoom(msg.ConversationID, NewMessageEvent(msg))

	case evTypingStart, evTypingStop:
		if _, err := g.conversations.Authorize(ctx, userID, ev.Payload.ConversationID); err != nil {
			g.sendError(connectionID, err)
			return
		}
		g.hub.BroadcastToRoom(ev.Payload.ConversationID, hub.Event{
			Type: evTypingUpdate,
			Payload: typingUpdatePayload{
				ConversationID: ev.Payload.ConversationID,
				UserID:         userID,
				IsTyping:       ev.Type == evTypingStart,
			},
		})

	default:
		g.sendError(connectionID, apperr.Validation("unknown event type"))
	}
}

func (g *Gateway) sendError(connectionID string, err error) {
	message := err.Error()
	if apperr.KindOf(err) == apperr.KindUnknown {
		message = "internal error"
	}
	g.hub.SendToConnection(connectionID, hub.Event{
		Type:    evError,
		Payload: errorPayload{Code: apperr.CodeOf(err), Message: message},
	})
}

// notifyPresence tells a user's friends they came online or went offline.
func (g *Gateway) notifyPresence(ctx context.Context, userID uint, online bool) {
	relations, err := g.relationships.ListAccepted(ctx, userID)
	if err != nil {
		log.Printf("gateway: failed to load friends for presence update: %v", err)
		return
	}
	for _, rel := range relations {
		g.hub.SendToUser(rel.OtherUser(userID), hub.Event{
			Type:    evPresenceUpdate,
			Payload: presenceUpdatePayload{UserID: userID, Online: online},
		})
	}
}
