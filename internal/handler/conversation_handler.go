package handler

import (
	"net/http"
	"strconv"
	"time"

	"commune/backend/internal/apperr"
	"commune/backend/internal/community"
	"commune/backend/internal/gateway"
	"commune/backend/internal/hub"
	"commune/backend/internal/models"
	"commune/backend/internal/store"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// MessageInput defines the structure for posting a message.
type MessageInput struct {
	Content string `json:"content" binding:"required" example:"hi"`
}

// ConversationResponse defines the structure for a conversation.
type ConversationResponse struct {
	ID          uint      `json:"id" example:"7"`
	Kind        string    `json:"kind" example:"direct"`
	CommunityID *uint     `json:"community_id,omitempty" example:"3"`
	Name        string    `json:"name,omitempty" example:"general"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageResponse defines the structure for a single message.
type MessageResponse struct {
	ID             uint      `json:"id" example:"42"`
	ConversationID uint      `json:"conversation_id" example:"7"`
	AuthorID       uint      `json:"author_id" example:"1"`
	Content        string    `json:"content" example:"hi"`
	Edited         bool      `json:"edited" example:"false"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageListResponse defines the structure for one page of history.
type MessageListResponse struct {
	Data       []MessageResponse `json:"data"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

func newConversationResponse(conv models.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:          conv.ID,
		Kind:        string(conv.Kind),
		CommunityID: conv.CommunityID,
		Name:        conv.Name,
		CreatedAt:   conv.CreatedAt,
	}
}

func newMessageResponse(msg models.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		AuthorID:       msg.AuthorID,
		Content:        msg.Content,
		Edited:         msg.Edited,
		CreatedAt:      msg.CreatedAt,
	}
}

// endregion

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ConversationHandler serves channel resolution and message history.
type ConversationHandler struct {
	conversations *store.ConversationStore
	members       community.MembershipChecker
	hub           *hub.Hub
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(conversations *store.ConversationStore, members community.MembershipChecker, h *hub.Hub) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, members: members, hub: h}
}

// GetDirectChannel godoc
// @Summary      Get the direct conversation with a friend
// @Description  Resolves (or lazily provisions) the 1:1 conversation with an accepted friend.
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        friendId  path  int  true  "Friend User ID"
// @Success      200  {object}  ConversationResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Users are not friends"
// @Router       /conversations/direct/{friendId} [get]
func (h *ConversationHandler) GetDirectChannel(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	friendID, err := strconv.ParseUint(c.Param("friendId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid friend ID"})
		return
	}

	conv, err := h.conversations.GetOrCreateDirectChannel(c.Request.Context(), viewerID, uint(friendID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newConversationResponse(*conv))
}

// GetCommunityChannel godoc
// @Summary      Get a community's channel
// @Description  Returns the community's oldest channel, creating the default "general" one if none exists. Requires active membership.
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Community ID"
// @Success      200  {object}  ConversationResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not a member"
// @Router       /communities/{id}/channel [get]
func (h *ConversationHandler) GetCommunityChannel(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	communityID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid community ID"})
		return
	}

	member, err := h.members.IsActiveMember(c.Request.Context(), uint(communityID), viewerID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, apperr.Forbidden("not a member of this community"))
		return
	}

	conv, err := h.conversations.GetOrCreateCommunityChannel(c.Request.Context(), uint(communityID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newConversationResponse(*conv))
}

// ListMessages godoc
// @Summary      List conversation messages
// @Description  Returns one page of history in ascending chronological order, walking older via the opaque cursor.
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id      path   int     true   "Conversation ID"
// @Param        limit   query  int     false  "Page size" default(50)
// @Param        before  query  string  false  "Opaque cursor from a previous page"
// @Success      200  {object}  MessageListResponse
// @Failure      400  {object}  ErrorResponse "Malformed cursor"
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not a participant"
// @Failure      404  {object}  ErrorResponse "Conversation not found"
// @Router       /conversations/{id}/messages [get]
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid conversation ID"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if _, err := h.conversations.Authorize(c.Request.Context(), viewerID, uint(conversationID)); err != nil {
		respondError(c, err)
		return
	}

	history, err := h.conversations.ListMessages(c.Request.Context(), uint(conversationID), limit, c.Query("before"))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]MessageResponse, 0, len(history.Messages))
	for _, msg := range history.Messages {
		responses = append(responses, newMessageResponse(msg))
	}
	c.JSON(http.StatusOK, MessageListResponse{
		Data:       responses,
		NextCursor: history.NextCursor,
		HasMore:    history.HasMore,
	})
}

// PostMessage godoc
// @Summary      Post a message
// @Description  Persists a message and then broadcasts it to the conversation's live room.
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  int           true  "Conversation ID"
// @Param        input  body  MessageInput  true  "Message"
// @Success      201  {object}  MessageResponse
// @Failure      400  {object}  ErrorResponse "Empty content"
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not a participant"
// @Failure      404  {object}  ErrorResponse "Conversation not found"
// @Router       /conversations/{id}/messages [post]
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	conversationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid conversation ID"})
		return
	}

	var input MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()})
		return
	}

	if _, err := h.conversations.Authorize(c.Request.Context(), viewerID, uint(conversationID)); err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.conversations.AppendMessage(c.Request.Context(), uint(conversationID), viewerID, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	// Same ordering as the live path: durable write first, then fan-out.
	h.hub.BroadcastToRoom(msg.ConversationID, gateway.NewMessageEvent(msg))

	c.JSON(http.StatusCreated, newMessageResponse(*msg))
}
