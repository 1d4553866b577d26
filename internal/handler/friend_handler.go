package handler

import (
	"net/http"
	"strconv"
	"time"

	"commune/backend/internal/hub"
	"commune/backend/internal/models"
	"commune/backend/internal/store"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// FriendRequestInput defines the structure for sending a friend request.
type FriendRequestInput struct {
	AddresseeID uint `json:"addressee_id" binding:"required" example:"2"`
}

// RespondInput defines the structure for answering a friend request.
type RespondInput struct {
	Accept *bool `json:"accept" binding:"required" example:"true"`
}

// RelationshipResponse defines the structure for one relationship row as seen
// by the viewer.
type RelationshipResponse struct {
	ID             uint               `json:"id" example:"1"`
	RequesterID    uint               `json:"requester_id" example:"1"`
	AddresseeID    uint               `json:"addressee_id" example:"2"`
	Status         string             `json:"status" example:"accepted"`
	ConversationID *uint              `json:"conversation_id,omitempty" example:"7"`
	Friend         PublicUserResponse `json:"friend"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func newRelationshipResponse(rel models.Relationship, viewerID uint) RelationshipResponse {
	friend := rel.Requester
	if rel.RequesterID == viewerID {
		friend = rel.Addressee
	}
	return RelationshipResponse{
		ID:             rel.ID,
		RequesterID:    rel.RequesterID,
		AddresseeID:    rel.AddresseeID,
		Status:         string(rel.Status),
		ConversationID: rel.ConversationID,
		Friend:         PublicUserResponse{ID: friend.ID, Nickname: friend.Nickname},
		CreatedAt:      rel.CreatedAt,
		UpdatedAt:      rel.UpdatedAt,
	}
}

// endregion

// FriendHandler serves the friendship lifecycle endpoints.
type FriendHandler struct {
	relationships *store.RelationshipStore
	hub           *hub.Hub
}

// NewFriendHandler creates a FriendHandler.
func NewFriendHandler(relationships *store.RelationshipStore, h *hub.Hub) *FriendHandler {
	return &FriendHandler{relationships: relationships, hub: h}
}

// SendRequest godoc
// @Summary      Send friend request
// @Description  Creates a pending relationship toward another user.
// @Tags         friends
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body FriendRequestInput true "Request Info"
// @Success      201  {object}  RelationshipResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Addressee not found"
// @Failure      409  {object}  ErrorResponse "Relationship already exists"
// @Router       /friends/request [post]
func (h *FriendHandler) SendRequest(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	var input FriendRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()})
		return
	}

	rel, err := h.relationships.Propose(c.Request.Context(), viewerID, input.AddresseeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newRelationshipResponse(*rel, viewerID))
}

// Respond godoc
// @Summary      Respond to a friend request
// @Description  Accepts or declines a pending friend request. Accepting provisions the direct conversation.
// @Tags         friends
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int           true  "Relationship ID"
// @Param        input body      RespondInput  true  "Response"
// @Success      200  {object}  RelationshipResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Not the addressee"
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Failure      409  {object}  ErrorResponse "Response already given"
// @Router       /friends/{id}/respond [post]
func (h *FriendHandler) Respond(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	relationshipID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid relationship ID"})
		return
	}

	var input RespondInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()})
		return
	}

	rel, err := h.relationships.Respond(c.Request.Context(), uint(relationshipID), viewerID, *input.Accept)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRelationshipResponse(*rel, viewerID))
}

// List godoc
// @Summary      List friends
// @Description  Returns accepted relationships for the viewer, most recently updated first.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   RelationshipResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /friends [get]
func (h *FriendHandler) List(c *gin.Context) {
	h.list(c, false)
}

// ListPending godoc
// @Summary      List pending friend requests
// @Description  Returns pending relationships where the viewer is either side, most recently updated first.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   RelationshipResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /friends/pending [get]
func (h *FriendHandler) ListPending(c *gin.Context) {
	h.list(c, true)
}

func (h *FriendHandler) list(c *gin.Context, pending bool) {
	viewerID := c.MustGet("userID").(uint)

	var relations []models.Relationship
	var err error
	if pending {
		relations, err = h.relationships.ListPending(c.Request.Context(), viewerID)
	} else {
		relations, err = h.relationships.ListAccepted(c.Request.Context(), viewerID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]RelationshipResponse, 0, len(relations))
	for _, rel := range relations {
		responses = append(responses, newRelationshipResponse(rel, viewerID))
	}
	c.JSON(http.StatusOK, responses)
}

// Remove godoc
// @Summary      Remove a friend
// @Description  Deletes the relationship row. The conversation and its history are kept.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Relationship ID"
// @Success      200  {object}  map[string]string "{"message": "Relation removed"}"
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Relationship not found"
// @Router       /friends/{id} [delete]
func (h *FriendHandler) Remove(c *gin.Context) {
	viewerID := c.MustGet("userID").(uint)

	relationshipID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation", Message: "Invalid relationship ID"})
		return
	}

	rel, err := h.relationships.Remove(c.Request.Context(), uint(relationshipID), viewerID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Tell the other party's live connections, whatever rooms they are in.
	h.hub.SendToUser(rel.OtherUser(viewerID), hub.Event{
		Type: "friend.removed",
		Payload: gin.H{
			"relationship_id": rel.ID,
			"user_id":         viewerID,
		},
	})

	c.JSON(http.StatusOK, gin.H{"message": "Relation removed"})
}
