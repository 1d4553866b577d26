package store

import (
	"context"
	"errors"
	"strings"

	"commune/backend/internal/apperr"
	"commune/backend/internal/community"
	"commune/backend/internal/models"
	"commune/backend/internal/pagination"

	"gorm.io/gorm"
)

// defaultCommunityChannelName is the channel lazily created for a community
// that has none yet.
const defaultCommunityChannelName = "general"

// ConversationStore owns channels and their ordered message history.
type ConversationStore struct {
	db      *gorm.DB
	members community.MembershipChecker
}

// NewConversationStore creates a ConversationStore backed by db, consulting
// members for community channel access.
func NewConversationStore(db *gorm.DB, members community.MembershipChecker) *ConversationStore {
	return &ConversationStore{db: db, members: members}
}

// MessageHistory is one page of a conversation's history. Messages are in
// ascending chronological order for display; NextCursor resumes the walk
// toward older messages.
type MessageHistory struct {
	Messages   []models.Message
	NextCursor string
	HasMore    bool
}

// GetOrCreateDirectChannel resolves the direct conversation between two
// friends, provisioning it on first use. Fails with a forbidden error when no
// accepted relationship exists between the pair.
func (s *ConversationStore) GetOrCreateDirectChannel(ctx context.Context, userID, counterpartID uint) (*models.Conversation, error) {
	lo, hi := models.PairKey(userID, counterpartID)

	var rel models.Relationship
	err := s.db.WithContext(ctx).
		Where("pair_lo = ? AND pair_hi = ? AND status = ?", lo, hi, models.StatusAccepted).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Forbidden("users are not friends")
	}
	if err != nil {
		return nil, err
	}

	return s.ensureDirectChannel(ctx, &rel)
}

// ensureDirectChannel returns the relationship's linked conversation,
// creating and linking one if it has none. The link is written with a
// conditional update so concurrent calls from both participants settle on a
// single conversation: only the caller that observes a null link performs the
// create, the loser discards its row and reuses the winner's.
func (s *ConversationStore) ensureDirectChannel(ctx context.Context, rel *models.Relationship) (*models.Conversation, error) {
	if rel.ConversationID != nil {
		var conv models.Conversation
		if err := s.db.WithContext(ctx).First(&conv, *rel.ConversationID).Error; err != nil {
			return nil, err
		}
		return &conv, nil
	}

	conv := models.Conversation{Kind: models.KindDirect}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("id = ? AND conversation_id IS NULL", rel.ID).
		Update("conversation_id", conv.ID)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		// Lost the provisioning race. Drop our orphan and reuse the winner's.
		s.db.WithContext(ctx).Unscoped().Delete(&conv)

		var fresh models.Relationship
		if err := s.db.WithContext(ctx).First(&fresh, rel.ID).Error; err != nil {
			return nil, err
		}
		if fresh.ConversationID == nil {
			return nil, apperr.NotFound("conversation not found")
		}
		rel.ConversationID = fresh.ConversationID

		var winner models.Conversation
		if err := s.db.WithContext(ctx).First(&winner, *fresh.ConversationID).Error; err != nil {
			return nil, err
		}
		return &winner, nil
	}

	rel.ConversationID = &conv.ID
	return &conv, nil
}

// GetOrCreateCommunityChannel returns the oldest community channel for a
// community, creating the default one if none exists. Membership must already
// have been proven by the caller.
func (s *ConversationStore) GetOrCreateCommunityChannel(ctx context.Context, communityID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND kind = ?", communityID, models.KindCommunity).
		Order("id ASC").
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.Conversation{
		CommunityID: &communityID,
		Kind:        models.KindCommunity,
		Name:        defaultCommunityChannelName,
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// Authorize resolves the conversation and checks that userID may read and
// post in it: an accepted relationship for direct channels, active community
// membership for community ones.
func (s *ConversationStore) Authorize(ctx context.Context, userID, conversationID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, err
	}

	switch conv.Kind {
	case models.KindDirect:
		var rel models.Relationship
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND status = ?", conv.ID, models.StatusAccepted).
			First(&rel).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !rel.Involves(userID)) {
			return nil, apperr.Forbidden("not a participant of this conversation")
		}
		if err != nil {
			return nil, err
		}
	case models.KindCommunity:
		member, err := s.members.IsActiveMember(ctx, *conv.CommunityID, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, apperr.Forbidden("not a member of this community")
		}
	default:
		return nil, apperr.NotFound("conversation not found")
	}

	return &conv, nil
}

// AppendMessage persists a message authored by authorID. This is the single
// authorization point for posting: callers must have proven membership or
// friendship (via Authorize) before invoking it.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID, authorID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message content must not be empty")
	}

	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns up to limit messages strictly older than beforeCursor
// (or the newest page when the cursor is empty), in ascending chronological
// order for display.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uint, limit int, beforeCursor string) (*MessageHistory, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	page, err := pagination.Paginate[models.Message](query, "id", limit, beforeCursor)
	if err != nil {
		return nil, err
	}

	// The pager walks newest-first; flip for display order.
	messages := page.Items
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &MessageHistory{
		Messages:   messages,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}
