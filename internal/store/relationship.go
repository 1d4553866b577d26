// Package store holds the durable state machines of the social core: the
// pairwise relationship lifecycle and the conversation/message history.
package store

import (
	"context"
	"errors"

	"commune/backend/internal/apperr"
	"commune/backend/internal/events"
	"commune/backend/internal/models"

	"gorm.io/gorm"
)

// RelationshipStore owns the friendship state machine:
// pending -> accepted | declined; accepted -> deleted. Declined and blocked
// rows are terminal, a fresh proposal replaces them.
type RelationshipStore struct {
	db       *gorm.DB
	channels *ConversationStore
	notifier events.Notifier
}

// NewRelationshipStore creates a RelationshipStore. channels provisions the
// direct conversation on acceptance; notifier receives the domain events.
func NewRelationshipStore(db *gorm.DB, channels *ConversationStore, notifier events.Notifier) *RelationshipStore {
	return &RelationshipStore{db: db, channels: channels, notifier: notifier}
}

// Propose creates a pending friend request from requesterID to addresseeID.
// At most one relationship row ever exists per unordered pair, whichever side
// asked first; a resolved (declined) row is replaced by the new proposal.
func (s *RelationshipStore) Propose(ctx context.Context, requesterID, addresseeID uint) (*models.Relationship, error) {
	if requesterID == addresseeID {
		return nil, apperr.SelfReference("cannot send a friend request to yourself")
	}

	var addressee models.User
	err := s.db.WithContext(ctx).First(&addressee, addresseeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	lo, hi := models.PairKey(requesterID, addresseeID)

	var existing models.Relationship
	err = s.db.WithContext(ctx).Where("pair_lo = ? AND pair_hi = ?", lo, hi).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rel := models.Relationship{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      models.StatusPending,
	}

	if err == nil {
		switch existing.Status {
		case models.StatusAccepted:
			return nil, apperr.Conflict("already friends")
		case models.StatusPending:
			return nil, apperr.Conflict("friend request already pending")
		case models.StatusBlocked:
			return nil, apperr.Conflict("cannot send a friend request to this user")
		case models.StatusDeclined:
			// The prior row is resolved; replace it with the fresh proposal.
			txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Delete(&models.Relationship{}, existing.ID).Error; err != nil {
					return err
				}
				return tx.Create(&rel).Error
			})
			if txErr != nil {
				return nil, txErr
			}
			s.notifier.RelationshipProposed(events.RelationshipProposed{
				RelationshipID: rel.ID,
				RequesterID:    requesterID,
				AddresseeID:    addresseeID,
			})
			return &rel, nil
		}
	}

	if err := s.db.WithContext(ctx).Create(&rel).Error; err != nil {
		// The unique pair index turns a concurrent duplicate into a conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("friend request already pending")
		}
		return nil, err
	}

	s.notifier.RelationshipProposed(events.RelationshipProposed{
		RelationshipID: rel.ID,
		RequesterID:    requesterID,
		AddresseeID:    addresseeID,
	})
	return &rel, nil
}

// Respond settles a pending request. Only the addressee may respond, and only
// while the row is still pending: the transition is a conditional update, so
// racing duplicate responses collapse to a single winner and a direct
// conversation is provisioned at most once.
func (s *RelationshipStore) Respond(ctx context.Context, relationshipID, userID uint, accept bool) (*models.Relationship, error) {
	var rel models.Relationship
	err := s.db.WithContext(ctx).First(&rel, relationshipID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("friend request not found")
	}
	if err != nil {
		return nil, err
	}

	// Outsiders get the same answer as an unknown id.
	if !rel.Involves(userID) {
		return nil, apperr.NotFound("friend request not found")
	}
	if rel.AddresseeID != userID {
		return nil, apperr.Forbidden("only the addressee can respond to a friend request")
	}

	status := models.StatusDeclined
	if accept {
		status = models.StatusAccepted
	}

	res := s.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("id = ? AND status = ?", rel.ID, models.StatusPending).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("response already given")
	}
	rel.Status = status

	if accept {
		conv, err := s.channels.ensureDirectChannel(ctx, &rel)
		if err != nil {
			return nil, err
		}
		s.notifier.RelationshipAccepted(events.RelationshipAccepted{
			RelationshipID: rel.ID,
			RequesterID:    rel.RequesterID,
			AddresseeID:    rel.AddresseeID,
			ConversationID: conv.ID,
		})
	}

	return &rel, nil
}

// ListAccepted returns the user's friendships, most recently updated first.
func (s *RelationshipStore) ListAccepted(ctx context.Context, userID uint) ([]models.Relationship, error) {
	return s.list(ctx, userID, models.StatusAccepted)
}

// ListPending returns the user's unsettled requests (either side), most
// recently updated first.
func (s *RelationshipStore) ListPending(ctx context.Context, userID uint) ([]models.Relationship, error) {
	return s.list(ctx, userID, models.StatusPending)
}

func (s *RelationshipStore) list(ctx context.Context, userID uint, status models.RelationshipStatus) ([]models.Relationship, error) {
	var relations []models.Relationship
	err := s.db.WithContext(ctx).
		Where("(requester_id = ? OR addressee_id = ?) AND status = ?", userID, userID, status).
		Order("updated_at DESC").
		Preload("Requester").
		Preload("Addressee").
		Find(&relations).Error
	if err != nil {
		return nil, err
	}
	return relations, nil
}

// Remove deletes the relationship row. Either party may remove it. The linked
// conversation and its messages are untouched: history survives unfriending.
func (s *RelationshipStore) Remove(ctx context.Context, relationshipID, userID uint) (*models.Relationship, error) {
	var rel models.Relationship
	err := s.db.WithContext(ctx).First(&rel, relationshipID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("relationship not found")
	}
	if err != nil {
		return nil, err
	}
	if !rel.Involves(userID) {
		return nil, apperr.NotFound("relationship not found")
	}

	if err := s.db.WithContext(ctx).Delete(&models.Relationship{}, rel.ID).Error; err != nil {
		return nil, err
	}
	return &rel, nil
}
