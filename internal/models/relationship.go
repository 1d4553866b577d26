package models

import (
	"time"

	"gorm.io/gorm"
)

// RelationshipStatus defines the state of a relationship between two users.
type RelationshipStatus string

const (
	// StatusPending means a friend request has been sent but not yet answered.
	StatusPending RelationshipStatus = "pending"

	// StatusAccepted means the friend request was accepted, and the users are now friends.
	StatusAccepted RelationshipStatus = "accepted"

	// StatusDeclined means the addressee turned the request down. The row is
	// terminal; a fresh proposal replaces it.
	StatusDeclined RelationshipStatus = "declined"

	// StatusBlocked is reserved for an explicit block operation. No command
	// currently transitions a row into it.
	StatusBlocked RelationshipStatus = "blocked"
)

// Relationship represents the friendship record between two users.
//
// Exactly one row exists per unordered user pair: PairLo/PairHi hold the two
// ids in canonical order and carry a unique index, while RequesterID and
// AddresseeID preserve who asked whom.
type Relationship struct {
	ID          uint               `gorm:"primaryKey"`
	RequesterID uint               `gorm:"not null"`
	AddresseeID uint               `gorm:"not null"`
	PairLo      uint               `gorm:"not null;uniqueIndex:idx_relationship_pair"`
	PairHi      uint               `gorm:"not null;uniqueIndex:idx_relationship_pair"`
	Status      RelationshipStatus `gorm:"type:varchar(20);not null"`

	// ConversationID links the direct channel provisioned on acceptance.
	// Null until the first accept settles; written at most once.
	ConversationID *uint `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Requester User `gorm:"foreignKey:RequesterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Addressee User `gorm:"foreignKey:AddresseeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// BeforeCreate canonicalizes the pair columns so the unique index holds for
// both request directions.
func (r *Relationship) BeforeCreate(tx *gorm.DB) error {
	r.PairLo, r.PairHi = PairKey(r.RequesterID, r.AddresseeID)
	return nil
}

// OtherUser returns the id of the counterpart of userID in this relationship.
func (r *Relationship) OtherUser(userID uint) uint {
	if r.RequesterID == userID {
		return r.AddresseeID
	}
	return r.RequesterID
}

// Involves reports whether userID is one of the two parties.
func (r *Relationship) Involves(userID uint) bool {
	return r.RequesterID == userID || r.AddresseeID == userID
}

// PairKey returns the two user ids in canonical (lo, hi) order.
func PairKey(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}
