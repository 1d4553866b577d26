package models

import "gorm.io/gorm"

// ConversationKind distinguishes community channels from direct (1:1) ones.
type ConversationKind string

const (
	KindCommunity ConversationKind = "community"
	KindDirect    ConversationKind = "direct"
)

// Conversation is a container of ordered messages. Community conversations
// carry a CommunityID and are shared by all members; direct conversations
// have a nil CommunityID and are reachable only through an accepted
// Relationship.
type Conversation struct {
	gorm.Model
	CommunityID *uint            `gorm:"index"`
	Kind        ConversationKind `gorm:"type:varchar(20);not null;index"`
	Name        string           `gorm:"size:255"`
}
