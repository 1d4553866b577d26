package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is an ordered unit of content in a conversation. Messages are never
// physically deleted (DeletedAt soft-deletes) and never reordered; the
// auto-incremented ID doubles as the pagination cursor, so ordering never
// depends on wall-clock ties.
type Message struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID uint   `gorm:"not null;index"`
	AuthorID       uint   `gorm:"not null"`
	Content        string `gorm:"not null"`
	Edited         bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`

	Author User `gorm:"foreignKey:AuthorID"`
}

// PageKey implements pagination.Keyed.
func (m Message) PageKey() uint { return m.ID }
