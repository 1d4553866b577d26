package models

import "gorm.io/gorm"

// Community is the minimal community record the conversation core needs.
// Community CRUD itself lives outside this service.
type Community struct {
	gorm.Model
	Name string `gorm:"size:255;not null"`
}

// CommunityMember records active membership, consulted before any community
// channel access.
type CommunityMember struct {
	gorm.Model
	CommunityID uint `gorm:"not null;uniqueIndex:idx_community_member"`
	UserID      uint `gorm:"not null;uniqueIndex:idx_community_member"`
	Active      bool `gorm:"not null;default:true"`
}
