// Package community is the seam to the community collaborator. The
// conversation core only ever asks one question of it: is this user an active
// member of this community right now.
package community

import (
	"context"

	"commune/backend/internal/models"

	"gorm.io/gorm"
)

// MembershipChecker answers community membership queries.
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, communityID, userID uint) (bool, error)
}

// GormMembership checks membership against the shared relational store.
type GormMembership struct {
	db *gorm.DB
}

// NewGormMembership creates a membership checker backed by db.
func NewGormMembership(db *gorm.DB) *GormMembership {
	return &GormMembership{db: db}
}

// IsActiveMember reports whether userID holds an active membership in
// communityID.
func (m *GormMembership) IsActiveMember(ctx context.Context, communityID, userID uint) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Model(&models.CommunityMember{}).
		Where("community_id = ? AND user_id = ? AND active = ?", communityID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
