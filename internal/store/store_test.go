package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"commune/backend/internal/community"
	"commune/backend/internal/database"
	"commune/backend/internal/events"
	"commune/backend/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingNotifier captures emitted relationship events for assertions.
type recordingNotifier struct {
	proposed []events.RelationshipProposed
	accepted []events.RelationshipAccepted
}

func (n *recordingNotifier) RelationshipProposed(event events.RelationshipProposed) {
	n.proposed = append(n.proposed, event)
}

func (n *recordingNotifier) RelationshipAccepted(event events.RelationshipAccepted) {
	n.accepted = append(n.accepted, event)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newStores(t *testing.T) (*gorm.DB, *RelationshipStore, *ConversationStore, *recordingNotifier) {
	t.Helper()
	db := testDB(t)
	notifier := &recordingNotifier{}
	conversations := NewConversationStore(db, community.NewGormMembership(db))
	relationships := NewRelationshipStore(db, conversations, notifier)
	return db, relationships, conversations, notifier
}

func createUser(t *testing.T, db *gorm.DB, nickname string) uint {
	t.Helper()
	user := models.User{
		Nickname:     nickname,
		Email:        nickname + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

// befriend walks the full propose/accept flow and returns the relationship.
func befriend(t *testing.T, relationships *RelationshipStore, requesterID, addresseeID uint) *models.Relationship {
	t.Helper()
	rel, err := relationships.Propose(context.Background(), requesterID, addresseeID)
	require.NoError(t, err)
	rel, err = relationships.Respond(context.Background(), rel.ID, addresseeID, true)
	require.NoError(t, err)
	return rel
}
