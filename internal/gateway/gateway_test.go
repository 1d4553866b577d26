package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"commune/backend/internal/community"
	"commune/backend/internal/database"
	"commune/backend/internal/events"
	"commune/backend/internal/hub"
	"commune/backend/internal/models"
	"commune/backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type receivedEvent struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

type fixture struct {
	db            *gorm.DB
	hub           *hub.Hub
	gateway       *Gateway
	relationships *store.RelationshipStore
	conversations *store.ConversationStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	h := hub.New()
	conversations := store.NewConversationStore(db, community.NewGormMembership(db))
	relationships := store.NewRelationshipStore(db, conversations, events.NopNotifier{})
	return &fixture{
		db:            db,
		hub:           h,
		gateway:       New(h, conversations, relationships),
		relationships: relationships,
		conversations: conversations,
	}
}

func (f *fixture) createUser(t *testing.T, nickname string) uint {
	t.Helper()
	user := models.User{Nickname: nickname, Email: nickname + "@example.com", PasswordHash: "x"}
	require.NoError(t, f.db.Create(&user).Error)
	return user.ID
}

func (f *fixture) befriend(t *testing.T, requesterID, addresseeID uint) uint {
	t.Helper()
	rel, err := f.relationships.Propose(context.Background(), requesterID, addresseeID)
	require.NoError(t, err)
	rel, err = f.relationships.Respond(context.Background(), rel.ID, addresseeID, true)
	require.NoError(t, err)
	return *rel.ConversationID
}

func recv(t *testing.T, ch <-chan []byte) receivedEvent {
	t.Helper()
	select {
	case raw, ok := <-ch:
		require.True(t, ok, "send channel closed")
		var ev receivedEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return receivedEvent{}
	}
}

func assertEmpty(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case raw := <-ch:
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

func sendEvent(f *fixture, connectionID string, userID uint, eventType string, conversationID uint, content string) {
	f.gateway.handleEvent(context.Background(), connectionID, userID, inboundEvent{
		Type:    eventType,
		Payload: inboundPayload{ConversationID: conversationID, Content: content},
	})
}

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	conversationID := f.befriend(t, alice, bob)

	aliceCh := f.hub.Register("conn-alice", alice)
	bobCh := f.hub.Register("conn-bob", bob)
	sendEvent(f, "conn-alice", alice, "room.join", conversationID, "")
	sendEvent(f, "conn-bob", bob, "room.join", conversationID, "")

	sendEvent(f, "conn-alice", alice, "message.send", conversationID, "hi")

	// Durable first: the row exists regardless of delivery.
	var stored []models.Message
	require.NoError(t, f.db.Where("conversation_id = ?", conversationID).Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "hi", stored[0].Content)
	assert.Equal(t, alice, stored[0].AuthorID)

	// Both participants get the event, the sender included.
	for _, ch := range []<-chan []byte{aliceCh, bobCh} {
		ev := recv(t, ch)
		assert.Equal(t, "message.new", ev.Type)
		assert.EqualValues(t, conversationID, ev.Payload["conversation_id"])
		msg := ev.Payload["message"].(map[string]interface{})
		assert.Equal(t, "hi", msg["content"])
		assert.EqualValues(t, alice, msg["author_id"])
	}

	// And history agrees with the live event.
	history, err := f.conversations.ListMessages(context.Background(), conversationID, 10, "")
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Content)
}

func TestSendMessageUnauthorizedProducesNothing(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	conversationID := f.befriend(t, alice, bob)

	aliceCh := f.hub.Register("conn-alice", alice)
	carolCh := f.hub.Register("conn-carol", carol)
	sendEvent(f, "conn-alice", alice, "room.join", conversationID, "")

	sendEvent(f, "conn-carol", carol, "message.send", conversationID, "sneaky")

	// Zero messages persisted.
	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// The error goes only to the originating connection.
	ev := recv(t, carolCh)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "forbidden", ev.Payload["code"])
	assertEmpty(t, aliceCh)
}

func TestJoinUnauthorizedIsRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	conversationID := f.befriend(t, alice, bob)

	carolCh := f.hub.Register("conn-carol", carol)
	sendEvent(f, "conn-carol", carol, "room.join", conversationID, "")

	ev := recv(t, carolCh)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "forbidden", ev.Payload["code"])

	// The registry was never told to join, so room traffic stays invisible.
	f.hub.BroadcastToRoom(conversationID, hub.Event{Type: "message.new"})
	assertEmpty(t, carolCh)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	conversationID := f.befriend(t, alice, bob)

	aliceCh := f.hub.Register("conn-alice", alice)
	sendEvent(f, "conn-alice", alice, "room.join", conversationID, "")

	sendEvent(f, "conn-alice", alice, "message.send", conversationID, "   ")

	ev := recv(t, aliceCh)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "validation", ev.Payload["code"])

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestTypingUpdates(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	conversationID := f.befriend(t, alice, bob)

	f.hub.Register("conn-alice", alice)
	bobCh := f.hub.Register("conn-bob", bob)
	sendEvent(f, "conn-bob", bob, "room.join", conversationID, "")

	sendEvent(f, "conn-alice", alice, "typing.start", conversationID, "")
	ev := recv(t, bobCh)
	assert.Equal(t, "typing.update", ev.Type)
	assert.EqualValues(t, alice, ev.Payload["user_id"])
	assert.Equal(t, true, ev.Payload["is_typing"])

	sendEvent(f, "conn-alice", alice, "typing.stop", conversationID, "")
	ev = recv(t, bobCh)
	assert.Equal(t, "typing.update", ev.Type)
	assert.Equal(t, false, ev.Payload["is_typing"])
}

func TestRoomLeaveStopsDelivery(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	conversationID := f.befriend(t, alice, bob)

	f.hub.Register("conn-alice", alice)
	bobCh := f.hub.Register("conn-bob", bob)
	sendEvent(f, "conn-bob", bob, "room.join", conversationID, "")
	sendEvent(f, "conn-bob", bob, "room.leave", conversationID, "")

	sendEvent(f, "conn-alice", alice, "message.send", conversationID, "hi")
	assertEmpty(t, bobCh)

	// The message was still persisted; bob reconciles from history.
	history, err := f.conversations.ListMessages(context.Background(), conversationID, 10, "")
	require.NoError(t, err)
	assert.Len(t, history.Messages, 1)
}

func TestUnknownEventType(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	aliceCh := f.hub.Register("conn-alice", alice)
	sendEvent(f, "conn-alice", alice, "message.zap", 1, "")

	ev := recv(t, aliceCh)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "validation", ev.Payload["code"])
}

func TestPresenceNotifiesFriendsOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	f.befriend(t, alice, bob)

	bobCh := f.hub.Register("conn-bob", bob)
	carolCh := f.hub.Register("conn-carol", carol)

	f.gateway.notifyPresence(context.Background(), alice, true)

	ev := recv(t, bobCh)
	assert.Equal(t, "presence.update", ev.Type)
	assert.EqualValues(t, alice, ev.Payload["user_id"])
	assert.Equal(t, true, ev.Payload["online"])
	assertEmpty(t, carolCh)
}
