// Package events defines the closed contract between the relationship store
// and the notification collaborator: a fixed set of named events with fixed
// payload shapes, not an open string-keyed bus.
package events

import "log"

// RelationshipProposed is emitted when a friend request is created.
type RelationshipProposed struct {
	RelationshipID uint
	RequesterID    uint
	AddresseeID    uint
}

// RelationshipAccepted is emitted when a friend request is accepted and its
// direct conversation has been provisioned.
type RelationshipAccepted struct {
	RelationshipID uint
	RequesterID    uint
	AddresseeID    uint
	ConversationID uint
}

// Notifier receives relationship domain events. Delivery to offline users is
// the subscriber's concern; emitting must never fail the originating command.
type Notifier interface {
	RelationshipProposed(event RelationshipProposed)
	RelationshipAccepted(event RelationshipAccepted)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) RelationshipProposed(RelationshipProposed) {}
func (NopNotifier) RelationshipAccepted(RelationshipAccepted) {}

// LogNotifier writes events to the process log, the default wiring when no
// notification collaborator is attached.
type LogNotifier struct{}

func (LogNotifier) RelationshipProposed(event RelationshipProposed) {
	log.Printf("event relationship.proposed: relationship=%d requester=%d addressee=%d",
		event.RelationshipID, event.RequesterID, event.AddresseeID)
}

func (LogNotifier) RelationshipAccepted(event RelationshipAccepted) {
	log.Printf("event relationship.accepted: relationship=%d requester=%d addressee=%d conversation=%d",
		event.RelationshipID, event.RequesterID, event.AddresseeID, event.ConversationID)
}
