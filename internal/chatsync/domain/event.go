package domain

import "time"

// EventName transport event name
type EventName string

const (
	// EventNewMessage a message was persisted and broadcast, at-least-once
	EventNewMessage EventName = "new_message"
	// EventMessageUpdated id addressed partial patch
	EventMessageUpdated EventName = "message_updated"
	// EventMessageDeleted id addressed tombstone
	EventMessageDeleted EventName = "message_deleted"
	// EventMemberJoined membership list changed
	EventMemberJoined EventName = "member_joined"
	// EventMemberLeft membership list changed
	EventMemberLeft EventName = "member_left"
	// EventMemberAdded emitted to the room itself
	EventMemberAdded EventName = "member_added"
	// EventMemberRemoved emitted to the room itself, self removal evicts the conversation
	EventMemberRemoved EventName = "member_removed"
)

// InboundEvents every event name a ConnectionPort delivers to the session
var InboundEvents = []EventName{
	EventNewMessage,
	EventMessageUpdated,
	EventMessageDeleted,
	EventMemberJoined,
	EventMemberLeft,
	EventMemberAdded,
	EventMemberRemoved,
}

// InboundEvent closed union of transport events, one variant per event family
type InboundEvent interface {
	Name() EventName
	Target() ConversationRef
	inbound()
}

// NewMessage new_message payload
type NewMessage struct {
	Ref     ConversationRef
	Message Message
}

// MessageUpdated message_updated payload
type MessageUpdated struct {
	Ref       ConversationRef
	MessageID string
	Patch     MessagePatch
}

// MessageDeleted message_deleted payload
type MessageDeleted struct {
	Ref       ConversationRef
	MessageID string
	DeletedAt time.Time
}

// MemberPresence member_joined / member_left payload
type MemberPresence struct {
	Ref    ConversationRef
	UserID string
	Joined bool
}

// MemberRoster member_added / member_removed payload
type MemberRoster struct {
	Ref    ConversationRef
	UserID string
	Added  bool
}

// Name event name
func (NewMessage) Name() EventName { return EventNewMessage }

// Name event name
func (MessageUpdated) Name() EventName { return EventMessageUpdated }

// Name event name
func (MessageDeleted) Name() EventName { return EventMessageDeleted }

// Name event name
func (e MemberPresence) Name() EventName {
	if e.Joined {
		return EventMemberJoined
	}
	return EventMemberLeft
}

// Name event name
func (e MemberRoster) Name() EventName {
	if e.Added {
		return EventMemberAdded
	}
	return EventMemberRemoved
}

// Target conversation the event belongs to
func (e NewMessage) Target() ConversationRef { return e.Ref }

// Target conversation the event belongs to
func (e MessageUpdated) Target() ConversationRef { return e.Ref }

// Target conversation the event belongs to
func (e MessageDeleted) Target() ConversationRef { return e.Ref }

// Target conversation the event belongs to
func (e MemberPresence) Target() ConversationRef { return e.Ref }

// Target conversation the event belongs to
func (e MemberRoster) Target() ConversationRef { return e.Ref }

func (NewMessage) inbound()     {}
func (MessageUpdated) inbound() {}
func (MessageDeleted) inbound() {}
func (MemberPresence) inbound() {}
func (MemberRoster) inbound()   {}
