package domain

import (
	"context"
	"time"
)

// Unsubscribe detach a handler registered on a port, safe to call more than once
type Unsubscribe func()

// RawEvent event as delivered by a transport, data is the undecoded json payload
type RawEvent struct {
	Name EventName
	Data []byte
}

// ConnectionPort pub/sub transport used by the session.
// Subscriptions are not assumed to survive a reconnect.
type ConnectionPort interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// JoinRoom returns ErrAccessDenied when the server refuses the join
	JoinRoom(ctx context.Context, room string) error
	LeaveRoom(ctx context.Context, room string) error
	Emit(ctx context.Context, name EventName, payload interface{}) error
	Subscribe(name EventName, handler func(RawEvent)) Unsubscribe
	// SubscribeStatus handler receives true on connect and false on disconnect
	SubscribeStatus(handler func(connected bool)) Unsubscribe
	SocketID() string
}

// MessageAPI REST collaborator
type MessageAPI interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	FetchMessages(ctx context.Context, ref ConversationRef) ([]Message, error)
	// PersistMessage returns the canonical message
	PersistMessage(ctx context.Context, ref ConversationRef, draft Draft) (Message, error)
	EditMessage(ctx context.Context, ref ConversationRef, messageID, body string) (Message, error)
	DeleteMessage(ctx context.Context, ref ConversationRef, messageID string) error
	MarkRead(ctx context.Context, ref ConversationRef, messageID string) error
	AddMember(ctx context.Context, ref ConversationRef, userID string) error
	RemoveMember(ctx context.Context, ref ConversationRef, userID string) error
}

// NoticeKind user visible notices raised by the session
type NoticeKind string

const (
	// NoticeAccessDenied room join refused, selection forced to none
	NoticeAccessDenied NoticeKind = "access_denied"
	// NoticeRemovedFromConversation we were removed from a room
	NoticeRemovedFromConversation NoticeKind = "removed_from_conversation"
	// NoticeSendFailed a send became failed, retry or discard it
	NoticeSendFailed NoticeKind = "send_failed"
	// NoticeSnapshotFailed snapshot fetch failed, list kept empty
	NoticeSnapshotFailed NoticeKind = "snapshot_failed"
)

// Notice user visible notice
type Notice struct {
	Kind   NoticeKind
	Ref    ConversationRef
	TempID string
	Err    error
	At     time.Time
}

// Hooks observers of the session, every hook is optional and runs outside the session lock
type Hooks struct {
	// OnEntries active conversation list changed, entries is a copy
	OnEntries func(ref ConversationRef, entries []Entry)
	// OnConversations conversation directory changed
	OnConversations func(previews []Preview)
	// OnMembership membership list of ref should be refetched
	OnMembership func(ref ConversationRef, userID string, event EventName)
	// OnSelection active conversation changed
	OnSelection func(sel Selection)
	// OnNotice user visible notice
	OnNotice func(n Notice)
}
