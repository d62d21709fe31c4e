package domain

import "time"

// DebugEventType closed set of observable transitions
type DebugEventType string

const (
	DebugConnectionEstablished DebugEventType = "connection_established"
	DebugConnectionClosed      DebugEventType = "connection_closed"
	DebugRoomJoined            DebugEventType = "room_joined"
	DebugRoomLeft              DebugEventType = "room_left"
	DebugRoomJoinDenied        DebugEventType = "room_join_denied"
	DebugMessageSent           DebugEventType = "message_sent"
	DebugMessageReceived       DebugEventType = "message_received"
	DebugMessageConfirmed      DebugEventType = "message_confirmed"
	DebugMessageFailed         DebugEventType = "message_failed"
	DebugMessageDuplicate      DebugEventType = "message_duplicate"
	DebugMessageUpdated        DebugEventType = "message_updated"
	DebugMessageDeleted        DebugEventType = "message_deleted"
	DebugMembershipChanged     DebugEventType = "membership_changed"
	DebugResync                DebugEventType = "resync"
	DebugError                 DebugEventType = "error"
)

// Error codes attached to debug events
const (
	ErrorCodeSendRejected   = "send_rejected"
	ErrorCodeSendStale      = "send_stale"
	ErrorCodeJoinDenied     = "join_denied"
	ErrorCodeJoinFailed     = "join_failed"
	ErrorCodeSnapshotFailed = "snapshot_failed"
	ErrorCodeDecodeFailed   = "decode_failed"
	ErrorCodeMarkReadFailed = "mark_read_failed"
)

// DebugEvent immutable record safe to show operators.
// It only carries ids, timestamps, sizes and codes, never message content.
type DebugEvent struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Type           DebugEventType `json:"eventType"`
	SocketID       string         `json:"socketId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	TenantID       string         `json:"tenantId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	RoomName       string         `json:"roomName,omitempty"`
	PayloadSize    int            `json:"payloadSize,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
}

// ErrorCount frequency of one error code
type ErrorCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Metrics derived snapshot, recomputed on read
type Metrics struct {
	ActiveConnections   int           `json:"activeConnections"`
	JoinedRooms         int           `json:"joinedRooms"`
	MessagesInWindow    int           `json:"messagesInWindow"`
	DisconnectsInWindow int           `json:"disconnectsInWindow"`
	TopErrors           []ErrorCount  `json:"topErrors"`
	Window              time.Duration `json:"window"`
	GeneratedAt         time.Time     `json:"generatedAt"`
	EventCount          int           `json:"eventCount"`
}

// DebugSink where components report transitions
type DebugSink interface {
	LogEvent(e DebugEvent)
}

// NopDebugSink drops every event
type NopDebugSink struct{}

// LogEvent drop
func (NopDebugSink) LogEvent(DebugEvent) {}
