package domain

import (
	"sort"
	"strings"
	"time"
)

// ConversationKind channel or direct-message thread
type ConversationKind string

const (
	// KindChannel a channel conversation
	KindChannel ConversationKind = "channel"
	// KindDM a direct-message thread
	KindDM ConversationKind = "dm"
)

// TombstoneBody replaces the body of a soft-deleted message
const TombstoneBody = "[message deleted]"

// ConversationRef points at exactly one channel or dm thread
type ConversationRef struct {
	Kind ConversationKind `json:"kind"`
	ID   string           `json:"id"`
}

// Channel build a channel ref
func Channel(id string) ConversationRef {
	return ConversationRef{Kind: KindChannel, ID: id}
}

// DM build a dm thread ref
func DM(id string) ConversationRef {
	return ConversationRef{Kind: KindDM, ID: id}
}

// Valid report whether the ref names a known kind and a non-empty id
func (r ConversationRef) Valid() bool {
	return (r.Kind == KindChannel || r.Kind == KindDM) && r.ID != ""
}

// IsZero report whether the ref is unset
func (r ConversationRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// RoomName transport room for the conversation, one room per (kind, id)
func (r ConversationRef) RoomName() string {
	return string(r.Kind) + ":" + r.ID
}

func (r ConversationRef) String() string {
	return r.RoomName()
}

// ParseRoomName inverse of RoomName, "channel:42" or "dm:7"
func ParseRoomName(room string) (ConversationRef, error) {
	kind, id, ok := strings.Cut(room, ":")
	ref := ConversationRef{Kind: ConversationKind(kind), ID: id}
	if !ok || !ref.Valid() {
		return ConversationRef{}, ErrInvalidConversationRef
	}
	return ref, nil
}

// Attachment reference to an already uploaded file
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message server confirmed chat message
type Message struct {
	ID          string
	Ref         ConversationRef
	AuthorID    string
	Body        string
	CreatedAt   time.Time
	EditedAt    *time.Time
	DeletedAt   *time.Time
	Attachments []Attachment
}

// IsDeleted report whether the message carries a tombstone
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Tombstone soft delete in place
func (m *Message) Tombstone(at time.Time) {
	m.Body = TombstoneBody
	m.Attachments = nil
	m.DeletedAt = &at
}

// MessagePatch partial update carried by message_updated
type MessagePatch struct {
	Body        *string       `json:"body,omitempty"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`
	Attachments *[]Attachment `json:"attachments,omitempty"`
}

// Apply patch the message in place, createdAt and id never change
func (p MessagePatch) Apply(m *Message) {
	if m.IsDeleted() {
		return
	}
	if p.Body != nil {
		m.Body = *p.Body
	}
	if p.EditedAt != nil {
		at := *p.EditedAt
		m.EditedAt = &at
	}
	if p.Attachments != nil {
		m.Attachments = append([]Attachment(nil), (*p.Attachments)...)
	}
}

// Draft what the user typed, sent with the persist call
type Draft struct {
	TempID      string       `json:"clientId"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendStatus lifecycle of a rendered entry
type SendStatus string

const (
	// StatusPending waiting for confirmation
	StatusPending SendStatus = "pending"
	// StatusSent confirmed by the server
	StatusSent SendStatus = "sent"
	// StatusFailed rejected or stale, waiting for retry / discard
	StatusFailed SendStatus = "failed"
)

// PendingMessage local projection of a send attempt keyed by TempID
type PendingMessage struct {
	TempID      string
	Ref         ConversationRef
	AuthorID    string
	Body        string
	Attachments []Attachment
	Timestamp   time.Time
	Status      SendStatus
	FailReason  string
}

// Draft rebuild the draft for a retry
func (p *PendingMessage) Draft() Draft {
	return Draft{TempID: p.TempID, Body: p.Body, Attachments: append([]Attachment(nil), p.Attachments...)}
}

// Entry one slot in the rendered message list
type Entry struct {
	Message
	TempID string
	Status SendStatus
}

// Key identity used for ordering tie-breaks
func (e Entry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.TempID
}

// Confirmed report whether the slot holds a server message
func (e Entry) Confirmed() bool {
	return e.Status == StatusSent && e.ID != ""
}

// EntryFromMessage confirmed slot
func EntryFromMessage(m Message) Entry {
	return Entry{Message: m, Status: StatusSent}
}

// EntryFromPending local slot, CreatedAt is the enqueue time
func EntryFromPending(p *PendingMessage) Entry {
	return Entry{
		Message: Message{
			Ref:         p.Ref,
			AuthorID:    p.AuthorID,
			Body:        p.Body,
			CreatedAt:   p.Timestamp,
			Attachments: append([]Attachment(nil), p.Attachments...),
		},
		TempID: p.TempID,
		Status: p.Status,
	}
}

// Less (createdAt, key) ascending
func Less(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Key() < b.Key()
}

// SortEntries stable total order by (createdAt, key)
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// IsSorted report whether entries keep the (createdAt, key) order
func IsSorted(entries []Entry) bool {
	return sort.SliceIsSorted(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// Selection active conversation, zero value is none
type Selection struct {
	Ref ConversationRef
}

// None no active conversation
func None() Selection {
	return Selection{}
}

// Select active conversation
func Select(ref ConversationRef) Selection {
	return Selection{Ref: ref}
}

// IsNone report whether nothing is selected
func (s Selection) IsNone() bool {
	return s.Ref.IsZero()
}

// Conversation conversation list item from the REST collaborator
type Conversation struct {
	Ref           ConversationRef
	Title         string
	LastMessageID string
	LastActivity  time.Time
	Unread        int
}

// Preview conversation list item as held locally
type Preview struct {
	Conversation
	Stale bool
}
