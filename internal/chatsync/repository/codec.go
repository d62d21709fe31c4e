package repository

import (
	"time"

	"chat_sync_service/internal/chatsync/domain"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// control events of the room protocol
const (
	EventJoinRoom   domain.EventName = "join_room"
	EventLeaveRoom  domain.EventName = "leave_room"
	EventRoomJoined domain.EventName = "room_joined"
	EventRoomError  domain.EventName = "room_error"
)

// RoomErrorForbidden room_error code for a refused join
const RoomErrorForbidden = "forbidden"

// Envelope wire frame shared by every transport
type Envelope struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// RoomControl join_room / leave_room / room_joined / room_error payload
type RoomControl struct {
	Room    string `json:"room"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WireMessage message as sent by the chat backend, channelId XOR dmThreadId
type WireMessage struct {
	ID          string              `json:"id"`
	ChannelID   string              `json:"channelId,omitempty"`
	DMThreadID  string              `json:"dmThreadId,omitempty"`
	AuthorID    string              `json:"authorId"`
	Body        string              `json:"body"`
	CreatedAt   time.Time           `json:"createdAt"`
	EditedAt    *time.Time          `json:"editedAt,omitempty"`
	DeletedAt   *time.Time          `json:"deletedAt,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// WireConversation conversation list item
type WireConversation struct {
	Type          domain.ConversationKind `json:"type"`
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	LastMessageID string                  `json:"lastMessageId,omitempty"`
	LastActivity  time.Time               `json:"lastActivity"`
	Unread        int                     `json:"unread"`
}

type target struct {
	TargetType domain.ConversationKind `json:"targetType"`
	TargetID   string                  `json:"targetId"`
}

type newMessagePayload struct {
	target
	Message WireMessage `json:"message"`
}

type updatedPayload struct {
	target
	MessageID string              `json:"messageId"`
	Updates   domain.MessagePatch `json:"updates"`
}

type deletedPayload struct {
	target
	MessageID string     `json:"messageId"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type memberPayload struct {
	target
	UserID string `json:"userId"`
}

// ToDomain validate the conversation reference and convert
func (w WireMessage) ToDomain() (domain.Message, error) {
	var ref domain.ConversationRef
	switch {
	case w.ChannelID != "" && w.DMThreadID == "":
		ref = domain.Channel(w.ChannelID)
	case w.DMThreadID != "" && w.ChannelID == "":
		ref = domain.DM(w.DMThreadID)
	default:
		return domain.Message{}, errors.Wrapf(domain.ErrInvalidConversationRef, "message %s", w.ID)
	}
	return domain.Message{
		ID:          w.ID,
		Ref:         ref,
		AuthorID:    w.AuthorID,
		Body:        w.Body,
		CreatedAt:   w.CreatedAt,
		EditedAt:    w.EditedAt,
		DeletedAt:   w.DeletedAt,
		Attachments: w.Attachments,
	}, nil
}

// FromMessage convert a domain message to its wire form
func FromMessage(m domain.Message) WireMessage {
	w := WireMessage{
		ID:          m.ID,
		AuthorID:    m.AuthorID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
		DeletedAt:   m.DeletedAt,
		Attachments: m.Attachments,
	}
	if m.Ref.Kind == domain.KindDM {
		w.DMThreadID = m.Ref.ID
	} else {
		w.ChannelID = m.Ref.ID
	}
	return w
}

// ToDomain convert
func (w WireConversation) ToDomain() (domain.Conversation, error) {
	ref := domain.ConversationRef{Kind: w.Type, ID: w.ID}
	if !ref.Valid() {
		return domain.Conversation{}, errors.Wrapf(domain.ErrInvalidConversationRef, "conversation %q", w.ID)
	}
	return domain.Conversation{
		Ref:           ref,
		Title:         w.Title,
		LastMessageID: w.LastMessageID,
		LastActivity:  w.LastActivity,
		Unread:        w.Unread,
	}, nil
}

// EncodeEnvelope marshal payload into a frame
func EncodeEnvelope(name domain.EventName, payload interface{}) ([]byte, error) {
	env := Envelope{Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s", name)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope unmarshal a frame
func DecodeEnvelope(b []byte) (domain.RawEvent, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return domain.RawEvent{}, errors.Wrap(err, "decode envelope")
	}
	if env.Event == "" {
		return domain.RawEvent{}, errors.Wrap(domain.ErrUnknownEvent, "empty event name")
	}
	return domain.RawEvent{Name: env.Event, Data: env.Data}, nil
}

// DecodeInbound decode a raw event into the closed inbound union
func DecodeInbound(raw domain.RawEvent) (domain.InboundEvent, error) {
	switch raw.Name {
	case domain.EventNewMessage:
		var p newMessagePayload
		if err := unmarshal(raw, &p); err != nil {
			return nil, err
		}
		ref, err := p.ref()
		if err != nil {
			return nil, err
		}
		m, err := p.Message.ToDomain()
		if err != nil {
			return nil, err
		}
		if m.Ref != ref {
			return nil, errors.Wrapf(domain.ErrInvalidConversationRef, "message %s targets %s but belongs to %s", m.ID, ref, m.Ref)
		}
		return domain.NewMessage{Ref: ref, Message: m}, nil

	case domain.EventMessageUpdated:
		var p updatedPayload
		if err := unmarshal(raw, &p); err != nil {
			return nil, err
		}
		ref, err := p.ref()
		if err != nil {
			return nil, err
		}
		return domain.MessageUpdated{Ref: ref, MessageID: p.MessageID, Patch: p.Updates}, nil

	case domain.EventMessageDeleted:
		var p deletedPayload
		if err := unmarshal(raw, &p); err != nil {
			return nil, err
		}
		ref, err := p.ref()
		if err != nil {
			return nil, err
		}
		ev := domain.MessageDeleted{Ref: ref, MessageID: p.MessageID}
		if p.DeletedAt != nil {
			ev.DeletedAt = *p.DeletedAt
		}
		return ev, nil

	case domain.EventMemberJoined, domain.EventMemberLeft:
		var p memberPayload
		if err := unmarshal(raw, &p); err != nil {
			return nil, err
		}
		ref, err := p.ref()
		if err != nil {
			return nil, err
		}
		return domain.MemberPresence{Ref: ref, UserID: p.UserID, Joined: raw.Name == domain.EventMemberJoined}, nil

	case domain.EventMemberAdded, domain.EventMemberRemoved:
		var p memberPayload
		if err := unmarshal(raw, &p); err != nil {
			return nil, err
		}
		ref, err := p.ref()
		if err != nil {
			return nil, err
		}
		return domain.MemberRoster{Ref: ref, UserID: p.UserID, Added: raw.Name == domain.EventMemberAdded}, nil
	}
	return nil, errors.Wrapf(domain.ErrUnknownEvent, "%q", raw.Name)
}

// EncodeInbound build the wire payload of an inbound event, used by publishers and tests
func EncodeInbound(ev domain.InboundEvent) ([]byte, error) {
	t := target{TargetType: ev.Target().Kind, TargetID: ev.Target().ID}
	var payload interface{}
	switch e := ev.(type) {
	case domain.NewMessage:
		payload = newMessagePayload{target: t, Message: FromMessage(e.Message)}
	case domain.MessageUpdated:
		payload = updatedPayload{target: t, MessageID: e.MessageID, Updates: e.Patch}
	case domain.MessageDeleted:
		at := e.DeletedAt
		payload = deletedPayload{target: t, MessageID: e.MessageID, DeletedAt: &at}
	case domain.MemberPresence:
		payload = memberPayload{target: t, UserID: e.UserID}
	case domain.MemberRoster:
		payload = memberPayload{target: t, UserID: e.UserID}
	default:
		return nil, errors.Wrapf(domain.ErrUnknownEvent, "%T", ev)
	}
	return EncodeEnvelope(ev.Name(), payload)
}

func (t target) ref() (domain.ConversationRef, error) {
	ref := domain.ConversationRef{Kind: t.TargetType, ID: t.TargetID}
	if !ref.Valid() {
		return domain.ConversationRef{}, errors.Wrapf(domain.ErrInvalidConversationRef, "target %s:%s", t.TargetType, t.TargetID)
	}
	return ref, nil
}

func unmarshal(raw domain.RawEvent, v interface{}) error {
	if err := json.Unmarshal(raw.Data, v); err != nil {
		return errors.Wrapf(err, "decode %s", raw.Name)
	}
	return nil
}
