package app

import (
	"sort"

	"chat_sync_service/internal/chatsync/domain"
)

// ConversationDirectory conversation list previews
type ConversationDirectory struct {
	items map[domain.ConversationRef]*domain.Preview
}

// NewConversationDirectory create ConversationDirectory
func NewConversationDirectory() *ConversationDirectory {
	return &ConversationDirectory{items: make(map[domain.ConversationRef]*domain.Preview)}
}

// Replace swap in a freshly fetched list, every preview is fresh again
func (d *ConversationDirectory) Replace(list []domain.Conversation) {
	d.items = make(map[domain.ConversationRef]*domain.Preview, len(list))
	for _, c := range list {
		d.items[c.Ref] = &domain.Preview{Conversation: c}
	}
}

// Invalidate mark the preview of ref stale, unknown refs get a placeholder
func (d *ConversationDirectory) Invalidate(ref domain.ConversationRef, lastMessageID string) bool {
	p, ok := d.items[ref]
	if !ok {
		p = &domain.Preview{Conversation: domain.Conversation{Ref: ref}}
		d.items[ref] = p
	}
	changed := !p.Stale || (lastMessageID != "" && p.LastMessageID != lastMessageID)
	p.Stale = true
	if lastMessageID != "" {
		p.LastMessageID = lastMessageID
	}
	return changed
}

// Touch record a message seen in the active conversation
func (d *ConversationDirectory) Touch(m domain.Message) {
	p, ok := d.items[m.Ref]
	if !ok {
		return
	}
	p.LastMessageID = m.ID
	if m.CreatedAt.After(p.LastActivity) {
		p.LastActivity = m.CreatedAt
	}
}

// MarkRead clear the unread counter of ref
func (d *ConversationDirectory) MarkRead(ref domain.ConversationRef) {
	if p, ok := d.items[ref]; ok {
		p.Unread = 0
	}
}

// Evict drop ref from the list
func (d *ConversationDirectory) Evict(ref domain.ConversationRef) bool {
	if _, ok := d.items[ref]; !ok {
		return false
	}
	delete(d.items, ref)
	return true
}

// List previews, most recent activity first
func (d *ConversationDirectory) List() []domain.Preview {
	out := make([]domain.Preview, 0, len(d.items))
	for _, p := range d.items {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].Ref.RoomName() < out[j].Ref.RoomName()
	})
	return out
}
