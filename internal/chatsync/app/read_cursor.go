package app

import "chat_sync_service/internal/chatsync/domain"

type cursorKey struct {
	ref       domain.ConversationRef
	messageID string
}

// ReadCursorTracker at most one mark-read per distinct (conversation, tail message)
type ReadCursorTracker struct {
	last    cursorKey
	emitted bool
}

// NewReadCursorTracker create ReadCursorTracker
func NewReadCursorTracker() *ReadCursorTracker {
	return &ReadCursorTracker{}
}

// Observe call after every mutation of the active list.
// The tail is the last entry carrying a server id, local entries are skipped.
func (r *ReadCursorTracker) Observe(ref domain.ConversationRef, entries []domain.Entry) (string, bool) {
	if ref.IsZero() {
		return "", false
	}
	tail := ""
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID != "" {
			tail = entries[i].ID
			break
		}
	}
	if tail == "" {
		return "", false
	}
	key := cursorKey{ref: ref, messageID: tail}
	if r.emitted && key == r.last {
		return "", false
	}
	r.last = key
	r.emitted = true
	return tail, true
}
