package app

import (
	"time"

	"chat_sync_service/internal/chatsync/domain"

	"github.com/google/uuid"
)

// OptimisticSendCoordinator local outbox, every pending or failed send grouped by conversation.
// Entries belong to the conversation they were created in and survive selection changes.
// Only pending entries take part in matching, failed ones wait for retry / discard.
type OptimisticSendCoordinator struct {
	byRef map[domain.ConversationRef][]*domain.PendingMessage
	index map[string]*domain.PendingMessage
	now   func() time.Time
	newID func() string
}

// NewOptimisticSendCoordinator create OptimisticSendCoordinator
func NewOptimisticSendCoordinator(now func() time.Time) *OptimisticSendCoordinator {
	if now == nil {
		now = time.Now
	}
	return &OptimisticSendCoordinator{
		byRef: make(map[domain.ConversationRef][]*domain.PendingMessage),
		index: make(map[string]*domain.PendingMessage),
		now:   now,
		newID: func() string { return uuid.New().String() },
	}
}

// Register create a pending entry with a fresh temp id, timestamp is now
func (c *OptimisticSendCoordinator) Register(ref domain.ConversationRef, authorID, body string, attachments []domain.Attachment) domain.PendingMessage {
	p := &domain.PendingMessage{
		TempID:      c.newID(),
		Ref:         ref,
		AuthorID:    authorID,
		Body:        body,
		Attachments: append([]domain.Attachment(nil), attachments...),
		Timestamp:   c.now(),
		Status:      domain.StatusPending,
	}
	c.byRef[ref] = append(c.byRef[ref], p)
	c.index[p.TempID] = p
	return *p
}

// Entries pending and failed entries of ref in registration order
func (c *OptimisticSendCoordinator) Entries(ref domain.ConversationRef) []domain.PendingMessage {
	list := c.byRef[ref]
	out := make([]domain.PendingMessage, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out
}

// Len number of local entries across all conversations
func (c *OptimisticSendCoordinator) Len() int {
	return len(c.index)
}

// Match oldest pending entry of ref with an equal body registered within window of at.
// Author is compared only when both sides carry one.
func (c *OptimisticSendCoordinator) Match(ref domain.ConversationRef, authorID, body string, at time.Time, window time.Duration) (domain.PendingMessage, bool) {
	for _, p := range c.byRef[ref] {
		if p.Status != domain.StatusPending || p.Body != body {
			continue
		}
		if authorID != "" && p.AuthorID != "" && authorID != p.AuthorID {
			continue
		}
		if absDuration(at.Sub(p.Timestamp)) > window {
			continue
		}
		return *p, true
	}
	return domain.PendingMessage{}, false
}

// Confirm drop the entry, it is now a server message
func (c *OptimisticSendCoordinator) Confirm(tempID string) bool {
	return c.remove(tempID) != nil
}

// Fail pending -> failed, true only on the transition itself
func (c *OptimisticSendCoordinator) Fail(tempID, reason string) bool {
	p, ok := c.index[tempID]
	if !ok || p.Status != domain.StatusPending {
		return false
	}
	p.Status = domain.StatusFailed
	p.FailReason = reason
	return true
}

// Retry remove a failed entry and hand it back so its body can be sent again
func (c *OptimisticSendCoordinator) Retry(tempID string) (domain.PendingMessage, error) {
	p, ok := c.index[tempID]
	if !ok {
		return domain.PendingMessage{}, domain.ErrUnknownTempID
	}
	if p.Status != domain.StatusFailed {
		return domain.PendingMessage{}, domain.ErrNotFailed
	}
	c.remove(tempID)
	return *p, nil
}

// Discard remove a failed entry permanently
func (c *OptimisticSendCoordinator) Discard(tempID string) (domain.PendingMessage, error) {
	return c.Retry(tempID)
}

// SweepStale fail every pending entry older than threshold, returns the entries that transitioned
func (c *OptimisticSendCoordinator) SweepStale(now time.Time, threshold time.Duration) []domain.PendingMessage {
	var failed []domain.PendingMessage
	for _, list := range c.byRef {
		for _, p := range list {
			if p.Status != domain.StatusPending || now.Sub(p.Timestamp) <= threshold {
				continue
			}
			p.Status = domain.StatusFailed
			p.FailReason = domain.ErrorCodeSendStale
			failed = append(failed, *p)
		}
	}
	return failed
}

func (c *OptimisticSendCoordinator) remove(tempID string) *domain.PendingMessage {
	p, ok := c.index[tempID]
	if !ok {
		return nil
	}
	delete(c.index, tempID)
	list := c.byRef[p.Ref]
	for i, item := range list {
		if item.TempID == tempID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.byRef, p.Ref)
	} else {
		c.byRef[p.Ref] = list
	}
	return p
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
