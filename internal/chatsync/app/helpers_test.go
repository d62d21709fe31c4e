package app

import (
	"sync"
	"time"

	"chat_sync_service/internal/chatsync/domain"
)

var (
	channelA = domain.Channel("A")
	channelB = domain.Channel("B")
	baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

// fakeClock 可手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func serverMsg(id string, ref domain.ConversationRef, author, body string, at time.Time) domain.Message {
	return domain.Message{ID: id, Ref: ref, AuthorID: author, Body: body, CreatedAt: at}
}

func entryIDs(entries []domain.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key())
	}
	return out
}

// recordingSink 收集 debug event
type recordingSink struct {
	mu     sync.Mutex
	events []domain.DebugEvent
}

func (s *recordingSink) LogEvent(e domain.DebugEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Types() []domain.DebugEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DebugEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *ConversationDirectory) lookup(ref domain.ConversationRef) (domain.Preview, bool) {
	p, ok := d.items[ref]
	if !ok {
		return domain.Preview{}, false
	}
	return *p, true
}

func (c *OptimisticSendCoordinator) lookup(tempID string) (domain.PendingMessage, bool) {
	p, ok := c.index[tempID]
	if !ok {
		return domain.PendingMessage{}, false
	}
	return *p, true
}
