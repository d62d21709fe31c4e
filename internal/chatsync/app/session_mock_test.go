package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/internal/chatsync/repository"

	"github.com/stretchr/testify/mock"
)

// MockMessageAPI Mock MessageAPI, persist overrides PersistMessage when set
type MockMessageAPI struct {
	mock.Mock
	persist func(ctx context.Context, ref domain.ConversationRef, draft domain.Draft) (domain.Message, error)
}

// ListConversations moke list conversations
func (m *MockMessageAPI) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FetchMessages moke fetch snapshot
func (m *MockMessageAPI) FetchMessages(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// PersistMessage moke persist
func (m *MockMessageAPI) PersistMessage(ctx context.Context, ref domain.ConversationRef, draft domain.Draft) (domain.Message, error) {
	if m.persist != nil {
		return m.persist(ctx, ref, draft)
	}
	args := m.Called(ctx, ref, draft)
	return args.Get(0).(domain.Message), args.Error(1)
}

// EditMessage moke edit
func (m *MockMessageAPI) EditMessage(ctx context.Context, ref domain.ConversationRef, messageID, body string) (domain.Message, error) {
	args := m.Called(ctx, ref, messageID, body)
	return args.Get(0).(domain.Message), args.Error(1)
}

// DeleteMessage moke delete
func (m *MockMessageAPI) DeleteMessage(ctx context.Context, ref domain.ConversationRef, messageID string) error {
	args := m.Called(ctx, ref, messageID)
	return args.Error(0)
}

// MarkRead moke mark read
func (m *MockMessageAPI) MarkRead(ctx context.Context, ref domain.ConversationRef, messageID string) error {
	args := m.Called(ctx, ref, messageID)
	return args.Error(0)
}

// AddMember moke add member
func (m *MockMessageAPI) AddMember(ctx context.Context, ref domain.ConversationRef, userID string) error {
	args := m.Called(ctx, ref, userID)
	return args.Error(0)
}

// RemoveMember moke remove member
func (m *MockMessageAPI) RemoveMember(ctx context.Context, ref domain.ConversationRef, userID string) error {
	args := m.Called(ctx, ref, userID)
	return args.Error(0)
}

// fakePort 記憶體內的 ConnectionPort，事件由測試直接推送
type fakePort struct {
	mu       sync.Mutex
	up       bool
	next     int
	handlers map[domain.EventName]map[int]func(domain.RawEvent)
	status   map[int]func(bool)
	joinErr  map[string]error
	joins    []string
	leaves   []string
}

func newFakePort() *fakePort {
	return &fakePort{
		handlers: make(map[domain.EventName]map[int]func(domain.RawEvent)),
		status:   make(map[int]func(bool)),
		joinErr:  make(map[string]error),
	}
}

func (p *fakePort) Connect(ctx context.Context) error {
	p.SetUp(true)
	return nil
}

func (p *fakePort) Disconnect() error {
	p.SetUp(false)
	return nil
}

func (p *fakePort) JoinRoom(ctx context.Context, room string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.up {
		return domain.ErrNotConnected
	}
	if err := p.joinErr[room]; err != nil {
		return err
	}
	p.joins = append(p.joins, room)
	return nil
}

func (p *fakePort) LeaveRoom(ctx context.Context, room string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaves = append(p.leaves, room)
	return nil
}

func (p *fakePort) Emit(ctx context.Context, name domain.EventName, payload interface{}) error {
	return nil
}

func (p *fakePort) Subscribe(name domain.EventName, handler func(domain.RawEvent)) domain.Unsubscribe {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	if p.handlers[name] == nil {
		p.handlers[name] = make(map[int]func(domain.RawEvent))
	}
	p.handlers[name][id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers[name], id)
	}
}

func (p *fakePort) SubscribeStatus(handler func(bool)) domain.Unsubscribe {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.status[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.status, id)
	}
}

func (p *fakePort) SocketID() string {
	return "sock-1"
}

func (p *fakePort) SetUp(up bool) {
	p.mu.Lock()
	p.up = up
	hs := make([]func(bool), 0, len(p.status))
	for _, h := range p.status {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(up)
	}
}

func (p *fakePort) DenyJoin(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinErr[room] = domain.ErrAccessDenied
}

// Deliver 以 wire 格式推送事件給訂閱者
func (p *fakePort) Deliver(ev domain.InboundEvent) {
	frame, err := repository.EncodeInbound(ev)
	if err != nil {
		panic(err)
	}
	raw, err := repository.DecodeEnvelope(frame)
	if err != nil {
		panic(err)
	}
	p.DeliverRaw(raw)
}

func (p *fakePort) DeliverRaw(raw domain.RawEvent) {
	p.mu.Lock()
	hs := make([]func(domain.RawEvent), 0, len(p.handlers[raw.Name]))
	for _, h := range p.handlers[raw.Name] {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (p *fakePort) Joins() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.joins...)
}

func (p *fakePort) Leaves() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.leaves...)
}

// noticeRecorder 收集 hook 通知
type noticeRecorder struct {
	mu      sync.Mutex
	notices []domain.Notice
	sels    []domain.Selection
}

func (r *noticeRecorder) hooks() domain.Hooks {
	return domain.Hooks{
		OnNotice: func(n domain.Notice) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notices = append(r.notices, n)
		},
		OnSelection: func(sel domain.Selection) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sels = append(r.sels, sel)
		},
	}
}

func (r *noticeRecorder) Kinds() []domain.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}
