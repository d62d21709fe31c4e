package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/internal/chatsync/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// SessionConfig per user settings of a Session
type SessionConfig struct {
	UserID      string
	TenantID    string
	MatchWindow time.Duration
	StaleAfter  time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Session one user's sync context, owns every reconciliation component.
// State changes are serialized by mu and hooks run after it is released.
type Session struct {
	mu       sync.Mutex
	selectMu sync.Mutex

	cfg   SessionConfig
	port  domain.ConnectionPort
	api   domain.MessageAPI
	sink  domain.DebugSink
	hooks domain.Hooks

	monitor *ConnectionMonitor
	rooms   *RoomSubscriptionManager
	outbox  *OptimisticSendCoordinator
	engine  *ReconciliationEngine
	cursor  *ReadCursorTracker
	convs   *ConversationDirectory

	generation uint64
	unsubs     []domain.Unsubscribe
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	started    bool
}

// notifier hooks and follow-up work collected under the lock, run after it
type notifier []func()

func (n *notifier) add(fn func()) {
	if fn != nil {
		*n = append(*n, fn)
	}
}

func (n notifier) flush() {
	for _, fn := range n {
		fn()
	}
}

// NewSession create Session
func NewSession(port domain.ConnectionPort, api domain.MessageAPI, sink domain.DebugSink, hooks domain.Hooks, cfg SessionConfig) *Session {
	if sink == nil {
		sink = domain.NopDebugSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MatchWindow <= 0 {
		cfg.MatchWindow = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}

	s := &Session{
		cfg:    cfg,
		port:   port,
		api:    api,
		sink:   sink,
		hooks:  hooks,
		outbox: NewOptimisticSendCoordinator(cfg.Now),
		cursor: NewReadCursorTracker(),
		convs:  NewConversationDirectory(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.monitor = NewConnectionMonitor(port, sink, cfg.UserID, cfg.TenantID)
	s.rooms = NewRoomSubscriptionManager(port, s.monitor.IsConnected, sink, cfg.UserID, cfg.TenantID)
	s.engine = NewReconciliationEngine(s.outbox, cfg.MatchWindow)
	return s
}

// Start attach to the transport and connect, every down -> up transition triggers a full resync
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	for _, name := range domain.InboundEvents {
		s.unsubs = append(s.unsubs, s.port.Subscribe(name, s.handleRaw))
	}
	s.unsubs = append(s.unsubs,
		s.monitor.OnChange(func(connected bool) {
			if !connected {
				s.rooms.OnDisconnect()
			}
		}),
		// 第一次連線也走這裡，載入對話列表並加入延後的 room
		s.monitor.OnReconnect(func() {
			s.spawn(s.resync)
		}),
	)
	s.mu.Unlock()
	s.monitor.Attach()

	if err := s.port.Connect(ctx); err != nil {
		logger.Log.Errorf("chat sync connect failed", err)
		return err
	}
	return nil
}

// Close detach, disconnect and wait for in-flight work
func (s *Session) Close() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.monitor.Detach()
	err := s.port.Disconnect()
	s.cancel()
	s.wg.Wait()
	return err
}

// Drain wait for every spawned persist / snapshot / mark-read call
func (s *Session) Drain() {
	s.wg.Wait()
}

// Active current selection
func (s *Session) Active() domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Select(s.engine.Ref())
}

// Entries rendered list of the active conversation
func (s *Session) Entries() []domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Entries()
}

// Conversations conversation list previews
func (s *Session) Conversations() []domain.Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs.List()
}

// IsConnected transport state
func (s *Session) IsConnected() bool {
	return s.monitor.IsConnected()
}

// SessionStats counters safe to expose on the debug surface, no message content
type SessionStats struct {
	Connected     bool   `json:"connected"`
	SocketID      string `json:"socketId,omitempty"`
	Active        string `json:"active,omitempty"`
	JoinedRoom    string `json:"joinedRoom,omitempty"`
	Entries       int    `json:"entries"`
	Outbox        int    `json:"outbox"`
	Seen          int    `json:"seen"`
	Conversations int    `json:"conversations"`
}

// Stats snapshot of the session counters
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	st := SessionStats{
		Entries:       len(s.engine.Entries()),
		Outbox:        s.outbox.Len(),
		Seen:          s.engine.SeenCount(),
		Conversations: len(s.convs.List()),
	}
	if ref := s.engine.Ref(); !ref.IsZero() {
		st.Active = ref.RoomName()
	}
	s.mu.Unlock()

	st.Connected = s.monitor.IsConnected()
	st.SocketID = s.port.SocketID()
	st.JoinedRoom = s.rooms.Joined()
	return st
}

// Select switch the active conversation.
// The old room is left, the new one joined and its snapshot loaded. Selecting the active conversation is a no-op.
func (s *Session) Select(ctx context.Context, sel domain.Selection) error {
	if !sel.IsNone() && !sel.Ref.Valid() {
		return domain.ErrInvalidConversationRef
	}

	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	if s.Active() == sel && s.rooms.Active() == sel {
		return nil
	}

	var n notifier
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if sel.IsNone() {
		s.engine.Clear()
	} else {
		s.engine.Activate(sel.Ref)
	}
	s.selectionChanged(&n, sel)
	s.mu.Unlock()
	n.flush()

	_, joinErr := s.rooms.Select(ctx, sel)
	if errors.Is(joinErr, domain.ErrAccessDenied) {
		s.denied(sel.Ref, gen, joinErr)
		return joinErr
	}
	if sel.IsNone() {
		return nil
	}

	if err := s.hydrate(ctx, sel.Ref, gen); err != nil {
		return err
	}
	return joinErr
}

// Send render a pending entry in the active conversation and persist it in the background
func (s *Session) Send(ctx context.Context, body string, attachments []domain.Attachment) (string, error) {
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return "", domain.ErrEmptyBody
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var n notifier
	s.mu.Lock()
	ref := s.engine.Ref()
	if ref.IsZero() {
		s.mu.Unlock()
		return "", domain.ErrNoActiveConversation
	}
	p := s.outbox.Register(ref, s.cfg.UserID, body, attachments)
	s.engine.AddLocal(p)
	s.debug(domain.DebugMessageSent, ref, len(body), "")
	s.entriesChanged(&n)
	s.mu.Unlock()
	n.flush()

	s.dispatch(p)
	return p.TempID, nil
}

// Retry send the body of a failed entry again under a fresh temp id
func (s *Session) Retry(ctx context.Context, tempID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var n notifier
	s.mu.Lock()
	old, err := s.outbox.Retry(tempID)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.engine.RemoveLocal(tempID)
	p := s.outbox.Register(old.Ref, old.AuthorID, old.Body, old.Attachments)
	s.engine.AddLocal(p)
	s.debug(domain.DebugMessageSent, p.Ref, len(p.Body), "")
	s.entriesChanged(&n)
	s.mu.Unlock()
	n.flush()

	s.dispatch(p)
	return p.TempID, nil
}

// Discard drop a failed entry
func (s *Session) Discard(tempID string) error {
	var n notifier
	s.mu.Lock()
	if _, err := s.outbox.Discard(tempID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.engine.RemoveLocal(tempID) {
		s.entriesChanged(&n)
	}
	s.mu.Unlock()
	n.flush()
	return nil
}

// Edit change the body of a message in the active conversation
func (s *Session) Edit(ctx context.Context, messageID, body string) error {
	if strings.TrimSpace(body) == "" {
		return domain.ErrEmptyBody
	}
	ref, err := s.activeRef()
	if err != nil {
		return err
	}
	m, err := s.api.EditMessage(ctx, ref, messageID, body)
	if err != nil {
		return err
	}

	patch := domain.MessagePatch{Body: &m.Body, EditedAt: m.EditedAt}
	if m.EditedAt == nil {
		at := s.cfg.Now()
		patch.EditedAt = &at
	}
	var n notifier
	s.mu.Lock()
	if s.engine.ApplyUpdate(ref, messageID, patch) {
		s.entriesChanged(&n)
	}
	s.mu.Unlock()
	n.flush()
	return nil
}

// Delete tombstone a message in the active conversation
func (s *Session) Delete(ctx context.Context, messageID string) error {
	ref, err := s.activeRef()
	if err != nil {
		return err
	}
	if err := s.api.DeleteMessage(ctx, ref, messageID); err != nil {
		return err
	}

	var n notifier
	s.mu.Lock()
	if s.engine.ApplyDelete(ref, messageID, s.cfg.Now()) {
		s.entriesChanged(&n)
	}
	s.mu.Unlock()
	n.flush()
	return nil
}

// AddMember add a user to the active conversation
func (s *Session) AddMember(ctx context.Context, userID string) error {
	ref, err := s.activeRef()
	if err != nil {
		return err
	}
	return s.api.AddMember(ctx, ref, userID)
}

// RemoveMember remove a user from the active conversation
func (s *Session) RemoveMember(ctx context.Context, userID string) error {
	ref, err := s.activeRef()
	if err != nil {
		return err
	}
	return s.api.RemoveMember(ctx, ref, userID)
}

// RefreshConversations refetch the conversation list
func (s *Session) RefreshConversations(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	var n notifier
	s.mu.Lock()
	s.convs.Replace(list)
	s.conversationsChanged(&n)
	s.mu.Unlock()
	n.flush()
	return nil
}

// SweepStale fail pending entries older than the staleness threshold, returns how many transitioned
func (s *Session) SweepStale() int {
	var n notifier
	s.mu.Lock()
	failed := s.outbox.SweepStale(s.cfg.Now(), s.cfg.StaleAfter)
	changed := false
	for _, p := range failed {
		if s.engine.SetLocalStatus(p.TempID, domain.StatusFailed) {
			changed = true
		}
		s.debug(domain.DebugMessageFailed, p.Ref, len(p.Body), domain.ErrorCodeSendStale)
		s.notice(&n, domain.Notice{Kind: domain.NoticeSendFailed, Ref: p.Ref, TempID: p.TempID, Err: domain.ErrStaleAcknowledgment})
	}
	if changed {
		s.entriesChanged(&n)
	}
	s.mu.Unlock()
	n.flush()
	return len(failed)
}

func (s *Session) activeRef() (domain.ConversationRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.engine.Ref()
	if ref.IsZero() {
		return ref, domain.ErrNoActiveConversation
	}
	return ref, nil
}

func (s *Session) dispatch(p domain.PendingMessage) {
	s.spawn(func(ctx context.Context) {
		m, err := s.api.PersistMessage(ctx, p.Ref, p.Draft())
		s.persisted(p, m, err)
	})
}

func (s *Session) persisted(p domain.PendingMessage, m domain.Message, err error) {
	var n notifier
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		n.flush()
	}()

	if err != nil {
		if !s.outbox.Fail(p.TempID, domain.ErrorCodeSendRejected) {
			return
		}
		logger.Log.Warn("message persist failed", zap.String("temp_id", p.TempID), zap.String("room", p.Ref.RoomName()), zap.Error(err))
		s.debug(domain.DebugMessageFailed, p.Ref, len(p.Body), domain.ErrorCodeSendRejected)
		if s.engine.SetLocalStatus(p.TempID, domain.StatusFailed) {
			s.entriesChanged(&n)
		}
		s.notice(&n, domain.Notice{Kind: domain.NoticeSendFailed, Ref: p.Ref, TempID: p.TempID, Err: err})
		return
	}

	if m.Ref.IsZero() {
		m.Ref = p.Ref
	}
	res := s.engine.ConfirmSend(p.TempID, m)
	switch res.Outcome {
	case OutcomeIgnored:
		if s.convs.Invalidate(m.Ref, m.ID) {
			s.conversationsChanged(&n)
		}
	case OutcomeDuplicate:
		s.debug(domain.DebugMessageDuplicate, m.Ref, len(m.Body), "")
		s.entriesChanged(&n)
		return
	default:
		s.convs.Touch(m)
		s.entriesChanged(&n)
	}
	s.debug(domain.DebugMessageConfirmed, m.Ref, len(m.Body), "")
}

// hydrate fetch the snapshot of ref, dropped when the selection moved on meanwhile
func (s *Session) hydrate(ctx context.Context, ref domain.ConversationRef, gen uint64) error {
	snapshot, err := s.api.FetchMessages(ctx, ref)

	var n notifier
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		n.flush()
	}()

	if gen != s.generation {
		return nil
	}
	if err != nil {
		logger.Log.Errorf("snapshot fetch failed", err, zap.String("room", ref.RoomName()))
		s.debug(domain.DebugError, ref, 0, domain.ErrorCodeSnapshotFailed)
		s.notice(&n, domain.Notice{Kind: domain.NoticeSnapshotFailed, Ref: ref, Err: err})
		return err
	}
	res := s.engine.Hydrate(ref, snapshot)
	for range res.Matched {
		s.debug(domain.DebugMessageConfirmed, ref, 0, "")
	}
	s.entriesChanged(&n)
	return nil
}

// resync rejoin and reload after a reconnect
func (s *Session) resync(ctx context.Context) {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	gen := s.generation
	ref := s.engine.Ref()
	s.mu.Unlock()

	s.debug(domain.DebugResync, ref, 0, "")
	if err := s.rooms.OnReconnect(ctx); errors.Is(err, domain.ErrAccessDenied) {
		s.denied(ref, gen, err)
	} else if !ref.IsZero() {
		if err := s.hydrate(ctx, ref, gen); err != nil {
			logger.Log.Errorf("resync snapshot failed", err)
		}
	}
	if err := s.RefreshConversations(ctx); err != nil {
		logger.Log.Errorf("resync conversation list failed", err)
	}
}

// denied forced deselection after a refused join
func (s *Session) denied(ref domain.ConversationRef, gen uint64, err error) {
	var n notifier
	s.mu.Lock()
	if gen == s.generation && s.engine.Ref() == ref {
		s.generation++
		s.engine.Clear()
		s.selectionChanged(&n, domain.None())
	}
	s.notice(&n, domain.Notice{Kind: domain.NoticeAccessDenied, Ref: ref, Err: err})
	s.mu.Unlock()
	n.flush()
}

func (s *Session) handleRaw(raw domain.RawEvent) {
	ev, err := repository.DecodeInbound(raw)
	if err != nil {
		logger.Log.Warn("inbound event dropped", zap.String("event", string(raw.Name)), zap.Error(err))
		s.sink.LogEvent(domain.DebugEvent{
			Type:        domain.DebugError,
			SocketID:    s.port.SocketID(),
			UserID:      s.cfg.UserID,
			TenantID:    s.cfg.TenantID,
			PayloadSize: len(raw.Data),
			ErrorCode:   domain.ErrorCodeDecodeFailed,
		})
		return
	}
	s.Handle(ev)
}

// Handle fold one decoded inbound event
func (s *Session) Handle(ev domain.InboundEvent) {
	var n notifier
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		n.flush()
	}()

	switch e := ev.(type) {
	case domain.NewMessage:
		s.onNewMessage(&n, e)
	case domain.MessageUpdated:
		if s.engine.ApplyUpdate(e.Ref, e.MessageID, e.Patch) {
			s.debug(domain.DebugMessageUpdated, e.Ref, 0, "")
			s.entriesChanged(&n)
		}
	case domain.MessageDeleted:
		at := e.DeletedAt
		if at.IsZero() {
			at = s.cfg.Now()
		}
		if s.engine.ApplyDelete(e.Ref, e.MessageID, at) {
			s.debug(domain.DebugMessageDeleted, e.Ref, 0, "")
			s.entriesChanged(&n)
		}
	case domain.MemberPresence:
		s.membership(&n, e.Ref, e.UserID, e.Name())
	case domain.MemberRoster:
		s.membership(&n, e.Ref, e.UserID, e.Name())
		if !e.Added && e.UserID == s.cfg.UserID {
			s.removed(&n, e.Ref)
		}
	default:
		logger.Log.Warn("unhandled inbound event", zap.String("event", string(ev.Name())))
	}
}

func (s *Session) onNewMessage(n *notifier, e domain.NewMessage) {
	m := e.Message
	if e.Ref != s.engine.Ref() {
		s.debug(domain.DebugMessageReceived, e.Ref, len(m.Body), "")
		if s.convs.Invalidate(e.Ref, m.ID) {
			s.conversationsChanged(n)
		}
		return
	}

	res := s.engine.ApplyNew(m)
	switch res.Outcome {
	case OutcomeDuplicate:
		s.debug(domain.DebugMessageDuplicate, e.Ref, len(m.Body), "")
		return
	case OutcomeMatched:
		s.debug(domain.DebugMessageConfirmed, e.Ref, len(m.Body), "")
	default:
		s.debug(domain.DebugMessageReceived, e.Ref, len(m.Body), "")
	}
	s.convs.Touch(m)
	s.entriesChanged(n)
}

func (s *Session) membership(n *notifier, ref domain.ConversationRef, userID string, name domain.EventName) {
	s.debug(domain.DebugMembershipChanged, ref, 0, "")
	if h := s.hooks.OnMembership; h != nil {
		n.add(func() { h(ref, userID, name) })
	}
}

// removed self removal, evict the conversation and leave its room
func (s *Session) removed(n *notifier, ref domain.ConversationRef) {
	logger.Log.Info("removed from conversation", zap.String("room", ref.RoomName()))
	if s.engine.Ref() == ref {
		s.generation++
		s.engine.Clear()
		s.selectionChanged(n, domain.None())
	}
	if s.convs.Evict(ref) {
		s.conversationsChanged(n)
	}
	s.notice(n, domain.Notice{Kind: domain.NoticeRemovedFromConversation, Ref: ref})
	gen := s.generation
	n.add(func() {
		s.spawn(func(ctx context.Context) {
			s.selectMu.Lock()
			defer s.selectMu.Unlock()
			if !s.sameGeneration(gen) {
				// 已重新選擇，room 交給新的 selection
				return
			}
			s.rooms.Evict(ctx, ref)
		})
	})
}

func (s *Session) sameGeneration(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

// entriesChanged publish the list and issue mark-read for a new tail. Caller holds mu.
func (s *Session) entriesChanged(n *notifier) {
	ref := s.engine.Ref()
	entries := s.engine.Entries()
	if h := s.hooks.OnEntries; h != nil {
		n.add(func() { h(ref, entries) })
	}
	id, emit := s.cursor.Observe(ref, entries)
	if !emit {
		return
	}
	s.convs.MarkRead(ref)
	n.add(func() {
		s.spawn(func(ctx context.Context) {
			if err := s.api.MarkRead(ctx, ref, id); err != nil {
				logger.Log.Warn("mark read failed", zap.String("room", ref.RoomName()), zap.String("message_id", id), zap.Error(err))
				s.debug(domain.DebugError, ref, 0, domain.ErrorCodeMarkReadFailed)
			}
		})
	})
}

func (s *Session) conversationsChanged(n *notifier) {
	if h := s.hooks.OnConversations; h != nil {
		list := s.convs.List()
		n.add(func() { h(list) })
	}
}

func (s *Session) selectionChanged(n *notifier, sel domain.Selection) {
	if h := s.hooks.OnSelection; h != nil {
		n.add(func() { h(sel) })
	}
	if h := s.hooks.OnEntries; h != nil {
		ref := s.engine.Ref()
		entries := s.engine.Entries()
		n.add(func() { h(ref, entries) })
	}
}

func (s *Session) notice(n *notifier, nt domain.Notice) {
	nt.At = s.cfg.Now()
	if h := s.hooks.OnNotice; h != nil {
		n.add(func() { h(nt) })
	}
}

func (s *Session) debug(t domain.DebugEventType, ref domain.ConversationRef, size int, code string) {
	e := domain.DebugEvent{
		Type:        t,
		SocketID:    s.port.SocketID(),
		UserID:      s.cfg.UserID,
		TenantID:    s.cfg.TenantID,
		PayloadSize: size,
		ErrorCode:   code,
	}
	if !ref.IsZero() {
		e.ConversationID = ref.ID
		e.RoomName = ref.RoomName()
	}
	s.sink.LogEvent(e)
}

// spawn run fn in the background, tracked by Drain
func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}
