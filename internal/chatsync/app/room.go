package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// RoomSubscriptionManager keeps the transport joined to the room of the active conversation
type RoomSubscriptionManager struct {
	mu       sync.Mutex
	port     domain.ConnectionPort
	isUp     func() bool
	sink     domain.DebugSink
	userID   string
	tenantID string

	active domain.Selection
	joined string
}

// NewRoomSubscriptionManager create RoomSubscriptionManager, isUp reports the connection state
func NewRoomSubscriptionManager(port domain.ConnectionPort, isUp func() bool, sink domain.DebugSink, userID, tenantID string) *RoomSubscriptionManager {
	if sink == nil {
		sink = domain.NopDebugSink{}
	}
	return &RoomSubscriptionManager{
		port:     port,
		isUp:     isUp,
		sink:     sink,
		userID:   userID,
		tenantID: tenantID,
	}
}

// Active current selection
func (m *RoomSubscriptionManager) Active() domain.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Joined room currently joined on the transport, empty when none
func (m *RoomSubscriptionManager) Joined() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// Select leave the previous room and join the new one.
// Selecting the active conversation is a no-op. While disconnected the join waits for OnReconnect.
// A refused join resets the selection to none and returns domain.ErrAccessDenied.
func (m *RoomSubscriptionManager) Select(ctx context.Context, sel domain.Selection) (bool, error) {
	if !sel.IsNone() && !sel.Ref.Valid() {
		return false, domain.ErrInvalidConversationRef
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sel == m.active {
		return false, nil
	}
	m.leave(ctx)
	m.active = sel
	if sel.IsNone() || !m.isUp() {
		return true, nil
	}
	return true, m.join(ctx)
}

// OnReconnect join the active room again, rooms do not survive a reconnect
func (m *RoomSubscriptionManager) OnReconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drop()
	if m.active.IsNone() {
		return nil
	}
	return m.join(ctx)
}

// OnDisconnect forget the joined room, the transport already dropped it so no leave is sent
func (m *RoomSubscriptionManager) OnDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop()
}

// drop clear the joined room and report it left
func (m *RoomSubscriptionManager) drop() {
	if m.joined == "" {
		return
	}
	room := m.joined
	m.joined = ""
	m.emit(domain.DebugRoomLeft, room, "")
}

// Evict leave the room of ref and drop the selection, used after self removal
func (m *RoomSubscriptionManager) Evict(ctx context.Context, ref domain.ConversationRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active.Ref != ref {
		return false
	}
	m.leave(ctx)
	m.active = domain.None()
	return true
}

func (m *RoomSubscriptionManager) join(ctx context.Context) error {
	room := m.active.Ref.RoomName()
	err := m.port.JoinRoom(ctx, room)
	switch {
	case err == nil:
		m.joined = room
		m.emit(domain.DebugRoomJoined, room, "")
		logger.Log.Debug("room joined", zap.String("room", room))
		return nil
	case errors.Is(err, domain.ErrAccessDenied):
		m.active = domain.None()
		m.emit(domain.DebugRoomJoinDenied, room, domain.ErrorCodeJoinDenied)
		logger.Log.Warn("room join denied", zap.String("room", room))
		return err
	default:
		// 保留 selection，下次重連再加入
		m.emit(domain.DebugError, room, domain.ErrorCodeJoinFailed)
		logger.Log.Errorf("room join failed", err, zap.String("room", room))
		return err
	}
}

func (m *RoomSubscriptionManager) leave(ctx context.Context) {
	if m.joined == "" {
		return
	}
	room := m.joined
	m.joined = ""
	if m.isUp() {
		if err := m.port.LeaveRoom(ctx, room); err != nil {
			logger.Log.Errorf("room leave failed", err, zap.String("room", room))
		}
	}
	m.emit(domain.DebugRoomLeft, room, "")
}

func (m *RoomSubscriptionManager) emit(t domain.DebugEventType, room, code string) {
	m.sink.LogEvent(domain.DebugEvent{
		Type:           t,
		SocketID:       m.port.SocketID(),
		UserID:         m.userID,
		TenantID:       m.tenantID,
		ConversationID: roomConversationID(room),
		RoomName:       room,
		ErrorCode:      code,
	})
}

func roomConversationID(room string) string {
	if _, id, ok := strings.Cut(room, ":"); ok {
		return id
	}
	return room
}
