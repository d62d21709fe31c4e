package repository

import (
	"context"
	"sync"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	roomChannelPrefix = "chat:room:"
	// ControlChannel receives emitted frames that do not target a room
	ControlChannel     = "chat:control"
	defaultHealthEvery = 15 * time.Second
)

// RoomChannel redis channel of a transport room, e.g. chat:room:channel:42
func RoomChannel(room string) string {
	return roomChannelPrefix + room
}

// RedisConnection domain.ConnectionPort over the backend redis bus.
// Rooms are redis channels, status comes from a periodic PING.
// Access checks happen server side, so JoinRoom never reports ErrAccessDenied.
type RedisConnection struct {
	client      *redis.Client
	healthEvery time.Duration
	subs        *subscribers

	mu       sync.Mutex
	pubsub   *redis.PubSub
	up       bool
	socketID string
	rooms    map[string]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRedisConnection create RedisConnection
func NewRedisConnection(client *redis.Client, healthEvery time.Duration) *RedisConnection {
	if healthEvery <= 0 {
		healthEvery = defaultHealthEvery
	}
	return &RedisConnection{
		client:      client,
		healthEvery: healthEvery,
		subs:        newSubscribers(),
		rooms:       make(map[string]struct{}),
	}
}

// Connect open the subscription and start the health check
func (r *RedisConnection) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	// 先建立空的訂閱, JoinRoom 再加 channel
	r.pubsub = r.client.Subscribe(runCtx)

	r.wg.Add(2)
	go r.receive(r.pubsub)
	go r.watch(runCtx)
	return nil
}

// Disconnect close the subscription
func (r *RedisConnection) Disconnect() error {
	r.mu.Lock()
	cancel, ps := r.cancel, r.pubsub
	r.cancel, r.pubsub = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := ps.Close()
	r.wg.Wait()

	r.mu.Lock()
	wasUp := r.up
	r.up = false
	r.rooms = make(map[string]struct{})
	r.mu.Unlock()

	if wasUp {
		logger.Log.Info("redis transport closed")
		r.subs.notify(false)
	}
	return errors.Wrap(err, "close redis subscription")
}

// JoinRoom subscribe the room channel
func (r *RedisConnection) JoinRoom(ctx context.Context, room string) error {
	ps, err := r.active(room)
	if err != nil {
		return err
	}
	if err := ps.Subscribe(ctx, RoomChannel(room)); err != nil {
		return errors.Wrapf(err, "join %s", room)
	}

	r.mu.Lock()
	r.rooms[room] = struct{}{}
	r.mu.Unlock()
	return nil
}

// LeaveRoom unsubscribe the room channel
func (r *RedisConnection) LeaveRoom(ctx context.Context, room string) error {
	ps, err := r.active(room)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.rooms, room)
	r.mu.Unlock()

	if err := ps.Unsubscribe(ctx, RoomChannel(room)); err != nil {
		return errors.Wrapf(err, "leave %s", room)
	}
	return nil
}

// Emit publish a frame, inbound events go to the channel of their room
func (r *RedisConnection) Emit(ctx context.Context, name domain.EventName, payload interface{}) error {
	var (
		frame   []byte
		err     error
		channel = ControlChannel
	)
	if ev, ok := payload.(domain.InboundEvent); ok {
		frame, err = EncodeInbound(ev)
		channel = RoomChannel(ev.Target().RoomName())
	} else {
		frame, err = EncodeEnvelope(name, payload)
	}
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, channel, frame).Err(); err != nil {
		return errors.Wrapf(err, "publish %s to %s", name, channel)
	}
	return nil
}

// Subscribe register an inbound event handler
func (r *RedisConnection) Subscribe(name domain.EventName, handler func(domain.RawEvent)) domain.Unsubscribe {
	return r.subs.subscribe(name, handler)
}

// SubscribeStatus register a connection status handler
func (r *RedisConnection) SubscribeStatus(handler func(bool)) domain.Unsubscribe {
	return r.subs.subscribeStatus(handler)
}

// SocketID id of the current or last healthy session
func (r *RedisConnection) SocketID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.socketID
}

// connected report the last health check result
func (r *RedisConnection) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.up
}

func (r *RedisConnection) active(room string) (*redis.PubSub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil || !r.up {
		return nil, errors.Wrapf(domain.ErrNotConnected, "room %s", room)
	}
	return r.pubsub, nil
}

// receive 收到 channel 訊息後解碼並分派
func (r *RedisConnection) receive(ps *redis.PubSub) {
	defer r.wg.Done()

	for m := range ps.Channel() {
		raw, err := DecodeEnvelope([]byte(m.Payload))
		if err != nil {
			logger.Log.Warn("drop undecodable redis frame",
				zap.String("channel", m.Channel),
				zap.Int("size", len(m.Payload)),
				zap.Error(err))
			continue
		}
		r.subs.dispatch(raw)
	}
}

func (r *RedisConnection) watch(ctx context.Context) {
	defer r.wg.Done()

	r.check(ctx)
	ticker := time.NewTicker(r.healthEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

func (r *RedisConnection) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, r.healthEvery)
	err := r.client.Ping(pingCtx).Err()
	cancel()
	if ctx.Err() != nil {
		return
	}
	r.setUp(err == nil, err)
}

func (r *RedisConnection) setUp(up bool, cause error) {
	r.mu.Lock()
	if r.up == up {
		r.mu.Unlock()
		return
	}
	r.up = up

	var stale []string
	if up {
		r.socketID = uuid.New().String()
	} else {
		for room := range r.rooms {
			stale = append(stale, RoomChannel(room))
		}
		r.rooms = make(map[string]struct{})
	}
	ps, id := r.pubsub, r.socketID
	r.mu.Unlock()

	if up {
		logger.Log.Info("redis transport up", zap.String("socket_id", id))
	} else {
		logger.Log.Warn("redis transport down", zap.String("socket_id", id), zap.Error(cause))
		// 斷線後不保留訂閱, 重連時由 room manager 重新 join
		if ps != nil && len(stale) > 0 {
			_ = ps.Unsubscribe(context.Background(), stale...)
		}
	}
	r.subs.notify(up)
}
