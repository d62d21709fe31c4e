package repository

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 1 << 20

	// SocketIDHeader handshake response header carrying the server side socket id
	SocketIDHeader = "X-Socket-Id"

	defaultJoinTimeout = 5 * time.Second
	defaultBackoffMin  = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// WSOption configure WSConnection
type WSOption func(*WSConnection)

// WithJoinTimeout how long JoinRoom waits for room_joined / room_error
func WithJoinTimeout(d time.Duration) WSOption {
	return func(c *WSConnection) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

// WithBackoff reconnect delay, doubled after each failed dial up to limit
func WithBackoff(initial, limit time.Duration) WSOption {
	return func(c *WSConnection) {
		if initial > 0 {
			c.backoffMin = initial
		}
		if limit >= c.backoffMin {
			c.backoffMax = limit
		}
	}
}

// WSConnection domain.ConnectionPort over a gorilla websocket to the chat gateway.
// Connect starts a supervisor that keeps redialing until Disconnect.
type WSConnection struct {
	url         string
	token       string
	joinTimeout time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	dialer      *websocket.Dialer
	subs        *subscribers

	mu       sync.Mutex
	conn     *websocket.Conn
	socketID string
	cancel   context.CancelFunc
	done     chan struct{}
	acks     map[string][]chan error

	writeMu sync.Mutex
}

// NewWSConnection create WSConnection, token is passed as the auth query parameter
func NewWSConnection(rawURL, token string, opts ...WSOption) *WSConnection {
	c := &WSConnection{
		url:         rawURL,
		token:       token,
		joinTimeout: defaultJoinTimeout,
		backoffMin:  defaultBackoffMin,
		backoffMax:  defaultBackoffMax,
		dialer:      websocket.DefaultDialer,
		subs:        newSubscribers(),
		acks:        make(map[string][]chan error),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect start the dial loop and return, status handlers report the outcome
func (c *WSConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	u, err := c.dialURL()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.supervise(runCtx, u, c.done)
	return nil
}

// Disconnect stop the dial loop and close the socket
func (c *WSConnection) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}
	cancel()
	<-done
	return nil
}

// JoinRoom send join_room and wait for the server ack
func (c *WSConnection) JoinRoom(ctx context.Context, room string) error {
	ch := make(chan error, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return errors.Wrapf(domain.ErrNotConnected, "join %s", room)
	}
	c.acks[room] = append(c.acks[room], ch)
	c.mu.Unlock()

	if err := c.write(EventJoinRoom, RoomControl{Room: room}); err != nil {
		c.dropAck(room, ch)
		return err
	}

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		return err
	case <-timer.C:
		c.dropAck(room, ch)
		return errors.Errorf("join %s: no ack after %s", room, c.joinTimeout)
	case <-ctx.Done():
		c.dropAck(room, ch)
		return errors.Wrapf(ctx.Err(), "join %s", room)
	}
}

// LeaveRoom send leave_room, no ack is expected
func (c *WSConnection) LeaveRoom(ctx context.Context, room string) error {
	return c.write(EventLeaveRoom, RoomControl{Room: room})
}

// Emit send an event frame
func (c *WSConnection) Emit(ctx context.Context, name domain.EventName, payload interface{}) error {
	return c.write(name, payload)
}

// Subscribe register an inbound event handler
func (c *WSConnection) Subscribe(name domain.EventName, handler func(domain.RawEvent)) domain.Unsubscribe {
	return c.subs.subscribe(name, handler)
}

// SubscribeStatus register a connection status handler
func (c *WSConnection) SubscribeStatus(handler func(bool)) domain.Unsubscribe {
	return c.subs.subscribeStatus(handler)
}

// SocketID id of the current or last socket
func (c *WSConnection) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// connected report whether a socket is open
func (c *WSConnection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *WSConnection) dialURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", errors.Wrapf(err, "parse websocket url %q", c.url)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("auth", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *WSConnection) supervise(ctx context.Context, u string, done chan struct{}) {
	defer close(done)

	backoff := c.backoffMin
	for {
		conn, resp, err := c.dialer.DialContext(ctx, u, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("websocket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, c.backoffMax)
			continue
		}

		backoff = c.backoffMin
		c.serve(ctx, conn, resp)
		if ctx.Err() != nil {
			return
		}
	}
}

// serve own one socket until it closes
func (c *WSConnection) serve(ctx context.Context, conn *websocket.Conn, resp *http.Response) {
	id := ""
	if resp != nil {
		id = resp.Header.Get(SocketIDHeader)
	}
	if id == "" {
		id = uuid.New().String()
	}

	c.mu.Lock()
	c.conn = conn
	c.socketID = id
	c.mu.Unlock()

	stop := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(conn)
	}()
	go c.keepalive(ctx, conn, stop)

	logger.Log.Info("websocket connected", zap.String("socket_id", id))
	c.subs.notify(true)

	<-readDone
	close(stop)
	_ = conn.Close()

	c.mu.Lock()
	c.conn = nil
	acks := c.acks
	c.acks = make(map[string][]chan error)
	c.mu.Unlock()

	for room, chans := range acks {
		for _, ch := range chans {
			ch <- errors.Wrapf(domain.ErrNotConnected, "join %s", room)
		}
	}

	logger.Log.Info("websocket disconnected", zap.String("socket_id", id))
	c.subs.notify(false)
}

func (c *WSConnection) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		raw, err := DecodeEnvelope(frame)
		if err != nil {
			logger.Log.Warn("drop undecodable frame", zap.Int("size", len(frame)), zap.Error(err))
			continue
		}

		switch raw.Name {
		case EventRoomJoined, EventRoomError:
			c.resolveAck(raw)
		default:
			if c.subs.dispatch(raw) == 0 {
				logger.Log.Debug("no handler for event", zap.String("event", string(raw.Name)))
			}
		}
	}
}

// keepalive ping until stop, closing the socket when ctx ends unblocks the read loop
func (c *WSConnection) keepalive(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Log.Warn("websocket ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *WSConnection) resolveAck(raw domain.RawEvent) {
	var ctl RoomControl
	if err := json.Unmarshal(raw.Data, &ctl); err != nil {
		logger.Log.Warn("drop undecodable room ack", zap.String("event", string(raw.Name)), zap.Error(err))
		return
	}

	var result error
	if raw.Name == EventRoomError {
		if ctl.Code == RoomErrorForbidden {
			result = errors.Wrapf(domain.ErrAccessDenied, "join %s", ctl.Room)
		} else {
			result = errors.Errorf("join %s: %s %s", ctl.Room, ctl.Code, ctl.Message)
		}
	}

	c.mu.Lock()
	chans := c.acks[ctl.Room]
	delete(c.acks, ctl.Room)
	c.mu.Unlock()

	for _, ch := range chans {
		ch <- result
	}
}

func (c *WSConnection) dropAck(room string, ch chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chans := c.acks[room]
	for i, pending := range chans {
		if pending == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(c.acks, room)
	} else {
		c.acks[room] = chans
	}
}

func (c *WSConnection) write(name domain.EventName, payload interface{}) error {
	frame, err := EncodeEnvelope(name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.Wrapf(domain.ErrNotConnected, "write %s", name)
	}

	// gorilla 同時只允許一個 writer
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}
