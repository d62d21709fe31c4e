package app

import (
	"sync"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// ConnectionMonitor collapse the port's status stream into up / down transitions
type ConnectionMonitor struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	onChange  map[int]func(bool)
	onUp      map[int]func()

	port     domain.ConnectionPort
	sink     domain.DebugSink
	userID   string
	tenantID string
	unsub    domain.Unsubscribe
}

// NewConnectionMonitor create ConnectionMonitor, call Attach to start listening
func NewConnectionMonitor(port domain.ConnectionPort, sink domain.DebugSink, userID, tenantID string) *ConnectionMonitor {
	if sink == nil {
		sink = domain.NopDebugSink{}
	}
	return &ConnectionMonitor{
		onChange: make(map[int]func(bool)),
		onUp:     make(map[int]func()),
		port:     port,
		sink:     sink,
		userID:   userID,
		tenantID: tenantID,
	}
}

// Attach subscribe to the port's status stream
func (c *ConnectionMonitor) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	c.unsub = c.port.SubscribeStatus(c.update)
}

// Detach stop listening
func (c *ConnectionMonitor) Detach() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// IsConnected last known state
func (c *ConnectionMonitor) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnChange handler runs on every transition
func (c *ConnectionMonitor) OnChange(handler func(connected bool)) domain.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onChange[id] = handler
	return c.remover(func() { delete(c.onChange, id) })
}

// OnReconnect handler runs on every down -> up transition
func (c *ConnectionMonitor) OnReconnect(handler func()) domain.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onUp[id] = handler
	return c.remover(func() { delete(c.onUp, id) })
}

func (c *ConnectionMonitor) remover(del func()) domain.Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			del()
		})
	}
}

func (c *ConnectionMonitor) update(connected bool) {
	c.mu.Lock()
	if connected == c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	changes := make([]func(bool), 0, len(c.onChange))
	for _, h := range c.onChange {
		changes = append(changes, h)
	}
	var ups []func()
	if connected {
		for _, h := range c.onUp {
			ups = append(ups, h)
		}
	}
	c.mu.Unlock()

	t := domain.DebugConnectionClosed
	if connected {
		t = domain.DebugConnectionEstablished
	}
	c.sink.LogEvent(domain.DebugEvent{Type: t, SocketID: c.port.SocketID(), UserID: c.userID, TenantID: c.tenantID})
	logger.Log.Info("connection state changed", zap.Bool("connected", connected))

	for _, h := range changes {
		h(connected)
	}
	for _, h := range ups {
		h()
	}
}
