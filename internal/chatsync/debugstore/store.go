package debugstore

import (
	"sort"
	"sync"
	"time"

	"chat_sync_service/internal/chatsync/domain"

	"github.com/google/uuid"
)

const (
	// DefaultCapacity events kept in the ring buffer
	DefaultCapacity = 500
	// DefaultWindow trailing window of the rolling counters
	DefaultWindow = 5 * time.Minute
	// TopErrorLimit error codes reported by GetMetrics
	TopErrorLimit = 5
)

// Option configure a Store
type Option func(*Store)

// WithCapacity ring buffer size
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithWindow trailing window of message / disconnect counts
func WithWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store bounded in-memory debug event log with rolling metrics.
// Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	enabled  bool
	capacity int
	window   time.Duration
	now      func() time.Time

	ring []domain.DebugEvent
	head int
	size int

	sockets     map[string]struct{}
	rooms       map[string]int
	messages    []time.Time
	disconnects []time.Time
	errors      map[string]int
}

// New create Store, LogEvent is a no-op unless enabled
func New(enabled bool, opts ...Option) *Store {
	s := &Store{
		enabled:  enabled,
		capacity: DefaultCapacity,
		window:   DefaultWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetLocked()
	return s
}

// Capacity ring buffer size
func (s *Store) Capacity() int {
	return s.capacity
}

// LogEvent stamp id and timestamp, append and fold into the counters
func (s *Store) LogEvent(e domain.DebugEvent) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.New().String()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	idx := (s.head + s.size) % s.capacity
	if s.size == s.capacity {
		// 滿了就覆蓋最舊的
		idx = s.head
		s.head = (s.head + 1) % s.capacity
	} else {
		s.size++
	}
	s.ring[idx] = e

	s.fold(e)
}

func (s *Store) fold(e domain.DebugEvent) {
	switch e.Type {
	case domain.DebugConnectionEstablished:
		if e.SocketID != "" {
			s.sockets[e.SocketID] = struct{}{}
		}
	case domain.DebugConnectionClosed:
		delete(s.sockets, e.SocketID)
		s.disconnects = append(prune(s.disconnects, e.Timestamp.Add(-s.window)), e.Timestamp)
	case domain.DebugRoomJoined:
		s.rooms[e.RoomName]++
	case domain.DebugRoomLeft:
		if s.rooms[e.RoomName] <= 1 {
			delete(s.rooms, e.RoomName)
		} else {
			s.rooms[e.RoomName]--
		}
	case domain.DebugMessageSent, domain.DebugMessageReceived:
		s.messages = append(prune(s.messages, e.Timestamp.Add(-s.window)), e.Timestamp)
	}
	if e.ErrorCode != "" {
		s.errors[e.ErrorCode]++
	}
}

// GetMetrics prune samples older than the window and return a snapshot
func (s *Store) GetMetrics() domain.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)
	s.messages = prune(s.messages, cutoff)
	s.disconnects = prune(s.disconnects, cutoff)

	joined := 0
	for _, n := range s.rooms {
		joined += n
	}

	top := make([]domain.ErrorCount, 0, len(s.errors))
	for code, n := range s.errors {
		top = append(top, domain.ErrorCount{Code: code, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Code < top[j].Code
	})
	if len(top) > TopErrorLimit {
		top = top[:TopErrorLimit]
	}

	return domain.Metrics{
		ActiveConnections:   len(s.sockets),
		JoinedRooms:         joined,
		MessagesInWindow:    len(s.messages),
		DisconnectsInWindow: len(s.disconnects),
		TopErrors:           top,
		Window:              s.window,
		GeneratedAt:         now,
		EventCount:          s.size,
	}
}

// GetEvents most recent first, limit <= 0 returns everything
func (s *Store) GetEvents(limit int) []domain.DebugEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.DebugEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head + s.size - 1 - i) % s.capacity
		out = append(out, s.ring[idx])
	}
	return out
}

// Reset clear every event and counter
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.ring = make([]domain.DebugEvent, s.capacity)
	s.head = 0
	s.size = 0
	s.sockets = make(map[string]struct{})
	s.rooms = make(map[string]int)
	s.messages = nil
	s.disconnects = nil
	s.errors = make(map[string]int)
}

// prune drop leading samples before cutoff, samples are appended in time order
func prune(samples []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(samples) && samples[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return samples
	}
	return append(samples[:0], samples[i:]...)
}
