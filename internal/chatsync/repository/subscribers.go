package repository

import (
	"sync"

	"chat_sync_service/internal/chatsync/domain"
)

// subscribers handler registry shared by the transports,
// handlers are always invoked outside the registry lock
type subscribers struct {
	mu     sync.Mutex
	nextID int
	events map[domain.EventName]map[int]func(domain.RawEvent)
	status map[int]func(bool)
}

func newSubscribers() *subscribers {
	return &subscribers{
		events: make(map[domain.EventName]map[int]func(domain.RawEvent)),
		status: make(map[int]func(bool)),
	}
}

func (s *subscribers) subscribe(name domain.EventName, handler func(domain.RawEvent)) domain.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.events[name] == nil {
		s.events[name] = make(map[int]func(domain.RawEvent))
	}
	s.events[name][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.events[name], id)
		})
	}
}

func (s *subscribers) subscribeStatus(handler func(bool)) domain.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.status[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.status, id)
		})
	}
}

func (s *subscribers) dispatch(raw domain.RawEvent) int {
	s.mu.Lock()
	handlers := make([]func(domain.RawEvent), 0, len(s.events[raw.Name]))
	for _, h := range s.events[raw.Name] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(raw)
	}
	return len(handlers)
}

func (s *subscribers) notify(connected bool) {
	s.mu.Lock()
	handlers := make([]func(bool), 0, len(s.status))
	for _, h := range s.status {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(connected)
	}
}
