package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const defaultSessionBuffer = 16

// Hub keeps the live sessions of this process, grouped by user topic.
type Hub struct {
	logger *log.Logger
	buffer int

	mu     sync.RWMutex
	topics map[string]map[*Session]struct{}
}

// Session is one connected client listening on a user's topic.
type Session struct {
	ID       string
	Username string

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// NewHub creates an empty Hub. buffer bounds the events queued per session.
func NewHub(logger *log.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSessionBuffer
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		topics: make(map[string]map[*Session]struct{}),
	}
}

// Subscribe registers a new session on username's topic.
func (h *Hub) Subscribe(username string) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Username: username,
		ch:       make(chan Event, h.buffer),
		hub:      h,
	}
	topic := Topic(username)
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Session]struct{})
	}
	h.topics[topic][s] = struct{}{}
	h.mu.Unlock()
	h.logger.WithFields(log.Fields{"topic": topic, "session": s.ID}).Debug("session subscribed")
	return s
}

// Events yields the session's events until the session is closed.
func (s *Session) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes the session. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (h *Hub) remove(s *Session) {
	topic := Topic(s.Username)
	h.mu.Lock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	close(s.ch)
	h.mu.Unlock()
	h.logger.WithFields(log.Fields{"topic": topic, "session": s.ID}).Debug("session closed")
}

// Publish hands ev to every session of username without blocking. Events for
// users with no session, or for sessions whose buffer is full, are dropped.
func (h *Hub) Publish(_ context.Context, username string, ev Event) error {
	topic := Topic(username)
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.topics[topic]
	if len(subs) == 0 {
		h.logger.WithFields(log.Fields{"topic": topic, "task_id": ev.TaskID}).Debug("no live session, event dropped")
		return nil
	}
	for s := range subs {
		select {
		case s.ch <- ev:
		default:
			h.logger.WithFields(log.Fields{"topic": topic, "session": s.ID, "task_id": ev.TaskID}).Debug("session buffer full, event dropped")
		}
	}
	return nil
}

// Sessions reports how many sessions are subscribed on username's topic.
func (h *Hub) Sessions(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[Topic(username)])
}
