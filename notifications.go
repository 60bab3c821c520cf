package fila

import (
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// Notification
// ============================================================================

// Notification is one entry in the notification history, derived from a
// real-time event.
type Notification struct {
	ID        string    `json:"id"`
	Type      EventKind `json:"type"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Data      *Event    `json:"data,omitempty"`
	Read      bool      `json:"read"`
}

// NotificationHandler receives events fanned out to subscribers.
type NotificationHandler func(*Event)

// ============================================================================
// Notification Store
// ============================================================================

// NotificationStore keeps a bounded, newest-first history of notifications
// and a subscriber registry keyed by event kind. Safe for concurrent use.
type NotificationStore struct {
	mu     sync.Mutex
	limit  int
	items  []Notification
	logger *slog.Logger

	nextSubID   int
	subscribers map[string]map[int]NotificationHandler
}

func newNotificationStore(limit int, logger *slog.Logger) *NotificationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationStore{
		limit:       limit,
		logger:      logger,
		subscribers: make(map[string]map[int]NotificationHandler),
	}
}

// Add records a notification for the event and returns it. The newest
// notification is always first; the history is truncated to the store limit.
func (s *NotificationStore) Add(ev *Event) Notification {
	return s.add(ev, ev.Kind())
}

// add records a notification with an explicit kind. Per-queue streams use
// this to default untagged events to queue-update.
func (s *NotificationStore) add(ev *Event, kind EventKind) Notification {
	timestamp := ev.Timestamp
	if timestamp == "" {
		timestamp = time.Now().Format(time.RFC3339)
	}

	n := Notification{
		ID:        newNotificationID(kind),
		Type:      kind,
		Message:   FormatMessage(ev),
		Timestamp: timestamp,
		Data:      ev,
	}

	s.mu.Lock()
	s.items = append([]Notification{n}, s.items...)
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
	s.mu.Unlock()

	return n
}

// Clear empties the notification history. Subscribers are kept.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// MarkRead flags one notification as read. Unknown ids are ignored.
func (s *NotificationStore) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Read = true
			return
		}
	}
}

// MarkAllRead flags every notification as read.
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].Read = true
	}
}

// List returns a snapshot of the history, newest first.
func (s *NotificationStore) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// ByType returns the notifications of one kind, newest first.
func (s *NotificationStore) ByType(kind EventKind) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.items {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

// ByQueue returns the notifications whose event data carries the given
// queue id, newest first.
func (s *NotificationStore) ByQueue(queueID string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.items {
		if n.Data != nil && n.Data.QueueID == queueID {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// ============================================================================
// Subscriptions
// ============================================================================

// Subscribe registers a handler for one event kind (or EventWildcard for
// all kinds) and returns an unsubscribe function. Unsubscribing more than
// once is harmless.
func (s *NotificationStore) Subscribe(kind string, handler NotificationHandler) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.subscribers[kind] == nil {
		s.subscribers[kind] = make(map[int]NotificationHandler)
	}
	s.subscribers[kind][id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if handlers, ok := s.subscribers[kind]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(s.subscribers, kind)
			}
		}
	}
}

// publish fans an event out to the subscribers of the given channels, in
// order. A panicking handler is recovered and logged so the remaining
// handlers still run.
func (s *NotificationStore) publish(ev *Event, channels ...string) {
	s.mu.Lock()
	var handlers []NotificationHandler
	for _, ch := range channels {
		for _, h := range s.subscribers[ch] {
			handlers = append(handlers, h)
		}
	}
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("notification handler panicked",
						"channels", channels, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

// reset drops both the history and every subscriber. Used by the hard
// teardown of the realtime service.
func (s *NotificationStore) reset() {
	s.mu.Lock()
	s.items = nil
	s.subscribers = make(map[string]map[int]NotificationHandler)
	s.mu.Unlock()
}
