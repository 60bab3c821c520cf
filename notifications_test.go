package fila

import (
	"fmt"
	"testing"
)

func newTestStore() *NotificationStore {
	return newNotificationStore(50, nil)
}

// ============================================================================
// History
// ============================================================================

func TestNotificationStoreAdd(t *testing.T) {
	t.Run("newest first", func(t *testing.T) {
		s := newTestStore()
		s.Add(&Event{EventType: "ticket-changed", CurrentTicket: "A001"})
		s.Add(&Event{EventType: "ticket-changed", CurrentTicket: "A002"})

		list := s.List()
		if len(list) != 2 {
			t.Fatalf("expected 2 notifications, got %d", len(list))
		}
		if list[0].Message != "Ticket alterado: A002" {
			t.Fatalf("newest not first: %q", list[0].Message)
		}
	})

	t.Run("starts unread with id and timestamp", func(t *testing.T) {
		s := newTestStore()
		n := s.Add(&Event{EventType: "security-alert", Timestamp: "2026-08-30T12:00:00Z"})
		if n.Read {
			t.Fatal("expected unread")
		}
		if n.ID == "" {
			t.Fatal("expected generated id")
		}
		if n.Timestamp != "2026-08-30T12:00:00Z" {
			t.Fatalf("expected event timestamp, got %q", n.Timestamp)
		}
		if n.Type != EventSecurityAlert {
			t.Fatalf("expected security-alert, got %s", n.Type)
		}
	})

	t.Run("missing timestamp filled in", func(t *testing.T) {
		s := newTestStore()
		n := s.Add(&Event{EventType: "queue-update"})
		if n.Timestamp == "" {
			t.Fatal("expected a timestamp")
		}
	})

	t.Run("bounded at limit", func(t *testing.T) {
		s := newNotificationStore(50, nil)
		for i := 0; i < 75; i++ {
			s.Add(&Event{EventType: "ticket-changed", CurrentTicket: fmt.Sprintf("A%03d", i)})
		}
		list := s.List()
		if len(list) != 50 {
			t.Fatalf("expected 50 notifications, got %d", len(list))
		}
		// The newest survives, the oldest fell off.
		if list[0].Message != "Ticket alterado: A074" {
			t.Fatalf("newest missing: %q", list[0].Message)
		}
		if list[49].Message != "Ticket alterado: A025" {
			t.Fatalf("unexpected oldest: %q", list[49].Message)
		}
	})
}

func TestNotificationStoreReadFlags(t *testing.T) {
	t.Run("mark one read", func(t *testing.T) {
		s := newTestStore()
		n := s.Add(&Event{EventType: "ticket-changed"})
		s.Add(&Event{EventType: "queue-update"})

		s.MarkRead(n.ID)
		if got := s.UnreadCount(); got != 1 {
			t.Fatalf("expected 1 unread, got %d", got)
		}
	})

	t.Run("unknown id ignored", func(t *testing.T) {
		s := newTestStore()
		s.Add(&Event{EventType: "ticket-changed"})
		s.MarkRead("nope")
		if got := s.UnreadCount(); got != 1 {
			t.Fatalf("expected 1 unread, got %d", got)
		}
	})

	t.Run("mark all read", func(t *testing.T) {
		s := newTestStore()
		for i := 0; i < 5; i++ {
			s.Add(&Event{EventType: "ticket-changed"})
		}
		s.MarkAllRead()
		if got := s.UnreadCount(); got != 0 {
			t.Fatalf("expected 0 unread, got %d", got)
		}
	})

	t.Run("clear", func(t *testing.T) {
		s := newTestStore()
		s.Add(&Event{EventType: "ticket-changed"})
		s.Clear()
		if got := len(s.List()); got != 0 {
			t.Fatalf("expected empty history, got %d", got)
		}
	})
}

func TestNotificationStoreViews(t *testing.T) {
	s := newTestStore()
	s.Add(&Event{EventType: "ticket-changed", QueueID: "q-1"})
	s.Add(&Event{EventType: "queue-update", QueueID: "q-1"})
	s.Add(&Event{EventType: "queue-update", QueueID: "q-2"})

	t.Run("by type", func(t *testing.T) {
		if got := len(s.ByType(EventQueueUpdate)); got != 2 {
			t.Fatalf("expected 2 queue updates, got %d", got)
		}
		if got := len(s.ByType(EventSecurityAlert)); got != 0 {
			t.Fatalf("expected 0 security alerts, got %d", got)
		}
	})

	t.Run("by queue", func(t *testing.T) {
		if got := len(s.ByQueue("q-1")); got != 2 {
			t.Fatalf("expected 2 for q-1, got %d", got)
		}
		if got := len(s.ByQueue("q-3")); got != 0 {
			t.Fatalf("expected 0 for q-3, got %d", got)
		}
	})
}

// ============================================================================
// Subscriptions
// ============================================================================

func TestNotificationStoreSubscribe(t *testing.T) {
	t.Run("kind and wildcard channels", func(t *testing.T) {
		s := newTestStore()
		var kindHits, wildHits int
		s.Subscribe("ticket-changed", func(*Event) { kindHits++ })
		s.Subscribe(EventWildcard, func(*Event) { wildHits++ })

		ev := &Event{EventType: "ticket-changed"}
		s.publish(ev, string(ev.Kind()), EventWildcard)

		if kindHits != 1 || wildHits != 1 {
			t.Fatalf("expected 1/1 hits, got %d/%d", kindHits, wildHits)
		}
	})

	t.Run("non-matching channel not delivered", func(t *testing.T) {
		s := newTestStore()
		var hits int
		s.Subscribe("security-alert", func(*Event) { hits++ })

		ev := &Event{EventType: "ticket-changed"}
		s.publish(ev, string(ev.Kind()), EventWildcard)

		if hits != 0 {
			t.Fatalf("expected 0 hits, got %d", hits)
		}
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		s := newTestStore()
		var hits int
		unsubscribe := s.Subscribe(EventWildcard, func(*Event) { hits++ })

		unsubscribe()
		unsubscribe()
		s.publish(&Event{EventType: "ticket-changed"}, "ticket-changed", EventWildcard)

		if hits != 0 {
			t.Fatalf("expected 0 hits after unsubscribe, got %d", hits)
		}
	})

	t.Run("panicking handler does not block others", func(t *testing.T) {
		s := newTestStore()
		var delivered int
		s.Subscribe(EventWildcard, func(*Event) { panic("boom") })
		s.Subscribe(EventWildcard, func(*Event) { delivered++ })

		s.publish(&Event{EventType: "ticket-changed"}, EventWildcard)

		if delivered != 1 {
			t.Fatalf("expected delivery despite panic, got %d", delivered)
		}
	})

	t.Run("reset drops history and subscribers", func(t *testing.T) {
		s := newTestStore()
		var hits int
		s.Subscribe(EventWildcard, func(*Event) { hits++ })
		s.Add(&Event{EventType: "ticket-changed"})

		s.reset()

		s.publish(&Event{EventType: "ticket-changed"}, EventWildcard)
		if hits != 0 {
			t.Fatalf("expected no delivery after reset, got %d", hits)
		}
		if got := len(s.List()); got != 0 {
			t.Fatalf("expected empty history after reset, got %d", got)
		}
	})
}
