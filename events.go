package fila

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Event Kinds
// ============================================================================

// EventKind identifies the type of a real-time event.
type EventKind string

const (
	EventTicketChanged      EventKind = "ticket-changed"
	EventSessionInvalidated EventKind = "session-invalidated"
	EventSecurityAlert      EventKind = "security-alert"
	EventQueueUpdate        EventKind = "queue-update"
	EventPositionUpdate     EventKind = "position-update"

	// EventGeneric is the quarantine kind for events whose tag is missing or
	// not one of the known kinds. They still produce a notification with the
	// fallback message.
	EventGeneric EventKind = "generic"
)

// EventWildcard subscribes to every event kind.
const EventWildcard = "*"

// ============================================================================
// Event
// ============================================================================

// Event is a real-time event as delivered on the SSE stream. The server
// tags events with either `eventType` or `type`; `eventType` wins when both
// are present.
//
// Position uses 0 to mean "absent" — the wire format never carries a real
// position 0.
type Event struct {
	EventType string `json:"eventType,omitempty"`
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	QueueID       string `json:"queueId,omitempty"`
	QueueName     string `json:"queueName,omitempty"`
	CurrentTicket string `json:"currentTicket,omitempty"`
	CallingNumber string `json:"callingNumber,omitempty"`
	TicketNumber  string `json:"ticketNumber,omitempty"`
	Position      int    `json:"position,omitempty"`

	Severity       string `json:"severity,omitempty"`
	RequiresReauth bool   `json:"requiresReauth,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`

	UserID   string `json:"userId,omitempty"`
	UserType string `json:"userType,omitempty"`
	TenantID string `json:"tenantId,omitempty"`

	NextTickets         []string `json:"nextTickets,omitempty"`
	WaitingCount        int      `json:"waitingCount,omitempty"`
	CompletedCount      int      `json:"completedCount,omitempty"`
	EstimatedWait       int      `json:"estimatedWait,omitempty"`
	PeopleAhead         int      `json:"peopleAhead,omitempty"`
	AverageWaitTime     int      `json:"averageWaitTime,omitempty"`
	CompletionRate      float64  `json:"completionRate,omitempty"`
	AbandonmentRate     float64  `json:"abandonmentRate,omitempty"`
	TotalProcessedToday int      `json:"totalProcessedToday,omitempty"`
	ActiveTickets       int      `json:"activeTickets,omitempty"`
}

// Kind returns the normalized event kind. Unknown or missing tags map to
// EventGeneric.
func (e *Event) Kind() EventKind {
	tag := e.EventType
	if tag == "" {
		tag = e.Type
	}
	switch EventKind(tag) {
	case EventTicketChanged, EventSessionInvalidated, EventSecurityAlert,
		EventQueueUpdate, EventPositionUpdate:
		return EventKind(tag)
	}
	return EventGeneric
}

// IsHeartbeat reports whether the event is a keepalive and should be
// dropped before notification handling.
func (e *Event) IsHeartbeat() bool {
	return e.Type == "heartbeat" ||
		e.Type == "queue-heartbeat" ||
		e.EventType == "heartbeat"
}

// IsValid reports whether the event carries enough to act on: at least one
// of the tag fields or a message.
func (e *Event) IsValid() bool {
	return e.EventType != "" || e.Type != "" || e.Message != ""
}

// FormatMessage renders the user-facing notification text for an event.
// An explicit message is used verbatim; otherwise the text is derived from
// the event kind. Deterministic: same event, same string.
func FormatMessage(e *Event) string {
	if e.Message != "" {
		return e.Message
	}

	queueName := e.QueueName
	if queueName == "" {
		queueName = e.QueueID
	}
	if queueName == "" {
		queueName = "Fila"
	}

	currentTicket := e.CurrentTicket
	if currentTicket == "" {
		currentTicket = e.CallingNumber
	}

	switch e.Kind() {
	case EventQueueUpdate:
		if currentTicket == "" {
			currentTicket = "Atualização"
		}
		return fmt.Sprintf("%s: %s", queueName, currentTicket)
	case EventTicketChanged:
		if currentTicket == "" {
			currentTicket = "Mudança detectada"
		}
		return "Ticket alterado: " + currentTicket
	case EventPositionUpdate:
		position := "Atualizada"
		if e.Position != 0 {
			position = strconv.Itoa(e.Position)
		}
		return "Posição na fila: " + position
	case EventSecurityAlert:
		severity := e.Severity
		if severity == "" {
			severity = "Importante"
		}
		return "Alerta de segurança: " + severity
	case EventSessionInvalidated:
		return "Sessão invalidada - reautenticação necessária"
	default:
		return "Atualização em tempo real"
	}
}

// ============================================================================
// Helpers
// ============================================================================

// newNotificationID builds a unique notification id from the event kind,
// the current time, and a short random suffix.
func newNotificationID(kind EventKind) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), suffix)
}

// ReconnectDelay returns the backoff delay before reconnect attempt n
// (1-based): base doubles each attempt, capped at the maximum. With the
// defaults the sequence is 1s, 2s, 4s.
func ReconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(math.Min(
		float64(base)*math.Pow(2, float64(attempt-1)),
		float64(max),
	))
	return d
}
