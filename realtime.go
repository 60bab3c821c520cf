package fila

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ============================================================================
// Realtime Configuration
// ============================================================================

// RealtimeConfig configures the real-time notification service.
type RealtimeConfig struct {
	// MaxConnections caps the number of simultaneously open per-queue
	// streams. Default: 3.
	MaxConnections int

	// MaxReconnectAttempts bounds per-queue reconnection. Default: 3.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the delay before the first reconnect attempt;
	// it doubles each attempt. Default: 1s.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the backoff. Default: 10s.
	ReconnectMaxDelay time.Duration

	// NotificationLimit bounds the notification history. Default: 50.
	NotificationLimit int

	// MainAutoReconnect enables backoff reconnection for the main stream.
	// Off by default: the main stream surfaces its failure through
	// ConnectionStatus and waits for an explicit ConnectMain, while
	// per-queue streams always retry on their own.
	MainAutoReconnect bool

	// Logger receives connection lifecycle and parse failures. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// HTTPClient is the client used for streaming requests. It must not
	// have a Timeout set; defaults to a dedicated client without one.
	HTTPClient *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 3
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 10 * time.Second
	}
	if c.NotificationLimit <= 0 {
		c.NotificationLimit = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// ConnectionStatus describes the state of the main stream.
type ConnectionStatus struct {
	Connected    bool
	Connecting   bool
	ErrorMessage string
}

// QueueConnectionStatus describes the state of one per-queue stream.
type QueueConnectionStatus struct {
	Connected    bool
	Reconnecting bool
}

// ============================================================================
// Realtime Service
// ============================================================================

// Realtime manages the SSE streams of the backoffice: one optional main
// stream plus a bounded set of per-queue streams. Events become
// notifications in the embedded store and are fanned out to subscribers.
//
// Connection operations never return errors; failures surface through
// ConnectionStatus and the logger.
type Realtime struct {
	client *Client
	config RealtimeConfig
	store  *NotificationStore
	logger *slog.Logger

	isConnecting atomic.Bool

	mu        sync.Mutex
	enabled   bool
	main      *streamConn
	connected bool
	connErr   string
	queues    map[string]*queueConn
}

// streamConn is the live state of the main stream.
type streamConn struct {
	cancel   context.CancelFunc
	closed   bool // intentional teardown
	attempts int
	timer    *time.Timer
}

// queueConn is the live state of one per-queue stream. Record identity
// guards against timers firing after teardown: a callback only acts if the
// map still holds this exact record.
type queueConn struct {
	queueID      string
	cancel       context.CancelFunc
	open         bool
	reconnecting bool
	attempts     int
	closed       bool
	timer        *time.Timer
}

func newRealtime(client *Client, config *RealtimeConfig) *Realtime {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = client.logger
	}
	cfg.defaults()

	return &Realtime{
		client:  client,
		config:  cfg,
		store:   newNotificationStore(cfg.NotificationLimit, cfg.Logger),
		logger:  cfg.Logger,
		enabled: true,
		queues:  make(map[string]*queueConn),
	}
}

// Notifications exposes the notification store (history + subscriptions).
func (r *Realtime) Notifications() *NotificationStore {
	return r.store
}

// SetEnabled toggles the service. While disabled, ConnectMain and
// ConnectQueue are silent no-ops; existing streams are left alone.
func (r *Realtime) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// ============================================================================
// Main Stream
// ============================================================================

// ConnectMain opens the main event stream. A call while a connection is
// open or being established is a no-op. Failures never propagate as
// errors: they set the sticky error message readable via ConnectionStatus.
//
// The main stream does not reconnect on its own unless MainAutoReconnect
// is set; per-queue streams always do.
func (r *Realtime) ConnectMain(ctx context.Context) {
	r.mu.Lock()
	if !r.enabled || r.connected {
		r.mu.Unlock()
		r.logger.Debug("main stream already active or disabled")
		return
	}
	r.mu.Unlock()

	if !r.isConnecting.CompareAndSwap(false, true) {
		r.logger.Debug("main stream connection already in progress")
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn := &streamConn{cancel: cancel}

	r.mu.Lock()
	if r.main != nil && !r.main.closed {
		r.main.closed = true
		r.main.cancel()
		if r.main.timer != nil {
			r.main.timer.Stop()
		}
	}
	r.main = conn
	r.connErr = ""
	r.mu.Unlock()

	go r.runMain(connCtx, conn)
}

func (r *Realtime) runMain(ctx context.Context, conn *streamConn) {
	resp, err := r.openStream(ctx, r.client.streamURL(""))
	if err != nil {
		r.isConnecting.Store(false)
		r.mu.Lock()
		stale := conn.closed || r.main != conn
		if !stale {
			r.connected = false
			r.connErr = "Erro ao estabelecer conexão"
		}
		r.mu.Unlock()
		if !stale {
			r.logger.Error("main stream connection failed", "error", err)
			r.scheduleMainReconnect(conn)
		}
		return
	}
	defer resp.Body.Close()

	r.isConnecting.Store(false)
	r.mu.Lock()
	if conn.closed || r.main != conn {
		r.mu.Unlock()
		return
	}
	r.connected = true
	r.connErr = ""
	conn.attempts = 0
	r.mu.Unlock()
	r.logger.Info("main stream connected")

	readErr := r.readStream(resp, func(payload []byte) {
		r.handleMainEvent(payload)
	})

	r.mu.Lock()
	stale := conn.closed || r.main != conn
	if !stale {
		r.connected = false
		r.connErr = "Erro na conexão SSE"
	}
	r.mu.Unlock()

	if !stale {
		r.logger.Error("main stream lost", "error", readErr)
		r.scheduleMainReconnect(conn)
	}
}

func (r *Realtime) scheduleMainReconnect(conn *streamConn) {
	if !r.config.MainAutoReconnect {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.closed || r.main != conn || conn.attempts >= r.config.MaxReconnectAttempts {
		return
	}
	conn.attempts++
	delay := ReconnectDelay(conn.attempts, r.config.ReconnectBaseDelay, r.config.ReconnectMaxDelay)
	r.logger.Info("main stream reconnecting",
		"attempt", conn.attempts, "max", r.config.MaxReconnectAttempts, "delay", delay)

	conn.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if conn.closed || r.main != conn {
			r.mu.Unlock()
			return
		}
		connCtx, cancel := context.WithCancel(context.Background())
		conn.cancel = cancel
		r.mu.Unlock()

		r.runMain(connCtx, conn)
	})
}

func (r *Realtime) handleMainEvent(payload []byte) {
	ev, ok := r.parseEvent(payload, "main")
	if !ok || ev.IsHeartbeat() {
		return
	}

	if ev.IsValid() {
		r.store.Add(ev)
		r.store.publish(ev, string(ev.Kind()), EventWildcard)
	}

	if ev.RequiresReauth {
		r.logger.Warn("reauthentication required signaled by server")
	}
}

// DisconnectMain closes the main stream. Safe to call when not connected.
func (r *Realtime) DisconnectMain() {
	r.mu.Lock()
	if r.main != nil {
		r.main.closed = true
		r.main.cancel()
		if r.main.timer != nil {
			r.main.timer.Stop()
		}
		r.main = nil
	}
	r.connected = false
	r.mu.Unlock()
	r.isConnecting.Store(false)
	r.logger.Info("main stream disconnected")
}

// ============================================================================
// Per-Queue Streams
// ============================================================================

// ConnectQueue opens a stream scoped to one queue and returns its teardown
// function. It never fails loudly: an empty id, a disabled service, or the
// connection cap being reached all return a no-op teardown. Connecting to
// an already-tracked queue returns a teardown for the existing stream.
func (r *Realtime) ConnectQueue(ctx context.Context, queueID string) func() {
	noop := func() {}
	if queueID == "" {
		r.logger.Error("queue connection requested without a queue id")
		return noop
	}

	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return noop
	}
	if _, exists := r.queues[queueID]; exists {
		r.mu.Unlock()
		r.logger.Debug("queue stream already tracked", "queue_id", queueID)
		return func() { r.DisconnectQueue(queueID) }
	}
	if r.openQueueCountLocked() >= r.config.MaxConnections {
		open := r.openQueueCountLocked()
		r.mu.Unlock()
		r.logger.Error("queue connection limit reached",
			"open", open, "max", r.config.MaxConnections)
		return noop
	}

	connCtx, cancel := context.WithCancel(ctx)
	conn := &queueConn{queueID: queueID, cancel: cancel}
	r.queues[queueID] = conn
	r.mu.Unlock()

	go r.runQueue(connCtx, conn)

	return func() { r.DisconnectQueue(queueID) }
}

func (r *Realtime) runQueue(ctx context.Context, conn *queueConn) {
	resp, err := r.openStream(ctx, r.client.streamURL(conn.queueID))
	if err != nil {
		r.logger.Error("queue stream connection failed",
			"queue_id", conn.queueID, "error", err)
		r.handleQueueFailure(conn)
		return
	}
	defer resp.Body.Close()

	r.mu.Lock()
	if conn.closed || r.queues[conn.queueID] != conn {
		r.mu.Unlock()
		return
	}
	conn.open = true
	conn.reconnecting = false
	conn.attempts = 0
	r.mu.Unlock()
	r.logger.Info("queue stream connected", "queue_id", conn.queueID)

	readErr := r.readStream(resp, func(payload []byte) {
		r.handleQueueEvent(conn.queueID, payload)
	})

	r.mu.Lock()
	if conn.closed || r.queues[conn.queueID] != conn {
		r.mu.Unlock()
		return
	}
	conn.open = false
	r.mu.Unlock()

	r.logger.Error("queue stream lost", "queue_id", conn.queueID, "error", readErr)
	r.handleQueueFailure(conn)
}

// handleQueueFailure retries with bounded exponential backoff, then gives
// up and removes the connection record.
func (r *Realtime) handleQueueFailure(conn *queueConn) {
	r.mu.Lock()
	if conn.closed || r.queues[conn.queueID] != conn {
		r.mu.Unlock()
		return
	}

	if conn.attempts >= r.config.MaxReconnectAttempts {
		delete(r.queues, conn.queueID)
		conn.cancel()
		r.mu.Unlock()
		r.logger.Error("queue stream gave up after max reconnect attempts",
			"queue_id", conn.queueID, "attempts", conn.attempts)
		return
	}

	conn.attempts++
	conn.reconnecting = true
	delay := ReconnectDelay(conn.attempts, r.config.ReconnectBaseDelay, r.config.ReconnectMaxDelay)
	r.logger.Info("queue stream reconnecting", "queue_id", conn.queueID,
		"attempt", conn.attempts, "max", r.config.MaxReconnectAttempts, "delay", delay)

	conn.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if conn.closed || r.queues[conn.queueID] != conn {
			r.mu.Unlock()
			return
		}
		connCtx, cancel := context.WithCancel(context.Background())
		conn.cancel = cancel
		r.mu.Unlock()

		r.runQueue(connCtx, conn)
	})
	r.mu.Unlock()
}

func (r *Realtime) handleQueueEvent(queueID string, payload []byte) {
	ev, ok := r.parseEvent(payload, "queue "+queueID)
	if !ok || ev.IsHeartbeat() {
		return
	}

	if !ev.IsValid() {
		return
	}

	ev.QueueID = queueID

	// Untagged or unknown events on a queue stream count as queue updates.
	kind := EventKind(ev.EventType)
	switch kind {
	case EventTicketChanged, EventSessionInvalidated, EventSecurityAlert,
		EventQueueUpdate, EventPositionUpdate:
	default:
		kind = EventQueueUpdate
	}

	r.store.add(ev, kind)
	r.store.publish(ev, "queue-"+queueID, string(EventQueueUpdate))
}

// DisconnectQueue closes one queue stream and cancels any pending
// reconnect. Unknown ids are ignored.
func (r *Realtime) DisconnectQueue(queueID string) {
	r.mu.Lock()
	conn, ok := r.queues[queueID]
	if ok {
		conn.closed = true
		if conn.timer != nil {
			conn.timer.Stop()
		}
		conn.cancel()
		delete(r.queues, queueID)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("queue stream disconnected", "queue_id", queueID)
	}
}

// ClearAll is the hard reset: every stream is closed, pending reconnects
// are cancelled, and the notification history and subscribers are dropped.
func (r *Realtime) ClearAll() {
	r.mu.Lock()
	if r.main != nil {
		r.main.closed = true
		r.main.cancel()
		if r.main.timer != nil {
			r.main.timer.Stop()
		}
		r.main = nil
	}
	for id, conn := range r.queues {
		conn.closed = true
		if conn.timer != nil {
			conn.timer.Stop()
		}
		conn.cancel()
		delete(r.queues, id)
	}
	r.connected = false
	r.connErr = ""
	r.mu.Unlock()

	r.isConnecting.Store(false)
	r.store.reset()
	r.logger.Info("all realtime connections cleared")
}

// Close tears down every stream and the notification state.
func (r *Realtime) Close() {
	r.ClearAll()
}

// ============================================================================
// Status Accessors
// ============================================================================

// ConnectionStatus reports the state of the main stream.
func (r *Realtime) ConnectionStatus() ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ConnectionStatus{
		Connected:    r.connected,
		Connecting:   r.isConnecting.Load(),
		ErrorMessage: r.connErr,
	}
}

// QueueStatus reports the state of one per-queue stream.
func (r *Realtime) QueueStatus(queueID string) QueueConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.queues[queueID]
	if !ok {
		return QueueConnectionStatus{}
	}
	return QueueConnectionStatus{
		Connected:    conn.open,
		Reconnecting: conn.reconnecting,
	}
}

// ActiveConnections returns the number of open per-queue streams.
// Streams mid-reconnect do not count.
func (r *Realtime) ActiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openQueueCountLocked()
}

func (r *Realtime) openQueueCountLocked() int {
	count := 0
	for _, conn := range r.queues {
		if conn.open {
			count++
		}
	}
	return count
}

// ============================================================================
// Stream Transport
// ============================================================================

func (r *Realtime) openStream(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token := r.client.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: status %d", resp.StatusCode)
	}
	return resp, nil
}

// readStream consumes an event stream line by line, passing each data
// payload to handle. Comment lines (server keepalives) are skipped. Returns
// when the stream ends or the context is cancelled.
func (r *Realtime) readStream(resp *http.Response, handle func([]byte)) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			handle([]byte(payload))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

// parseEvent decodes one SSE payload. Malformed payloads are dropped and
// logged; the stream keeps going.
func (r *Realtime) parseEvent(payload []byte, source string) (*Event, bool) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.Error("failed to parse stream event",
			"source", source, "error", err)
		return nil, false
	}
	return &ev, true
}
