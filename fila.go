// Package fila provides the Go client for the digital queue backoffice API.
//
// Covers authentication, queue and ticket management, dashboard/session
// endpoints, and the real-time notification layer (SSE).
//
// Example:
//
//	client := fila.NewClient("", fila.WithBaseURL("https://api.example.com/api/v1"))
//
//	// Authenticate
//	auth, _ := client.Auth().Login(ctx, &fila.LoginOptions{Email: email, Password: pass})
//	client.SetToken(auth.AccessToken)
//
//	// Queue management (sub-module pattern)
//	queues, _ := client.Queues(tenantID).List(ctx)
//	client.Queues(tenantID).CallNext(ctx, queueID)
//
//	// Real-time notifications
//	rt := client.Realtime(nil)
//	defer rt.Close()
//	unsubscribe := rt.Notifications().Subscribe("ticket-changed", handler)
//	rt.ConnectMain(ctx)
//	defer unsubscribe()
package fila

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL points at the production backoffice API.
	DefaultBaseURL = "https://api.filaone.com.br/api/v1"

	// DefaultTimeout bounds every plain HTTP request. Streaming connections
	// use a separate client without a timeout.
	DefaultTimeout = 10 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the entry point for all API access. It holds the base URL and
// the current bearer token; sub-clients share its transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (including the /api/v1 prefix).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the HTTP timeout for non-streaming requests.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger. If unset, slog.Default() is used.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new backoffice API client.
// token is optional — pass "" and call SetToken after login.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// SetToken sets or replaces the bearer token used on every request.
// Called after login and after each token refresh.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token ("" when unauthenticated).
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Auth returns the authentication sub-client.
func (c *Client) Auth() *AuthClient { return &AuthClient{client: c} }

// Queues returns the queue management sub-client scoped to one tenant.
func (c *Client) Queues(tenantID string) *QueuesClient {
	return &QueuesClient{client: c, tenantID: tenantID}
}

// Tickets returns the ticket lifecycle sub-client.
func (c *Client) Tickets() *TicketsClient { return &TicketsClient{client: c} }

// Dashboard returns the dashboard/session sub-client.
func (c *Client) Dashboard() *DashboardClient { return &DashboardClient{client: c} }

// Realtime creates the real-time notification service for this client.
// Pass nil to use the default configuration. Call ConnectMain or
// ConnectQueue on the returned service to start receiving events.
func (c *Client) Realtime(config *RealtimeConfig) *Realtime {
	return newRealtime(c, config)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return nil, apiErr
	}

	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if len(data) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// streamBaseURL strips the /api/v1 prefix from the base URL; the SSE
// endpoints live outside the versioned API surface.
func (c *Client) streamBaseURL() string {
	return strings.Replace(c.baseURL, "/api/v1", "", 1)
}

// streamURL builds the SSE endpoint URL, optionally scoped to one queue.
func (c *Client) streamURL(queueID string) string {
	u := c.streamBaseURL() + "/api/rt/tickets/stream"
	if queueID != "" {
		u += "?queueId=" + url.QueryEscape(queueID)
	}
	return u
}

// ============================================================================
// Auth Sub-Client
// ============================================================================

// AuthClient handles staff authentication.
type AuthClient struct{ client *Client }

// Login authenticates with email/password and stores the returned token on
// the parent client.
func (a *AuthClient) Login(ctx context.Context, opts *LoginOptions) (*AuthResponse, error) {
	data, err := a.client.doRequest(ctx, "POST", "/auth/login", opts, nil)
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[AuthResponse](data)
	if err != nil {
		return nil, err
	}
	a.client.SetToken(resp.AccessToken)
	return resp, nil
}

// Logout discards the stored token. The session itself expires server-side.
func (a *AuthClient) Logout() {
	a.client.SetToken("")
}

// ============================================================================
// Queues Sub-Client
// ============================================================================

// QueuesClient handles queue CRUD and queue-scoped operations for a tenant.
type QueuesClient struct {
	client   *Client
	tenantID string
}

func (q *QueuesClient) path(suffix string) string {
	return "/tenants/" + q.tenantID + "/queues" + suffix
}

func (q *QueuesClient) List(ctx context.Context) ([]Queue, error) {
	data, err := q.client.doRequest(ctx, "GET", q.path(""), nil, nil)
	if err != nil {
		return nil, err
	}
	var queues []Queue
	if err := json.Unmarshal(data, &queues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return queues, nil
}

func (q *QueuesClient) Get(ctx context.Context, queueID string) (*Queue, error) {
	data, err := q.client.doRequest(ctx, "GET", q.path("/"+queueID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Queue](data)
}

func (q *QueuesClient) Create(ctx context.Context, opts *CreateQueueOptions) (*Queue, error) {
	data, err := q.client.doRequest(ctx, "POST", q.path(""), opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Queue](data)
}

func (q *QueuesClient) Update(ctx context.Context, queueID string, opts *CreateQueueOptions) (*Queue, error) {
	data, err := q.client.doRequest(ctx, "PUT", q.path("/"+queueID), opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Queue](data)
}

func (q *QueuesClient) Delete(ctx context.Context, queueID string) error {
	_, err := q.client.doRequest(ctx, "DELETE", q.path("/"+queueID), nil, nil)
	return err
}

// CallNext advances the queue, calling the next waiting ticket.
func (q *QueuesClient) CallNext(ctx context.Context, queueID string) (*Ticket, error) {
	data, err := q.client.doRequest(ctx, "POST", q.path("/"+queueID+"/call-next"), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

func (q *QueuesClient) Stats(ctx context.Context, queueID string) (*QueueStats, error) {
	data, err := q.client.doRequest(ctx, "GET", q.path("/"+queueID+"/stats"), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[QueueStats](data)
}

func (q *QueuesClient) AbandonmentStats(ctx context.Context, queueID string) (*AbandonmentStats, error) {
	data, err := q.client.doRequest(ctx, "GET", q.path("/"+queueID+"/abandonment-stats"), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[AbandonmentStats](data)
}

// Cleanup removes stale tickets past their tolerance window.
func (q *QueuesClient) Cleanup(ctx context.Context, queueID string) (*CleanupResponse, error) {
	data, err := q.client.doRequest(ctx, "POST", q.path("/"+queueID+"/cleanup"), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[CleanupResponse](data)
}

// ============================================================================
// Tickets Sub-Client
// ============================================================================

// TicketsClient handles the ticket lifecycle.
type TicketsClient struct{ client *Client }

// Create issues a new ticket in the given queue.
func (t *TicketsClient) Create(ctx context.Context, queueID string, opts *CreateTicketOptions) (*Ticket, error) {
	data, err := t.client.doRequest(ctx, "POST", "/queues/"+queueID+"/tickets", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

func (t *TicketsClient) Get(ctx context.Context, ticketID string) (*Ticket, error) {
	data, err := t.client.doRequest(ctx, "GET", "/tickets/"+ticketID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

// Recall re-announces an already-called ticket.
func (t *TicketsClient) Recall(ctx context.Context, ticketID string) (*Ticket, error) {
	data, err := t.client.doRequest(ctx, "PUT", "/tickets/"+ticketID+"/recall", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

// Skip marks a called ticket as not present and moves on.
func (t *TicketsClient) Skip(ctx context.Context, ticketID string) (*Ticket, error) {
	data, err := t.client.doRequest(ctx, "PUT", "/tickets/"+ticketID+"/skip", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

// Complete finishes service for a called ticket.
func (t *TicketsClient) Complete(ctx context.Context, ticketID string) (*Ticket, error) {
	data, err := t.client.doRequest(ctx, "PUT", "/tickets/"+ticketID+"/complete", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Ticket](data)
}

// ============================================================================
// Dashboard Sub-Client
// ============================================================================

// DashboardClient handles dashboard metrics and session/token endpoints.
type DashboardClient struct{ client *Client }

func (d *DashboardClient) TokenStatus(ctx context.Context) (*TokenStatus, error) {
	data, err := d.client.doRequest(ctx, "GET", "/dashboard/token-status", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[TokenStatus](data)
}

func (d *DashboardClient) SessionInfo(ctx context.Context) (*SessionInfo, error) {
	data, err := d.client.doRequest(ctx, "GET", "/dashboard/session-info", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[SessionInfo](data)
}

// RefreshToken exchanges the current token for a fresh one. The caller is
// responsible for storing the new token via SetToken.
func (d *DashboardClient) RefreshToken(ctx context.Context) (*RefreshTokenResponse, error) {
	data, err := d.client.doRequest(ctx, "POST", "/dashboard/refresh-token", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[RefreshTokenResponse](data)
}

func (d *DashboardClient) PrivateMetrics(ctx context.Context) (*DashboardMetrics, error) {
	data, err := d.client.doRequest(ctx, "GET", "/dashboard/private-metrics", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[DashboardMetrics](data)
}

func (d *DashboardClient) PublicMetrics(ctx context.Context) (json.RawMessage, error) {
	data, err := d.client.doRequest(ctx, "GET", "/dashboard/public-metrics", nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (d *DashboardClient) ConnectionStatus(ctx context.Context) (*ConnectionStatusInfo, error) {
	data, err := d.client.doRequest(ctx, "GET", "/dashboard/connection-status", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ConnectionStatusInfo](data)
}
