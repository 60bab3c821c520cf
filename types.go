package fila

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error response from the backoffice API.
type APIError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// ============================================================================
// Auth Types
// ============================================================================

// LoginOptions carries staff credentials for authentication.
type LoginOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Agent represents a staff member operating the backoffice.
type Agent struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
	TenantID string `json:"tenantId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        Agent  `json:"user"`
}

// ============================================================================
// Queue Types
// ============================================================================

// Queue represents a service queue scoped to a tenant.
type Queue struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	QueueType        string   `json:"queueType"`
	ServiceType      string   `json:"serviceType"`
	ToleranceMinutes int      `json:"toleranceMinutes"`
	IsActive         bool     `json:"isActive"`
	Capacity         *int     `json:"capacity"`
	AvgServiceTime   int      `json:"avgServiceTime"`
	TenantID         string   `json:"tenantId"`
	CurrentNumber    string   `json:"currentNumber,omitempty"`
	PreviousNumber   string   `json:"previousNumber,omitempty"`
	TotalProcessed   int      `json:"totalProcessed,omitempty"`
	TotalWaiting     int      `json:"totalWaiting,omitempty"`
	LastCalledAt     string   `json:"lastCalledAt,omitempty"`
	Tickets          []Ticket `json:"tickets,omitempty"`
	CreatedAt        string   `json:"createdAt"`
	UpdatedAt        string   `json:"updatedAt"`
}

// CreateQueueOptions carries the fields accepted when creating or updating a
// queue. Zero-value fields are omitted, so the same struct serves partial
// updates.
type CreateQueueOptions struct {
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	QueueType        string `json:"queueType,omitempty"`
	ServiceType      string `json:"serviceType,omitempty"`
	ToleranceMinutes int    `json:"toleranceMinutes,omitempty"`
	Capacity         int    `json:"capacity,omitempty"`
}

// QueueStats is the aggregated statistics view for one queue.
type QueueStats struct {
	QueueInfo struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Description      string `json:"description"`
		Capacity         int    `json:"capacity"`
		ToleranceMinutes int    `json:"toleranceMinutes"`
		AvgServiceTime   int    `json:"avgServiceTime"`
		Status           string `json:"status"`
	} `json:"queueInfo"`
	CurrentStats struct {
		WaitingCount             int     `json:"waitingCount"`
		CalledCount              int     `json:"calledCount"`
		CompletedToday           int     `json:"completedToday"`
		NextEstimatedTime        int     `json:"nextEstimatedTime"`
		NextEstimatedTimeMinutes int     `json:"nextEstimatedTimeMinutes"`
		CompletionRate           float64 `json:"completionRate"`
	} `json:"currentStats"`
	Performance struct {
		AvgWaitTime         int     `json:"avgWaitTime"`
		AvgWaitTimeMinutes  int     `json:"avgWaitTimeMinutes"`
		TotalProcessedToday int     `json:"totalProcessedToday"`
		AbandonmentRate     float64 `json:"abandonmentRate"`
	} `json:"performance"`
	LastUpdated string `json:"lastUpdated"`
}

// AbandonmentStats reports abandoned-ticket metrics for one queue.
type AbandonmentStats struct {
	QueueID              string  `json:"queueId"`
	AbandonedToday       int     `json:"abandonedToday"`
	AbandonmentRate      float64 `json:"abandonmentRate"`
	AvgWaitBeforeAbandon int     `json:"avgWaitBeforeAbandon,omitempty"`
	Period               string  `json:"period,omitempty"`
}

// CleanupResponse is returned by the queue cleanup maintenance operation.
type CleanupResponse struct {
	Removed int    `json:"removed"`
	Message string `json:"message,omitempty"`
}

// ============================================================================
// Ticket Types
// ============================================================================

// Ticket represents one position in a queue.
type Ticket struct {
	ID             string `json:"id"`
	Number         int    `json:"number"`
	MyCallingToken string `json:"myCallingToken"`
	Priority       int    `json:"priority"`
	Status         string `json:"status"`
	ClientName     string `json:"clientName,omitempty"`
	ClientPhone    string `json:"clientPhone,omitempty"`
	ClientEmail    string `json:"clientEmail,omitempty"`
	EstimatedTime  int    `json:"estimatedTime,omitempty"`
	Position       int    `json:"position,omitempty"`
	QueueID        string `json:"queueId"`
	CalledAt       string `json:"calledAt,omitempty"`
	CompletedAt    string `json:"completedAt,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// CreateTicketOptions carries the fields accepted when issuing a ticket.
type CreateTicketOptions struct {
	ClientName  string `json:"clientName,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`
	ClientEmail string `json:"clientEmail,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// ============================================================================
// Dashboard / Session Types
// ============================================================================

// TokenStatus is the freshness report for the current access token.
type TokenStatus struct {
	Status          string `json:"status"`
	Token           string `json:"token"`
	ExpiresAt       string `json:"expiresAt"`
	ExpiresIn       int    `json:"expiresIn"`
	ShouldRefresh   bool   `json:"shouldRefresh"`
	TimeToExpire    string `json:"timeToExpire"`
	Recommendations struct {
		ShouldRefresh bool   `json:"should_refresh"`
		Action        string `json:"action"`
	} `json:"recommendations"`
}

// SessionInfo describes the authenticated staff session.
type SessionInfo struct {
	UserID       string `json:"userId"`
	TenantID     string `json:"tenantId"`
	Role         string `json:"role"`
	SessionStart string `json:"sessionStart"`
	LastActivity string `json:"lastActivity"`
	TokenInfo    struct {
		Token         string `json:"token"`
		ExpiresAt     string `json:"expiresAt"`
		ExpiresIn     int    `json:"expiresIn"`
		ShouldRefresh bool   `json:"shouldRefresh"`
		TimeToExpire  string `json:"timeToExpire"`
	} `json:"tokenInfo"`
	Warnings struct {
		TokenExpiring bool   `json:"tokenExpiring"`
		TimeRemaining string `json:"timeRemaining"`
	} `json:"warnings"`
}

// RefreshTokenResponse is returned by a successful token refresh.
type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Message     string `json:"message"`
	RefreshedAt string `json:"refreshed_at"`
}

// DashboardMetrics is the per-tenant metrics snapshot shown on the dashboard.
type DashboardMetrics struct {
	UserMetrics struct {
		UserID    string `json:"userId"`
		TenantID  string `json:"tenantId"`
		LastLogin string `json:"lastLogin"`
	} `json:"userMetrics"`
	TenantMetrics struct {
		TotalTickets int    `json:"totalTickets"`
		ActiveAgents int    `json:"activeAgents"`
		AvgWaitTime  string `json:"avgWaitTime"`
		QueueLength  int    `json:"queueLength"`
	} `json:"tenantMetrics"`
}

// ConnectionStatusInfo is the server-side view of real-time connectivity.
type ConnectionStatusInfo struct {
	Connected   bool            `json:"connected"`
	Connections int             `json:"connections,omitempty"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}
