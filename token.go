package fila

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/atomic"
)

// ============================================================================
// Token State
// ============================================================================

// TokenState is the freshness state of the current session token.
type TokenState string

const (
	TokenLoading  TokenState = "loading"
	TokenValid    TokenState = "valid"
	TokenExpiring TokenState = "expiring"
	TokenExpired  TokenState = "expired"
)

// Notice is a user-facing message raised by the token manager, rendered by
// the embedding application (toast, terminal line, log entry).
type Notice struct {
	Title       string
	Description string

	// Duration is how long the notice should stay visible, when the
	// rendering surface supports it. Zero means renderer default.
	Duration time.Duration
}

// SessionHandler receives session lifecycle notices. All methods are called
// synchronously from the manager; implementations should return quickly.
type SessionHandler interface {
	// OnWarning fires once per expiry episode. refresh triggers a manual
	// token refresh when invoked.
	OnWarning(n Notice, refresh func())
	OnSuccess(n Notice)
	OnError(n Notice)

	// OnForcedLogout fires at most once per session when the token is
	// irrecoverable. reason is a machine-readable code ("token_expired").
	OnForcedLogout(reason string)
}

type noopSessionHandler struct{}

func (noopSessionHandler) OnWarning(Notice, func()) {}
func (noopSessionHandler) OnSuccess(Notice)         {}
func (noopSessionHandler) OnError(Notice)           {}
func (noopSessionHandler) OnForcedLogout(string)    {}

// ============================================================================
// Token Manager Configuration
// ============================================================================

// TokenManagerConfig configures the token refresh scheduler.
type TokenManagerConfig struct {
	// CheckInterval is the periodic status check cadence. Default: 60s.
	CheckInterval time.Duration

	// AutoRefreshDelay is how long after the token enters the expiring
	// state a silent refresh fires. Default: 2m.
	AutoRefreshDelay time.Duration

	// WarningDuration is passed to OnWarning as the visible duration.
	// Default: 30s.
	WarningDuration time.Duration

	// Handler receives lifecycle notices. Defaults to a no-op handler.
	Handler SessionHandler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *TokenManagerConfig) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.AutoRefreshDelay <= 0 {
		c.AutoRefreshDelay = 2 * time.Minute
	}
	if c.WarningDuration <= 0 {
		c.WarningDuration = 30 * time.Second
	}
	if c.Handler == nil {
		c.Handler = noopSessionHandler{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ============================================================================
// Token Manager
// ============================================================================

// TokenManager tracks the freshness of the session token, warns before
// expiry, and refreshes it — on demand, or silently after a grace period.
type TokenManager struct {
	client *Client
	config TokenManagerConfig
	logger *slog.Logger

	isRefreshing atomic.Bool

	mu             sync.Mutex
	state          TokenState
	timeRemaining  string
	shouldRefresh  bool
	warningShown   bool
	sessionInfo    *SessionInfo
	expiredHandled bool
	autoTimer      *time.Timer
	stop           chan struct{}
}

// TokenManager creates the token refresh scheduler for this client. Pass
// nil to use the default configuration.
func (c *Client) TokenManager(config *TokenManagerConfig) *TokenManager {
	cfg := TokenManagerConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	cfg.defaults()

	return &TokenManager{
		client: c,
		config: cfg,
		logger: cfg.Logger,
		state:  TokenLoading,
	}
}

// State returns the current token state.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TimeRemaining returns the human-readable time until expiry as reported
// by the last status check.
func (m *TokenManager) TimeRemaining() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeRemaining
}

// ShouldRefresh reports whether the server recommended a refresh on the
// last check.
func (m *TokenManager) ShouldRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldRefresh
}

// IsRefreshing reports whether a refresh is in flight.
func (m *TokenManager) IsRefreshing() bool {
	return m.isRefreshing.Load()
}

// SessionInfo returns the session details from the last successful check.
func (m *TokenManager) SessionInfo() *SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionInfo
}

// ExpiresAt reads the expiry claim straight from the bearer token, without
// signature verification. Reports false when the token is absent or
// carries no expiry.
func (m *TokenManager) ExpiresAt() (time.Time, bool) {
	return tokenExpiry(m.client.Token())
}

// ============================================================================
// Status Check
// ============================================================================

// CheckStatus queries the token status and session info endpoints and
// updates the state machine:
//
//   - no token              → expired, nothing else happens
//   - shouldRefresh=true    → expiring; the first check of the episode
//     raises the expiry warning and arms the silent auto-refresh timer
//   - shouldRefresh=false   → valid; a previously shown warning is reset
//   - request failure       → expired + forced logout (at most once)
func (m *TokenManager) CheckStatus(ctx context.Context) error {
	if m.client.Token() == "" {
		m.mu.Lock()
		m.state = TokenExpired
		m.mu.Unlock()
		return nil
	}

	status, err := m.client.Dashboard().TokenStatus(ctx)
	if err != nil {
		return m.failCheck(err)
	}
	info, err := m.client.Dashboard().SessionInfo(ctx)
	if err != nil {
		return m.failCheck(err)
	}

	timeRemaining := status.TimeToExpire
	if timeRemaining == "" {
		if exp, ok := tokenExpiry(m.client.Token()); ok {
			timeRemaining = time.Until(exp).Round(time.Second).String()
		}
	}

	m.mu.Lock()
	if status.ShouldRefresh {
		m.state = TokenExpiring
	} else {
		m.state = TokenValid
	}
	m.timeRemaining = timeRemaining
	m.shouldRefresh = status.ShouldRefresh
	m.sessionInfo = info
	m.expiredHandled = false

	warn := status.ShouldRefresh && !m.warningShown
	if warn {
		// Arm the silent fallback before the warning counts as shown:
		// if the user never acts on it, the refresh still happens.
		m.armAutoRefreshLocked()
		m.warningShown = true
	}
	if !status.ShouldRefresh && m.warningShown {
		m.warningShown = false
		m.disarmAutoRefreshLocked()
	}
	m.mu.Unlock()

	if warn {
		m.config.Handler.OnWarning(Notice{
			Title:       "Sessão Expirando",
			Description: fmt.Sprintf("Sua sessão expirará em %s. Clique para renovar.", timeRemaining),
			Duration:    m.config.WarningDuration,
		}, func() {
			go m.RefreshToken(context.Background())
		})
	}

	return nil
}

func (m *TokenManager) failCheck(err error) error {
	m.logger.Error("token status check failed", "error", err)
	m.mu.Lock()
	m.state = TokenExpired
	m.mu.Unlock()
	m.forceLogout()
	return err
}

// ============================================================================
// Refresh
// ============================================================================

// RefreshToken exchanges the token for a fresh one and stores it on the
// client. A call while another refresh is in flight is ignored. Failure
// forces a logout.
func (m *TokenManager) RefreshToken(ctx context.Context) error {
	if !m.isRefreshing.CompareAndSwap(false, true) {
		m.logger.Debug("token refresh already in progress")
		return nil
	}
	defer m.isRefreshing.Store(false)

	resp, err := m.client.Dashboard().RefreshToken(ctx)
	if err != nil {
		m.logger.Error("token refresh failed", "error", err)
		m.config.Handler.OnError(Notice{
			Title:       "Erro ao Renovar",
			Description: "Não foi possível renovar sua sessão. Você será redirecionado para o login.",
		})
		m.forceLogout()
		return err
	}

	m.client.SetToken(resp.AccessToken)

	m.mu.Lock()
	m.warningShown = false
	m.disarmAutoRefreshLocked()
	m.mu.Unlock()

	m.config.Handler.OnSuccess(Notice{
		Title:       "Token Renovado",
		Description: "Sua sessão foi renovada com sucesso!",
	})

	return m.CheckStatus(ctx)
}

// forceLogout notifies the handler that the session is over, at most once.
func (m *TokenManager) forceLogout() {
	m.mu.Lock()
	if m.expiredHandled {
		m.mu.Unlock()
		return
	}
	m.expiredHandled = true
	m.mu.Unlock()

	m.config.Handler.OnError(Notice{
		Title:       "Sessão Expirada",
		Description: "Sua sessão expirou. Você será redirecionado para o login.",
	})
	m.config.Handler.OnForcedLogout("token_expired")
}

// ============================================================================
// Scheduling
// ============================================================================

// Start runs an immediate status check, then checks periodically until the
// context is cancelled or Stop is called. A second Start while running is
// a no-op.
func (m *TokenManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go func() {
		m.CheckStatus(ctx)

		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckStatus(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic check and the pending auto-refresh, if any.
func (m *TokenManager) Stop() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.disarmAutoRefreshLocked()
	m.mu.Unlock()
}

// armAutoRefreshLocked schedules the silent refresh that fires when the
// expiry warning goes unanswered. Caller holds m.mu.
func (m *TokenManager) armAutoRefreshLocked() {
	if m.autoTimer != nil || m.isRefreshing.Load() {
		return
	}
	m.autoTimer = time.AfterFunc(m.config.AutoRefreshDelay, func() {
		m.mu.Lock()
		m.autoTimer = nil
		m.mu.Unlock()
		m.logger.Info("auto-refreshing token after unanswered expiry warning")
		m.RefreshToken(context.Background())
	})
}

func (m *TokenManager) disarmAutoRefreshLocked() {
	if m.autoTimer != nil {
		m.autoTimer.Stop()
		m.autoTimer = nil
	}
}

// ============================================================================
// JWT Introspection
// ============================================================================

// tokenExpiry extracts the exp claim from a JWT without verifying its
// signature. Verification is the server's job; this is only used for
// local countdown display.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
