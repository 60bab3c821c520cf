package fila

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

// ============================================================================
// Test Helpers
// ============================================================================

// recordingHandler captures every session notice for assertions.
type recordingHandler struct {
	mu        sync.Mutex
	warnings  []Notice
	successes []Notice
	errors    []Notice
	logouts   []string
}

func (h *recordingHandler) OnWarning(n Notice, refresh func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warnings = append(h.warnings, n)
}

func (h *recordingHandler) OnSuccess(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes = append(h.successes, n)
}

func (h *recordingHandler) OnError(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, n)
}

func (h *recordingHandler) OnForcedLogout(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logouts = append(h.logouts, reason)
}

func (h *recordingHandler) warningCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.warnings)
}

func (h *recordingHandler) logoutCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.logouts)
}

// tokenAPIState drives the fake token/session endpoints.
type tokenAPIState struct {
	shouldRefresh atomic.Bool
	statusFails   atomic.Bool
	refreshCalls  atomic.Int32
	refreshDelay  time.Duration
}

func newTokenAPI(t *testing.T, state *tokenAPIState) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dashboard/token-status", func(w http.ResponseWriter, r *http.Request) {
		if state.statusFails.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(&TokenStatus{
			Status:        "ok",
			ShouldRefresh: state.shouldRefresh.Load(),
			TimeToExpire:  "5 minutos",
		})
	})
	mux.HandleFunc("/dashboard/session-info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&SessionInfo{Role: "agent"})
	})
	mux.HandleFunc("/dashboard/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		state.refreshCalls.Inc()
		if state.refreshDelay > 0 {
			time.Sleep(state.refreshDelay)
		}
		state.shouldRefresh.Store(false)
		json.NewEncoder(w).Encode(&RefreshTokenResponse{AccessToken: "refreshed-token"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient("initial-token", WithBaseURL(server.URL))
}

// ============================================================================
// CheckStatus
// ============================================================================

func TestTokenManagerCheckStatus(t *testing.T) {
	t.Run("no token means expired", func(t *testing.T) {
		client := NewClient("")
		tm := client.TokenManager(nil)

		if err := tm.CheckStatus(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tm.State() != TokenExpired {
			t.Fatalf("expected expired, got %s", tm.State())
		}
	})

	t.Run("healthy token is valid", func(t *testing.T) {
		state := &tokenAPIState{}
		client := newTokenAPI(t, state)
		handler := &recordingHandler{}
		tm := client.TokenManager(&TokenManagerConfig{Handler: handler})

		if err := tm.CheckStatus(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tm.State() != TokenValid {
			t.Fatalf("expected valid, got %s", tm.State())
		}
		if tm.TimeRemaining() != "5 minutos" {
			t.Fatalf("unexpected time remaining %q", tm.TimeRemaining())
		}
		if info := tm.SessionInfo(); info == nil || info.Role != "agent" {
			t.Fatal("expected session info recorded")
		}
		if handler.warningCount() != 0 {
			t.Fatal("expected no warning for a healthy token")
		}
	})

	t.Run("warning fires once per expiry episode", func(t *testing.T) {
		state := &tokenAPIState{}
		state.shouldRefresh.Store(true)
		client := newTokenAPI(t, state)
		handler := &recordingHandler{}
		tm := client.TokenManager(&TokenManagerConfig{Handler: handler})
		defer tm.Stop()

		tm.CheckStatus(context.Background())
		tm.CheckStatus(context.Background())
		tm.CheckStatus(context.Background())

		if tm.State() != TokenExpiring {
			t.Fatalf("expected expiring, got %s", tm.State())
		}
		if got := handler.warningCount(); got != 1 {
			t.Fatalf("expected 1 warning, got %d", got)
		}
		if d := handler.warnings[0].Duration; d != 30*time.Second {
			t.Fatalf("expected 30s warning duration, got %s", d)
		}

		// Token recovers, then starts expiring again: a fresh warning.
		state.shouldRefresh.Store(false)
		tm.CheckStatus(context.Background())
		if tm.State() != TokenValid {
			t.Fatalf("expected valid after recovery, got %s", tm.State())
		}

		state.shouldRefresh.Store(true)
		tm.CheckStatus(context.Background())
		if got := handler.warningCount(); got != 2 {
			t.Fatalf("expected 2 warnings across episodes, got %d", got)
		}
	})

	t.Run("check failure forces logout exactly once", func(t *testing.T) {
		state := &tokenAPIState{}
		state.statusFails.Store(true)
		client := newTokenAPI(t, state)
		handler := &recordingHandler{}
		tm := client.TokenManager(&TokenManagerConfig{Handler: handler})

		if err := tm.CheckStatus(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		tm.CheckStatus(context.Background())
		tm.CheckStatus(context.Background())

		if tm.State() != TokenExpired {
			t.Fatalf("expected expired, got %s", tm.State())
		}
		if got := handler.logoutCount(); got != 1 {
			t.Fatalf("expected exactly one forced logout, got %d", got)
		}
		if handler.logouts[0] != "token_expired" {
			t.Fatalf("unexpected logout reason %q", handler.logouts[0])
		}
	})
}

// ============================================================================
// RefreshToken
// ============================================================================

func TestTokenManagerRefresh(t *testing.T) {
	t.Run("stores the new token and re-checks", func(t *testing.T) {
		state := &tokenAPIState{}
		state.shouldRefresh.Store(true)
		client := newTokenAPI(t, state)
		handler := &recordingHandler{}
		tm := client.TokenManager(&TokenManagerConfig{Handler: handler})

		if err := tm.RefreshToken(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.Token() != "refreshed-token" {
			t.Fatalf("token not stored, got %q", client.Token())
		}
		if tm.State() != TokenValid {
			t.Fatalf("expected valid after refresh, got %s", tm.State())
		}
		handler.mu.Lock()
		successes := len(handler.successes)
		handler.mu.Unlock()
		if successes != 1 {
			t.Fatalf("expected 1 success notice, got %d", successes)
		}
	})

	t.Run("concurrent refreshes are coalesced", func(t *testing.T) {
		state := &tokenAPIState{refreshDelay: 50 * time.Millisecond}
		client := newTokenAPI(t, state)
		tm := client.TokenManager(nil)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tm.RefreshToken(context.Background())
			}()
		}
		wg.Wait()

		if got := state.refreshCalls.Load(); got != 1 {
			t.Fatalf("expected 1 refresh request, got %d", got)
		}
	})

	t.Run("failure forces logout", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/dashboard/refresh-token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)

		handler := &recordingHandler{}
		client := NewClient("tok", WithBaseURL(server.URL))
		tm := client.TokenManager(&TokenManagerConfig{Handler: handler})

		if err := tm.RefreshToken(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if got := handler.logoutCount(); got != 1 {
			t.Fatalf("expected forced logout, got %d", got)
		}
	})
}

// ============================================================================
// Scheduling
// ============================================================================

func TestTokenManagerScheduling(t *testing.T) {
	t.Run("start runs an immediate check", func(t *testing.T) {
		state := &tokenAPIState{}
		client := newTokenAPI(t, state)
		tm := client.TokenManager(nil)
		defer tm.Stop()

		tm.Start(context.Background())
		waitFor(t, 2*time.Second, "initial check", func() bool {
			return tm.State() == TokenValid
		})
	})

	t.Run("silent auto-refresh fires when the warning goes unanswered", func(t *testing.T) {
		state := &tokenAPIState{}
		state.shouldRefresh.Store(true)
		client := newTokenAPI(t, state)
		handler := &recordingHandler{}
		tm := client.TokenManager(&TokenManagerConfig{
			Handler:          handler,
			AutoRefreshDelay: 30 * time.Millisecond,
		})
		defer tm.Stop()

		tm.CheckStatus(context.Background())
		if handler.warningCount() != 1 {
			t.Fatal("expected warning before auto-refresh")
		}

		waitFor(t, 2*time.Second, "auto refresh", func() bool {
			return state.refreshCalls.Load() == 1
		})
		waitFor(t, 2*time.Second, "new token stored", func() bool {
			return client.Token() == "refreshed-token"
		})
	})

	t.Run("stop disarms the auto-refresh", func(t *testing.T) {
		state := &tokenAPIState{}
		state.shouldRefresh.Store(true)
		client := newTokenAPI(t, state)
		tm := client.TokenManager(&TokenManagerConfig{
			AutoRefreshDelay: 50 * time.Millisecond,
		})

		tm.CheckStatus(context.Background())
		tm.Stop()

		time.Sleep(120 * time.Millisecond)
		if got := state.refreshCalls.Load(); got != 0 {
			t.Fatalf("expected no refresh after stop, got %d", got)
		}
	})

	t.Run("recovery disarms the auto-refresh", func(t *testing.T) {
		state := &tokenAPIState{}
		state.shouldRefresh.Store(true)
		client := newTokenAPI(t, state)
		tm := client.TokenManager(&TokenManagerConfig{
			AutoRefreshDelay: 60 * time.Millisecond,
		})
		defer tm.Stop()

		tm.CheckStatus(context.Background())

		// The server no longer recommends a refresh before the timer fires.
		state.shouldRefresh.Store(false)
		tm.CheckStatus(context.Background())

		time.Sleep(120 * time.Millisecond)
		if got := state.refreshCalls.Load(); got != 0 {
			t.Fatalf("expected no refresh after recovery, got %d", got)
		}
	})
}

// ============================================================================
// JWT Introspection
// ============================================================================

func TestTokenExpiry(t *testing.T) {
	t.Run("reads the exp claim without verification", func(t *testing.T) {
		// {"alg":"HS256","typ":"JWT"}.{"exp":4102444800}, unsigned.
		token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjQxMDI0NDQ4MDB9.x"
		exp, ok := tokenExpiry(token)
		if !ok {
			t.Fatal("expected expiry")
		}
		if exp.Unix() != 4102444800 {
			t.Fatalf("unexpected expiry %d", exp.Unix())
		}
	})

	t.Run("opaque token has none", func(t *testing.T) {
		if _, ok := tokenExpiry("not-a-jwt"); ok {
			t.Fatal("expected no expiry")
		}
	})

	t.Run("empty token has none", func(t *testing.T) {
		if _, ok := tokenExpiry(""); ok {
			t.Fatal("expected no expiry")
		}
	})
}
