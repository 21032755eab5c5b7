package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/deedzorg/twitchconnect/chat"
	dbpkg "github.com/deedzorg/twitchconnect/db"
)

// Maximum number of OAuth states to keep in memory.
const maxOAuthStates = 10000

// Deps carries everything the handlers need.
type Deps struct {
	DB         *sql.DB
	Store      *dbpkg.Store
	Registry   *chat.Registry
	Reconciler *chat.Reconciler
	Hub        *Hub
	OAuth      *oauth2.Config
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		deps:       deps,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// HandleHealthz responds to liveness probes by checking database
// connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes with per-check detail.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.deps.DB.PingContext(r.Context()) }},
		{"credentials", func() error {
			var count int
			err := h.deps.DB.QueryRowContext(r.Context(),
				"SELECT COUNT(*) FROM oauth_tokens WHERE provider='twitch'").Scan(&count)
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("missing twitch OAuth token")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type sessionStatus struct {
	Channel      string    `json:"channel"`
	State        string    `json:"state"`
	LastActivity time.Time `json:"last_activity"`
}

// HandleStatus reports tracked channels, live status, and open sessions.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tracked, err := h.deps.Store.TrackedChannels(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sessions := make([]sessionStatus, 0)
	for _, s := range h.deps.Registry.All() {
		sessions = append(sessions, sessionStatus{
			Channel:      s.Channel(),
			State:        s.State().String(),
			LastActivity: s.LastActivity(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tracked":  tracked,
		"live":     h.deps.Reconciler.Status(),
		"sessions": sessions,
	})
}

// HandleChannels lists (GET) or adds (POST) tracked channels.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tracked, err := h.deps.Store.TrackedChannels(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"channels": tracked})
	case http.MethodPost:
		var body struct {
			Channel string `json:"channel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		ch := chat.NormalizeChannel(body.Channel)
		if ch == "" {
			http.Error(w, "empty channel", http.StatusBadRequest)
			return
		}
		if err := h.deps.Store.AddTrackedChannel(r.Context(), ch); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// Kick a reconcile so a live channel joins without waiting for the
		// next tick.
		go func() {
			if err := h.deps.Reconciler.RunOnce(h.ctx); err != nil {
				slog.Warn("reconcile after channel add failed", slog.Any("err", err))
			}
		}()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"channel": ch})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleChannelByName removes a tracked channel (DELETE /channels/{name})
// and closes its session if one is open.
func (h *Handlers) HandleChannelByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/channels/")
	ch := chat.NormalizeChannel(name)
	if ch == "" || strings.Contains(ch, "/") {
		http.Error(w, "invalid channel", http.StatusBadRequest)
		return
	}
	removed, err := h.deps.Store.RemoveTrackedChannel(r.Context(), ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "not tracked", http.StatusNotFound)
		return
	}
	h.deps.Registry.Close(ch)
	w.WriteHeader(http.StatusNoContent)
}

// HandleChatSend transmits a message to one channel, or to every joined
// channel when the channel field is empty.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Channel string `json:"channel"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	sent := 0
	if body.Channel == "" {
		sent = h.deps.Registry.Broadcast(body.Message)
	} else {
		ch := chat.NormalizeChannel(body.Channel)
		for _, s := range h.deps.Registry.All() {
			if s.Channel() == ch && s.Send(body.Message) {
				sent++
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"sent": sent})
}

// cleanExpiredStates removes expired OAuth states. Call with stateMu held.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	// Refusing to add past the cap fails the OAuth flow, which beats
	// unbounded memory growth.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[state] = expiry
}
