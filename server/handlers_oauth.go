package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dbpkg "github.com/deedzorg/twitchconnect/db"
	"github.com/deedzorg/twitchconnect/twitchapi"
)

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to
// the authorize endpoint with a one-time state.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.OAuth
	if cfg == nil || cfg.ClientID == "" || cfg.RedirectURL == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, cfg.AuthCodeURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the authorization code and persists
// the resulting user token.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.OAuth
	if cfg == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	h.stateMu.RLock()
	exp, ok := h.stateStore[st]
	h.stateMu.RUnlock()
	if !ok || time.Now().After(exp) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	h.stateMu.Lock()
	delete(h.stateStore, st)
	h.stateMu.Unlock()

	ctx := r.Context()
	tok, err := twitchapi.ExchangeAuthCode(ctx, cfg, code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := dbpkg.UpsertOAuthToken(ctx, h.deps.DB, "twitch", tok.AccessToken, tok.RefreshToken,
		tok.Expiry, strings.Join(cfg.Scopes, " ")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "scopes": cfg.Scopes, "expiry": tok.Expiry}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
