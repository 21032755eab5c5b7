package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deedzorg/twitchconnect/chat"
	dbpkg "github.com/deedzorg/twitchconnect/db"
	"github.com/deedzorg/twitchconnect/testutil"
	"github.com/deedzorg/twitchconnect/twitchapi"
)

type noStreams struct{}

func (noStreams) GetStreams(ctx context.Context, logins ...string) ([]twitchapi.Stream, error) {
	return nil, nil
}

// newTestHandlers wires handlers against a real test database. Session opens
// always fail so no sockets are dialed.
func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	database := testutil.SetupTestDB(t)
	store := &dbpkg.Store{DB: database}
	registry := chat.NewRegistry(func(ctx context.Context, channel string, onClosed func()) (*chat.Session, error) {
		return nil, errors.New("no sockets in tests")
	})
	reconciler := &chat.Reconciler{
		Streams:  noStreams{},
		Tracked:  store,
		Registry: registry,
	}
	t.Cleanup(func() {
		_, _ = database.Exec(`DELETE FROM tracked_channels`)
		_, _ = database.Exec(`DELETE FROM oauth_tokens WHERE provider='twitch'`)
	})
	return NewHandlers(context.Background(), Deps{
		DB:         database,
		Store:      store,
		Registry:   registry,
		Reconciler: reconciler,
		Hub:        NewHub(),
	})
}

func TestHandleHealthz(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleReadyz(t *testing.T) {
	h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("without token: status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["failed_check"] != "credentials" {
		t.Errorf("failed_check = %q", body["failed_check"])
	}

	if err := dbpkg.UpsertOAuthToken(context.Background(), h.deps.DB, "twitch", "acc", "ref",
		time.Now().Add(time.Hour), "chat:read"); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.HandleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: status = %d", rec.Code)
	}
}

func TestChannelLifecycle(t *testing.T) {
	h := newTestHandlers(t)

	// Add with a URL-form name; stored normalized.
	rec := httptest.NewRecorder()
	h.HandleChannels(rec, httptest.NewRequest(http.MethodPost, "/channels",
		strings.NewReader(`{"channel":"https://twitch.tv/SomeStreamer"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var added map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&added)
	if added["channel"] != "somestreamer" {
		t.Errorf("stored channel = %q, want somestreamer", added["channel"])
	}

	rec = httptest.NewRecorder()
	h.HandleChannels(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var listed struct {
		Channels []string `json:"channels"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&listed)
	if len(listed.Channels) != 1 || listed.Channels[0] != "somestreamer" {
		t.Errorf("channels = %v", listed.Channels)
	}

	rec = httptest.NewRecorder()
	h.HandleChannelByName(rec, httptest.NewRequest(http.MethodDelete, "/channels/somestreamer", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleChannelByName(rec, httptest.NewRequest(http.MethodDelete, "/channels/somestreamer", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", rec.Code)
	}
}

func TestHandleChannelsRejectsEmpty(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HandleChannels(rec, httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(`{"channel":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestHandlers(t)
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tracked  []string         `json:"tracked"`
		Live     map[string]bool  `json:"live"`
		Sessions []map[string]any `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions) != 0 {
		t.Errorf("expected no open sessions, got %v", body.Sessions)
	}
}

func TestHandleChatSendValidation(t *testing.T) {
	registry := chat.NewRegistry(func(ctx context.Context, channel string, onClosed func()) (*chat.Session, error) {
		return nil, errors.New("no sockets in tests")
	})
	h := NewHandlers(context.Background(), Deps{Registry: registry})

	rec := httptest.NewRecorder()
	h.HandleChatSend(rec, httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"message":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: status = %d", rec.Code)
	}

	// No open sessions: broadcast reaches nothing.
	rec = httptest.NewRecorder()
	h.HandleChatSend(rec, httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"message":"hello"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("broadcast: status = %d", rec.Code)
	}
	var body map[string]int
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["sent"] != 0 {
		t.Errorf("sent = %d, want 0", body["sent"])
	}
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	cfg := twitchapi.OAuthConfig("client", "secret", "http://localhost/cb", nil)
	h := NewHandlers(context.Background(), Deps{OAuth: cfg})

	rec := httptest.NewRecorder()
	h.HandleTwitchOAuthCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/twitch/callback", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleTwitchOAuthCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/twitch/callback?code=x&state=forged", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("forged state: status = %d", rec.Code)
	}
}

func TestOAuthStartRequiresConfig(t *testing.T) {
	h := NewHandlers(context.Background(), Deps{})
	rec := httptest.NewRecorder()
	h.HandleTwitchOAuthStart(rec, httptest.NewRequest(http.MethodGet, "/auth/twitch/start", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestOAuthStartRedirects(t *testing.T) {
	cfg := twitchapi.OAuthConfig("client", "secret", "http://localhost/cb", nil)
	h := NewHandlers(context.Background(), Deps{OAuth: cfg})
	rec := httptest.NewRecorder()
	h.HandleTwitchOAuthStart(rec, httptest.NewRequest(http.MethodGet, "/auth/twitch/start", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "client_id=client") || !strings.Contains(loc, "state=") {
		t.Errorf("redirect location = %q", loc)
	}
}
