package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer is a test server standing in for the Twitch Helix API.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server. Paths without a
// registered handler return 404.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockTwitchServer) respond(path string, body any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// MockUserResponse registers a /helix/users handler.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.respond("/helix/users", map[string]any{
		"data": []map[string]string{{"id": userID, "login": login}},
	})
}

// MockStreamsResponse registers a /helix/streams handler.
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]any) {
	m.respond("/helix/streams", map[string]any{"data": streams})
}

// MockGlobalBadgesResponse registers a /helix/chat/badges/global handler.
func (m *MockTwitchServer) MockGlobalBadgesResponse(sets []map[string]any) {
	m.respond("/helix/chat/badges/global", map[string]any{"data": sets})
}

// MockGlobalEmotesResponse registers a /helix/chat/emotes/global handler.
func (m *MockTwitchServer) MockGlobalEmotesResponse(emotes []map[string]any) {
	m.respond("/helix/chat/emotes/global", map[string]any{"data": emotes})
}

// MockOAuthTokenResponse registers an /oauth2/token handler.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.respond("/oauth2/token", map[string]any{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "bearer",
	})
}
