package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// OAuthConfig builds the oauth2 config for the user-token code flow. The user
// token is what the IRC sessions authenticate with, so the default scopes
// cover chat read/write.
func OAuthConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = []string{"chat:read", "chat:edit", "user:read:email"}
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint:     twitch.Endpoint,
	}
}

// ExchangeAuthCode exchanges an authorization code for a user token.
func ExchangeAuthCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("empty authorization code")
	}
	return cfg.Exchange(ctx, code)
}

// RefreshUserToken exchanges a refresh token for a fresh user token.
func RefreshUserToken(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("empty refresh token")
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// ComputeExpiry returns absolute expiry time from seconds, defaulting to +60m
// when unknown.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

// Validation is the id.twitch.tv view of an access token.
type Validation struct {
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// validateURL is a var so tests can point it at a fake server.
var validateURL = "https://id.twitch.tv/oauth2/validate"

// ValidateToken checks a user token against id.twitch.tv and reports the
// login it belongs to. A 401 means the token is dead and the user must
// re-authorize; the session layer treats that as a fatal auth error.
func ValidateToken(ctx context.Context, hc *http.Client, accessToken string) (*Validation, error) {
	if accessToken == "" {
		return nil, errors.New("empty access token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch token validate failed: %s: %s", resp.Status, string(b))
	}
	var v Validation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
