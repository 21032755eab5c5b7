// Package twitchapi contains minimal helpers for the Twitch Helix APIs the
// chat client needs: user id resolution, batched live-stream status, and the
// badge/emote tables consumed by the catalog package.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deedzorg/twitchconnect/catalog"
)

// HelixClient issues authenticated Helix requests. Token supplies the bearer
// token per call; either a static user token or an app token source.
type HelixClient struct {
	Token      TokenProvider
	ClientID   string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) get(ctx context.Context, rawURL string, query map[string][]string, out any) error {
	tok, err := hc.Token.Bearer(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix request failed: %s: %s", resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its broadcaster id.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "https://api.twitch.tv/helix/users", map[string][]string{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Stream is one live stream as reported by Get Streams.
type Stream struct {
	UserLogin string
	Title     string
	StartedAt time.Time
}

// GetStreams fetches live status for a batch of logins in one call. Channels
// absent from the result are offline.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	var body struct {
		Data []struct {
			UserLogin string    `json:"user_login"`
			Title     string    `json:"title"`
			StartedAt time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "https://api.twitch.tv/helix/streams", map[string][]string{"user_login": logins}, &body); err != nil {
		return nil, err
	}
	out := make([]Stream, 0, len(body.Data))
	for _, s := range body.Data {
		out = append(out, Stream{UserLogin: s.UserLogin, Title: s.Title, StartedAt: s.StartedAt})
	}
	return out, nil
}

// badgeResponse matches both the global and per-channel chat badge payloads.
type badgeResponse struct {
	Data []struct {
		SetID    string `json:"set_id"`
		Versions []struct {
			ID         string `json:"id"`
			ImageURL1x string `json:"image_url_1x"`
		} `json:"versions"`
	} `json:"data"`
}

func (r badgeResponse) toSet() catalog.BadgeSet {
	set := make(catalog.BadgeSet, len(r.Data))
	for _, s := range r.Data {
		versions := make(map[string]string, len(s.Versions))
		for _, v := range s.Versions {
			versions[v.ID] = v.ImageURL1x
		}
		set[s.SetID] = versions
	}
	return set
}

// GetGlobalBadges fetches the shared badge table. Fetched once at startup.
func (hc *HelixClient) GetGlobalBadges(ctx context.Context) (catalog.BadgeSet, error) {
	var body badgeResponse
	if err := hc.get(ctx, "https://api.twitch.tv/helix/chat/badges/global", nil, &body); err != nil {
		return nil, err
	}
	return body.toSet(), nil
}

// GetChannelBadges fetches badges specific to one broadcaster.
func (hc *HelixClient) GetChannelBadges(ctx context.Context, broadcasterID string) (catalog.BadgeSet, error) {
	var body badgeResponse
	if err := hc.get(ctx, "https://api.twitch.tv/helix/chat/badges", map[string][]string{"broadcaster_id": {broadcasterID}}, &body); err != nil {
		return nil, err
	}
	return body.toSet(), nil
}

// emoteResponse matches both the global and per-channel chat emote payloads.
type emoteResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Images struct {
			URL1x string `json:"url_1x"`
		} `json:"images"`
	} `json:"data"`
}

func (r emoteResponse) toSet() catalog.EmoteSet {
	set := make(catalog.EmoteSet, len(r.Data))
	for _, e := range r.Data {
		set[e.Name] = e.Images.URL1x
	}
	return set
}

// GetGlobalEmotes fetches the shared emote table.
func (hc *HelixClient) GetGlobalEmotes(ctx context.Context) (catalog.EmoteSet, error) {
	var body emoteResponse
	if err := hc.get(ctx, "https://api.twitch.tv/helix/chat/emotes/global", nil, &body); err != nil {
		return nil, err
	}
	return body.toSet(), nil
}

// GetChannelEmotes fetches emotes specific to one broadcaster.
func (hc *HelixClient) GetChannelEmotes(ctx context.Context, broadcasterID string) (catalog.EmoteSet, error) {
	var body emoteResponse
	if err := hc.get(ctx, "https://api.twitch.tv/helix/chat/emotes", map[string][]string{"broadcaster_id": {broadcasterID}}, &body); err != nil {
		return nil, err
	}
	return body.toSet(), nil
}

// ChannelCatalog resolves the broadcaster id and fetches its channel-specific
// badge and emote tables. Table fetch failures degrade to empty tables so a
// chat can still open without images; an unknown channel is an error.
func (hc *HelixClient) ChannelCatalog(ctx context.Context, login string) (catalog.Combined, error) {
	id, err := hc.GetUserID(ctx, login)
	if err != nil {
		return catalog.Combined{}, err
	}
	out := catalog.Combined{}
	if badges, err := hc.GetChannelBadges(ctx, id); err != nil {
		slog.Warn("channel badges fetch failed", slog.String("channel", login), slog.Any("err", err))
	} else {
		out.Badges = badges
	}
	if emotes, err := hc.GetChannelEmotes(ctx, id); err != nil {
		slog.Warn("channel emotes fetch failed", slog.String("channel", login), slog.Any("err", err))
	} else {
		out.Emotes = emotes
	}
	return out, nil
}
