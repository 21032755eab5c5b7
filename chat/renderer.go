package chat

import (
	"regexp"
	"strings"

	"github.com/deedzorg/twitchconnect/catalog"
)

// RenderedMessage is a parsed chat line with its badge and emote references
// already resolved against the session's combined catalog.
type RenderedMessage struct {
	Channel     string             `json:"channel"`
	DisplayName string             `json:"display_name"`
	Text        string             `json:"text"`
	Color       string             `json:"color"`
	Badges      []catalog.Badge    `json:"badges,omitempty"`
	Fragments   []catalog.Fragment `json:"fragments,omitempty"`
}

// Renderer is the display sink sessions write to. The server package
// implements it with an SSE broadcaster; tests use recording fakes.
type Renderer interface {
	OnMessage(msg RenderedMessage)
	OnSessionOpened(channel string)
	OnSessionClosed(channel string)
}

// NopRenderer discards everything. Useful when running headless.
type NopRenderer struct{}

func (NopRenderer) OnMessage(RenderedMessage) {}
func (NopRenderer) OnSessionOpened(string)    {}
func (NopRenderer) OnSessionClosed(string)    {}

var channelURLPrefix = regexp.MustCompile(`.*twitch\.tv/`)

// NormalizeChannel lowercases a channel name and strips any URL prefix, so
// "https://twitch.tv/SomeStreamer" and "SomeStreamer" key the same session.
func NormalizeChannel(raw string) string {
	c := strings.TrimSpace(raw)
	c = channelURLPrefix.ReplaceAllString(c, "")
	return strings.ToLower(c)
}
