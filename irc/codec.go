// Package irc implements the subset of the Twitch IRC wire protocol the chat
// client actually speaks: tag-block parsing, PRIVMSG extraction, PING/PONG
// keepalive, and fatal auth NOTICE detection. It is a stateless codec; the
// connection lifecycle lives in the chat package.
package irc

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultColor is used when a message carries no (or an empty) color tag.
const DefaultColor = "#ffffff"

// PongLine is the keepalive reply expected by the Twitch IRC bridge.
const PongLine = "PONG :tmi.twitch.tv\r\n"

// Capabilities requested during the auth handshake.
const Capabilities = "twitch.tv/tags twitch.tv/commands"

// Credentials identifies the connecting user. Immutable per session.
type Credentials struct {
	ClientID    string
	AccessToken string
	Nickname    string
}

// Message is a parsed PRIVMSG line.
type Message struct {
	Tags        map[string]string
	DisplayName string
	Channel     string
	Text        string
	Color       string
}

// EventKind discriminates the results of ParseLine.
type EventKind int

const (
	// EventNone marks lines the client ignores.
	EventNone EventKind = iota
	// EventPing requires an immediate PONG reply before any other processing.
	EventPing
	// EventFatalAuth means the server rejected our credentials; the
	// connection must be terminated and not retried.
	EventFatalAuth
	// EventMessage carries a parsed PRIVMSG.
	EventMessage
)

// Event is the tagged result of parsing one inbound line.
type Event struct {
	Kind    EventKind
	Message *Message // set when Kind == EventMessage
	Reason  string   // set when Kind == EventFatalAuth
}

var privmsgRe = regexp.MustCompile(`:(\w+)!\w+@\w+\.tmi\.twitch\.tv PRIVMSG #(\w+) :(.*)`)

// ParseLine classifies one inbound line. Recognition order matters: PING
// first, fatal auth NOTICEs second, then tag-prefixed PRIVMSG extraction.
// Anything else (JOIN echoes, ROOMSTATE, unknown commands, malformed lines)
// yields EventNone and is dropped silently.
func ParseLine(raw string) Event {
	line := strings.TrimRight(raw, "\r\n")
	if line == "" {
		return Event{}
	}

	if strings.HasPrefix(line, "PING") {
		return Event{Kind: EventPing}
	}

	if strings.Contains(line, "NOTICE * :Login authentication failed") {
		return Event{Kind: EventFatalAuth, Reason: "Login authentication failed"}
	}
	if strings.Contains(line, "NOTICE") && strings.Contains(line, "Improperly formatted auth") {
		return Event{Kind: EventFatalAuth, Reason: "Improperly formatted auth"}
	}

	tags := map[string]string{}
	rest := line
	if strings.HasPrefix(rest, "@") {
		parts := strings.SplitN(rest, " ", 2)
		tags = ParseTags(strings.TrimPrefix(parts[0], "@"))
		if len(parts) == 2 {
			rest = parts[1]
		} else {
			rest = ""
		}
	}

	m := privmsgRe.FindStringSubmatch(rest)
	if m == nil {
		return Event{}
	}

	display := tags["display-name"]
	if display == "" {
		display = m[1]
	}
	color := strings.TrimSpace(tags["color"])
	if color == "" {
		color = DefaultColor
	}
	return Event{Kind: EventMessage, Message: &Message{
		Tags:        tags,
		DisplayName: display,
		Channel:     m[2],
		Text:        strings.TrimSpace(m[3]),
		Color:       color,
	}}
}

// ParseTags parses a semicolon-delimited key=value tag block (without the
// leading '@'). Pairs missing an '=' are dropped.
func ParseTags(block string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(block, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		tags[kv[0]] = kv[1]
	}
	return tags
}

// SerializeSend formats an outbound chat message for the given channel.
func SerializeSend(channel, text string) string {
	return fmt.Sprintf("PRIVMSG #%s :%s\r\n", channel, text)
}

// SerializeAuth returns the ordered handshake lines sent after the socket
// opens: capability request, PASS, NICK, JOIN.
func SerializeAuth(creds Credentials, channel string) []string {
	return []string{
		"CAP REQ :" + Capabilities + "\r\n",
		"PASS oauth:" + creds.AccessToken + "\r\n",
		"NICK " + creds.Nickname + "\r\n",
		"JOIN #" + channel + "\r\n",
	}
}
