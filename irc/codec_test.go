package irc

import (
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantKind    EventKind
		wantDisplay string
		wantChannel string
		wantText    string
		wantColor   string
	}{
		{
			name:     "ping",
			raw:      "PING :tmi.twitch.tv\r\n",
			wantKind: EventPing,
		},
		{
			name:     "auth failure notice",
			raw:      ":tmi.twitch.tv NOTICE * :Login authentication failed\r\n",
			wantKind: EventFatalAuth,
		},
		{
			name:     "improperly formatted auth notice",
			raw:      ":tmi.twitch.tv NOTICE * :Improperly formatted auth\r\n",
			wantKind: EventFatalAuth,
		},
		{
			name:        "tagged privmsg prefers display-name tag",
			raw:         "@display-name=Foo;color=#112233 :foo!foo@foo.tmi.twitch.tv PRIVMSG #bar :hi\r\n",
			wantKind:    EventMessage,
			wantDisplay: "Foo",
			wantChannel: "bar",
			wantText:    "hi",
			wantColor:   "#112233",
		},
		{
			name:        "untagged privmsg falls back to nick",
			raw:         ":somebody!somebody@somebody.tmi.twitch.tv PRIVMSG #chan :hello there\r\n",
			wantKind:    EventMessage,
			wantDisplay: "somebody",
			wantChannel: "chan",
			wantText:    "hello there",
			wantColor:   DefaultColor,
		},
		{
			name:        "empty color tag defaults",
			raw:         "@display-name=Foo;color= :foo!foo@foo.tmi.twitch.tv PRIVMSG #bar :hi\r\n",
			wantKind:    EventMessage,
			wantDisplay: "Foo",
			wantChannel: "bar",
			wantText:    "hi",
			wantColor:   DefaultColor,
		},
		{
			name:     "join echo ignored",
			raw:      ":foo!foo@foo.tmi.twitch.tv JOIN #bar\r\n",
			wantKind: EventNone,
		},
		{
			name:     "empty line ignored",
			raw:      "\r\n",
			wantKind: EventNone,
		},
		{
			name:     "garbage ignored",
			raw:      "not an irc line at all",
			wantKind: EventNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseLine(tt.raw)
			if ev.Kind != tt.wantKind {
				t.Fatalf("ParseLine() kind = %v, want %v", ev.Kind, tt.wantKind)
			}
			if tt.wantKind != EventMessage {
				return
			}
			m := ev.Message
			if m == nil {
				t.Fatal("ParseLine() returned EventMessage with nil Message")
			}
			if m.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", m.DisplayName, tt.wantDisplay)
			}
			if m.Channel != tt.wantChannel {
				t.Errorf("Channel = %q, want %q", m.Channel, tt.wantChannel)
			}
			if m.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", m.Text, tt.wantText)
			}
			if m.Color != tt.wantColor {
				t.Errorf("Color = %q, want %q", m.Color, tt.wantColor)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	tags := ParseTags("display-name=Foo;color=#112233;badges=moderator/1,subscriber/12;broken;=bad")
	if tags["display-name"] != "Foo" {
		t.Errorf("display-name = %q, want Foo", tags["display-name"])
	}
	if tags["badges"] != "moderator/1,subscriber/12" {
		t.Errorf("badges = %q", tags["badges"])
	}
	if _, ok := tags["broken"]; ok {
		t.Error("malformed pair without '=' should be dropped")
	}
	if _, ok := tags[""]; ok {
		t.Error("pair with empty key should be dropped")
	}
}

func TestSerializeSendRoundTrip(t *testing.T) {
	out := SerializeSend("bar", "hello")
	if out != "PRIVMSG #bar :hello\r\n" {
		t.Fatalf("SerializeSend() = %q", out)
	}
	// The server echoes our message back with a full prefix; parsing that
	// echo must recover the original channel and text.
	echo := ":me!me@me.tmi.twitch.tv PRIVMSG #bar :hello\r\n"
	ev := ParseLine(echo)
	if ev.Kind != EventMessage {
		t.Fatalf("echo parse kind = %v, want EventMessage", ev.Kind)
	}
	if ev.Message.Channel != "bar" || ev.Message.Text != "hello" {
		t.Errorf("round trip = channel %q text %q", ev.Message.Channel, ev.Message.Text)
	}
}

func TestSerializeAuth(t *testing.T) {
	creds := Credentials{ClientID: "cid", AccessToken: "tok", Nickname: "bot"}
	lines := SerializeAuth(creds, "bar")
	want := []string{
		"CAP REQ :twitch.tv/tags twitch.tv/commands\r\n",
		"PASS oauth:tok\r\n",
		"NICK bot\r\n",
		"JOIN #bar\r\n",
	}
	if len(lines) != len(want) {
		t.Fatalf("SerializeAuth() returned %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
		if !strings.HasSuffix(lines[i], "\r\n") {
			t.Errorf("line %d missing CRLF", i)
		}
	}
}
