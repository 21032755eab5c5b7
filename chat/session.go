package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deedzorg/twitchconnect/catalog"
	"github.com/deedzorg/twitchconnect/irc"
	"github.com/deedzorg/twitchconnect/telemetry"
)

// DefaultEndpoint is the Twitch IRC WebSocket bridge.
const DefaultEndpoint = "wss://irc-ws.chat.twitch.tv:443"

// State is a session's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// MessageHook runs for every parsed message before it reaches the Renderer,
// so automation replies show up in the same feed as the triggering message.
type MessageHook func(s *Session, msg *irc.Message)

// SessionConfig carries everything needed to open one channel session.
type SessionConfig struct {
	Channel  string
	Creds    irc.Credentials
	Catalog  catalog.Combined
	Renderer Renderer
	Hook     MessageHook
	Endpoint string            // defaults to DefaultEndpoint
	Dialer   *websocket.Dialer // defaults to websocket.DefaultDialer

	// OnAuthFailure is called once when the server rejects our credentials.
	OnAuthFailure func(channel, reason string)

	// OnTerminate fires once when the session ends for any reason. The
	// registry's opener uses it for deregistration.
	OnTerminate func()
}

// Session is one live socket connection bound to one channel.
type Session struct {
	channel  string
	creds    irc.Credentials
	catalog  catalog.Combined
	renderer Renderer
	hook     MessageHook

	onAuthFailure func(channel, reason string)
	onTerminate   func()

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	lastActivity time.Time

	closeOnce sync.Once
}

// Open dials the chat endpoint, performs the auth handshake, and starts the
// read loop. The returned session is Authenticating; it becomes Joined
// optimistically on the first inbound traffic that is not a fatal auth
// NOTICE.
func Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	channel := NormalizeChannel(cfg.Channel)
	if channel == "" {
		return nil, errors.New("empty channel")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NopRenderer{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		channel:       channel,
		creds:         cfg.Creds,
		catalog:       cfg.Catalog,
		renderer:      cfg.Renderer,
		hook:          cfg.Hook,
		onAuthFailure: cfg.OnAuthFailure,
		onTerminate:   cfg.OnTerminate,
		ctx:           sctx,
		cancel:        cancel,
		state:         StateConnecting,
		lastActivity:  time.Now(),
	}

	conn, resp, err := dialer.DialContext(sctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		cancel()
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.state = StateAuthenticating
	s.mu.Unlock()

	for _, line := range irc.SerializeAuth(cfg.Creds, channel) {
		if err := s.writeRaw(line); err != nil {
			cancel()
			_ = conn.Close()
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return nil, fmt.Errorf("auth handshake for #%s: %w", channel, err)
		}
	}

	telemetry.SessionsOpened.Inc()
	telemetry.SessionsOpen.Inc()
	slog.Info("chat session opened", slog.String("channel", channel))
	s.renderer.OnSessionOpened(channel)

	go s.readLoop()
	return s, nil
}

// Channel returns the normalized channel name this session is bound to.
func (s *Session) Channel() string { return s.channel }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Joined reports whether the session is ready to transmit.
func (s *Session) Joined() bool { return s.State() == StateJoined }

// LastActivity returns the time of the most recent inbound message.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Done is closed when the session terminates; delayed automation
// continuations use it as their liveness check.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Send transmits a chat message. It is a guarded no-op unless the session is
// Joined and the socket is writable: the message is dropped, never queued.
func (s *Session) Send(text string) bool {
	s.mu.Lock()
	if s.state != StateJoined || s.conn == nil {
		s.mu.Unlock()
		telemetry.SendsDropped.Inc()
		return false
	}
	err := s.conn.WriteMessage(websocket.TextMessage, []byte(irc.SerializeSend(s.channel, text)))
	s.mu.Unlock()
	if err != nil {
		telemetry.SendsDropped.Inc()
		slog.Warn("chat send failed", slog.String("channel", s.channel), slog.Any("err", err))
		return false
	}
	telemetry.MessagesSent.Inc()
	return true
}

// writeRaw transmits a protocol line regardless of Joined state (handshake
// lines, PONG replies).
func (s *Session) writeRaw(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("connection closed")
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close tears the session down. Idempotent; the socket is closed before
// Close returns and pending delayed continuations are cancelled.
func (s *Session) Close() { s.terminate(StateClosed, "") }

func (s *Session) fail(reason string) { s.terminate(StateFailed, reason) }

func (s *Session) terminate(final State, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		s.cancel()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}

		s.mu.Lock()
		s.state = final
		s.mu.Unlock()

		telemetry.SessionsOpen.Dec()
		telemetry.SessionsClosed.Inc()
		slog.Info("chat session closed", slog.String("channel", s.channel), slog.String("state", final.String()))

		if final == StateFailed && s.onAuthFailure != nil {
			s.onAuthFailure(s.channel, reason)
		}
		s.renderer.OnSessionClosed(s.channel)
		if s.onTerminate != nil {
			s.onTerminate()
		}
	})
}

func (s *Session) readLoop() {
	defer s.Close()
	// Read from a local copy of the conn: terminate nils out s.conn under
	// the lock, and closing the socket is what unblocks ReadMessage here.
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && s.State() != StateClosing {
				slog.Warn("chat read error", slog.String("channel", s.channel), slog.Any("err", err))
			}
			return
		}
		// One WebSocket frame may carry several CRLF-terminated lines.
		for _, line := range strings.Split(string(data), "\r\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !s.handleLine(line) {
				return
			}
		}
	}
}

// handleLine dispatches one inbound line. Returns false when the session
// must terminate (fatal auth error).
func (s *Session) handleLine(line string) bool {
	ev := irc.ParseLine(line)
	switch ev.Kind {
	case irc.EventPing:
		// Keepalive reply goes out before anything else is processed.
		if err := s.writeRaw(irc.PongLine); err != nil {
			slog.Warn("pong write failed", slog.String("channel", s.channel), slog.Any("err", err))
		}
		telemetry.PongsSent.Inc()
	case irc.EventFatalAuth:
		telemetry.AuthFailures.Inc()
		slog.Error("chat authentication failed", slog.String("channel", s.channel), slog.String("reason", ev.Reason))
		s.fail(ev.Reason)
		return false
	case irc.EventMessage:
		s.promoteJoined()
		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()
		telemetry.MessagesParsed.Inc()
		// Automation runs first so its replies land in the feed right
		// after the message that triggered them.
		if s.hook != nil {
			s.hook(s, ev.Message)
		}
		s.renderer.OnMessage(s.render(ev.Message))
	default:
		// Any non-fatal server traffic while authenticating confirms the
		// handshake was accepted.
		s.promoteJoined()
	}
	return true
}

func (s *Session) promoteJoined() {
	s.mu.Lock()
	promoted := s.state == StateAuthenticating
	if promoted {
		s.state = StateJoined
	}
	s.mu.Unlock()
	if promoted {
		slog.Debug("chat session joined", slog.String("channel", s.channel))
	}
}

func (s *Session) render(m *irc.Message) RenderedMessage {
	return RenderedMessage{
		Channel:     m.Channel,
		DisplayName: m.DisplayName,
		Text:        m.Text,
		Color:       m.Color,
		Badges:      s.catalog.ResolveBadgeTag(m.Tags["badges"]),
		Fragments:   s.catalog.FragmentText(m.Text),
	}
}
