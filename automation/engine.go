// Package automation runs chat-triggered rules against parsed messages and
// replies through the owning session.
package automation

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/deedzorg/twitchconnect/irc"
	"github.com/deedzorg/twitchconnect/telemetry"
)

// Sender is the slice of a chat session the engine needs to reply.
// *chat.Session satisfies it.
type Sender interface {
	Send(text string) bool
	Channel() string
	Done() <-chan struct{}
}

// DefaultCooldown is the shared minimum gap between cooldown-gated actions.
const DefaultCooldown = 5 * time.Second

// DefaultBotName is the game bot whose announcements trigger the catch rules.
const DefaultBotName = "PokemonCommunityGame"

// catchDelay separates the ball purchase from the catch that uses it, so the
// purchase is processed first.
const catchDelay = 500 * time.Millisecond

var wildRe = regexp.MustCompile(`(?i)A wild (.+) appears`)

// Config carries the engine's tunables. Zero values fall back to defaults;
// an empty Species set simply means no species gets the priority ball.
type Config struct {
	AutoCatch bool
	BotName   string
	Username  string // our own login, for messages addressed to us
	Cooldown  time.Duration
	Species   []string // priority species, matched case-insensitively
}

// Engine applies a fixed-order rule list to every parsed message. The
// cooldown clock is global: one timestamp shared by all channels and all
// cooldown-gated rules.
type Engine struct {
	cfg     Config
	species map[string]struct{}

	mu         sync.Mutex
	lastAction time.Time

	// Injectable for tests.
	now      func() time.Time
	schedule func(d time.Duration, fn func())
}

// New builds an engine from cfg, applying defaults.
func New(cfg Config) *Engine {
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	sp := make(map[string]struct{}, len(cfg.Species))
	for _, name := range cfg.Species {
		sp[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return &Engine{
		cfg:     cfg,
		species: sp,
		now:     time.Now,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// HandleMessage runs every rule against one message. Rules are independent;
// a match on one never short-circuits the others.
func (e *Engine) HandleMessage(s Sender, msg *irc.Message) {
	if s == nil || msg == nil {
		return
	}
	e.honk(s, msg)
	e.autoCatch(s, msg)
	e.ballRecovery(s, msg)
}

// honk answers the exact "!honk" command. No cooldown.
func (e *Engine) honk(s Sender, msg *irc.Message) {
	if msg.Text != "!honk" {
		return
	}
	slog.Info("responding with honk", slog.String("channel", s.Channel()))
	if s.Send("honk") {
		telemetry.AutomationActions.WithLabelValues("honk").Inc()
	}
}

// autoCatch reacts to the game bot's wild-encounter announcement. Priority
// species get an ultra ball bought and thrown; everything else gets a plain
// catch.
func (e *Engine) autoCatch(s Sender, msg *irc.Message) {
	if !e.cfg.AutoCatch || msg.DisplayName != e.cfg.BotName {
		return
	}
	m := wildRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return
	}
	prev, ok := e.tryAction()
	if !ok {
		return
	}
	species := strings.ToLower(strings.TrimSpace(m[1]))
	if _, priority := e.species[species]; priority {
		slog.Info("priority catch", slog.String("channel", s.Channel()), slog.String("species", species))
		if !s.Send("!pokeshop ultraball 1") {
			e.releaseAction(prev)
			return
		}
		e.sendLater(s, "!pokecatch ultraball")
	} else {
		slog.Info("catch attempt", slog.String("channel", s.Channel()), slog.String("species", species))
		if !s.Send("!pokecatch") {
			e.releaseAction(prev)
			return
		}
	}
	telemetry.AutomationActions.WithLabelValues("auto_catch").Inc()
}

// ballRecovery re-buys a basic ball and retries the catch once when the game
// bot tells us we are out.
func (e *Engine) ballRecovery(s Sender, msg *irc.Message) {
	if !e.cfg.AutoCatch || msg.DisplayName != e.cfg.BotName || e.cfg.Username == "" {
		return
	}
	text := strings.ToLower(msg.Text)
	if !strings.Contains(text, strings.ToLower(e.cfg.Username)) {
		return
	}
	if !strings.Contains(text, "you don't own that ball") &&
		!strings.Contains(text, "you don't have any poké balls") {
		return
	}
	prev, ok := e.tryAction()
	if !ok {
		return
	}
	slog.Info("restocking balls", slog.String("channel", s.Channel()))
	if !s.Send("!pokeshop pokeball 1") {
		e.releaseAction(prev)
		return
	}
	e.sendLater(s, "!pokecatch")
	telemetry.AutomationActions.WithLabelValues("ball_recovery").Inc()
}

// tryAction consumes the global cooldown, returning the previous stamp so a
// failed send can hand the window back via releaseAction. Reports false when
// the cooldown has not elapsed yet.
func (e *Engine) tryAction() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if now.Sub(e.lastAction) <= e.cfg.Cooldown {
		return time.Time{}, false
	}
	prev := e.lastAction
	e.lastAction = now
	return prev, true
}

// releaseAction restores the cooldown stamp after a send that never made it
// onto the wire, so the next trigger is not suppressed by a no-op.
func (e *Engine) releaseAction(prev time.Time) {
	e.mu.Lock()
	e.lastAction = prev
	e.mu.Unlock()
}

// sendLater schedules a follow-up send. The session's Done channel is the
// liveness check: a continuation whose session terminated is dropped.
func (e *Engine) sendLater(s Sender, text string) {
	e.schedule(catchDelay, func() {
		select {
		case <-s.Done():
			return
		default:
		}
		s.Send(text)
	})
}
