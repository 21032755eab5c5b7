// Command twitchconnect is the main entrypoint for the chat overlay backend.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Opens IRC-over-WebSocket chat sessions for every tracked channel that
//     is live, reconciling against the Helix streams API on a timer.
//   - Runs automation rules over the parsed chat feed.
//   - Exposes an HTTP server with health, status, channel management, the
//     SSE chat feed, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deedzorg/twitchconnect/automation"
	"github.com/deedzorg/twitchconnect/catalog"
	"github.com/deedzorg/twitchconnect/chat"
	"github.com/deedzorg/twitchconnect/config"
	"github.com/deedzorg/twitchconnect/db"
	"github.com/deedzorg/twitchconnect/irc"
	"github.com/deedzorg/twitchconnect/oauth"
	"github.com/deedzorg/twitchconnect/server"
	"github.com/deedzorg/twitchconnect/telemetry"
	"github.com/deedzorg/twitchconnect/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience; production relies
	// on real env).
	_ = godotenv.Load(".env")

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("twitchconnect", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Helix calls use an app token when client credentials are available,
	// falling back to the user token. IRC always needs the user token.
	var helixToken twitchapi.TokenProvider
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		helixToken = &twitchapi.AppTokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	} else {
		helixToken = twitchapi.StaticToken(stripOAuthPrefix(cfg.TwitchOAuthToken))
	}
	helix := &twitchapi.HelixClient{Token: helixToken, ClientID: cfg.TwitchClientID}

	// Validate the user token at boot; a dead token means every session
	// open would fail with a fatal auth NOTICE anyway.
	botLogin := cfg.TwitchBotUsername
	if tok := stripOAuthPrefix(cfg.TwitchOAuthToken); tok != "" {
		vctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if v, err := twitchapi.ValidateToken(vctx, nil, tok); err != nil {
			slog.Warn("twitch user token validation failed", slog.Any("err", err))
		} else {
			slog.Info("twitch user token valid", slog.String("login", v.Login), slog.Int("expires_in", v.ExpiresIn))
			if botLogin == "" {
				botLogin = v.Login
			}
		}
		cancel()
	}

	// Global badge and emote tables are fetched once; per-channel tables are
	// layered on top when a session opens.
	global := fetchGlobalCatalog(ctx, helix)

	hub := server.NewHub()
	store := &db.Store{DB: database}

	engine := automation.New(automation.Config{
		AutoCatch: cfg.AutoCatch,
		BotName:   cfg.GameBotName,
		Username:  botLogin,
		Cooldown:  cfg.CatchCooldown,
		Species:   loadSpecies(cfg.SpeciesFile),
	})

	registry := chat.NewRegistry(func(octx context.Context, channel string, onClosed func()) (*chat.Session, error) {
		token := stripOAuthPrefix(cfg.TwitchOAuthToken)
		// Prefer the stored (possibly refreshed) token over the env one.
		if access, _, _, _, err := db.GetOAuthToken(octx, database, "twitch"); err == nil && access != "" {
			token = access
		}

		combined := global
		if channelCat, err := helix.ChannelCatalog(octx, channel); err != nil {
			slog.Warn("channel catalog fetch failed, using global only", slog.String("channel", channel), slog.Any("err", err))
		} else {
			combined = catalog.Merge(global, channelCat)
		}

		return chat.Open(ctx, chat.SessionConfig{
			Channel:  channel,
			Creds:    irc.Credentials{ClientID: cfg.TwitchClientID, AccessToken: token, Nickname: botLogin},
			Catalog:  combined,
			Renderer: hub,
			Hook: func(s *chat.Session, msg *irc.Message) {
				engine.HandleMessage(s, msg)
			},
			OnAuthFailure: func(channel, reason string) {
				slog.Error("chat credentials rejected, re-authorize via /auth/twitch/start",
					slog.String("channel", channel), slog.String("reason", reason))
			},
			OnTerminate: onClosed,
		})
	})

	reconciler := &chat.Reconciler{
		Streams:  helix,
		Tracked:  store,
		Registry: registry,
		Interval: cfg.PollInterval,
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("chat disabled until credentials are configured", slog.Any("err", err))
	} else {
		go reconciler.Run(ctx)
	}

	// Keep the stored user token fresh so long-running deployments do not
	// drop to a dead token between restarts.
	oauthCfg := twitchapi.OAuthConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, strings.Fields(cfg.TwitchScopes))
	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute,
		func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			tok, err := twitchapi.RefreshUserToken(rctx, oauthCfg, refreshToken)
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return tok.AccessToken, tok.RefreshToken, tok.Expiry, "", nil
		})

	startPprofIfEnabled()

	go func() {
		deps := server.Deps{
			DB:         database,
			Store:      store,
			Registry:   registry,
			Reconciler: reconciler,
			Hub:        hub,
			OAuth:      oauthCfg,
		}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	registry.CloseAll()
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT. Defaults:
// level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

func stripOAuthPrefix(token string) string {
	return strings.TrimPrefix(token, "oauth:")
}

// fetchGlobalCatalog loads the shared badge and emote tables. Failures
// degrade to an empty catalog; chat still renders, just without images.
func fetchGlobalCatalog(ctx context.Context, helix *twitchapi.HelixClient) catalog.Combined {
	fctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var global catalog.Combined
	badges, err := helix.GetGlobalBadges(fctx)
	if err != nil {
		slog.Warn("global badges fetch failed", slog.Any("err", err))
	} else {
		global.Badges = badges
	}
	emotes, err := helix.GetGlobalEmotes(fctx)
	if err != nil {
		slog.Warn("global emotes fetch failed", slog.Any("err", err))
	} else {
		global.Emotes = emotes
	}
	return global
}

func loadSpecies(path string) []string {
	if path == "" {
		return nil
	}
	names, err := automation.LoadSpecies(path)
	if err != nil {
		slog.Warn("species list load failed, priority catches disabled", slog.Any("err", err))
		return nil
	}
	slog.Info("species list loaded", slog.Int("count", len(names)))
	return names
}

// startPprofIfEnabled exposes /debug/pprof when ENABLE_PPROF=1.
func startPprofIfEnabled() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
