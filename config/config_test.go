package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTO_CATCH", "")
	t.Setenv("CATCH_COOLDOWN", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TWITCH_SCOPES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CatchCooldown != 5*time.Second {
		t.Errorf("CatchCooldown = %v, want 5s", cfg.CatchCooldown)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.TwitchScopes != "chat:read chat:edit" {
		t.Errorf("TwitchScopes = %q", cfg.TwitchScopes)
	}
	if cfg.AutoCatch {
		t.Error("AutoCatch should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTO_CATCH", "true")
	t.Setenv("CATCH_COOLDOWN", "10s")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("GAME_BOT_NAME", "SomeOtherBot")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.AutoCatch {
		t.Error("AutoCatch should be true")
	}
	if cfg.CatchCooldown != 10*time.Second {
		t.Errorf("CatchCooldown = %v, want 10s", cfg.CatchCooldown)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.GameBotName != "SomeOtherBot" {
		t.Errorf("GameBotName = %q", cfg.GameBotName)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("AUTO_CATCH", "not-a-bool")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid AUTO_CATCH")
	}

	t.Setenv("AUTO_CATCH", "")
	t.Setenv("CATCH_COOLDOWN", "-5s")
	if _, err := Load(); err == nil {
		t.Error("expected error for negative CATCH_COOLDOWN")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	t.Setenv("TWITCH_CLIENT_ID", "client")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}

	t.Setenv("TWITCH_OAUTH_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
