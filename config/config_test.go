package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_HOST", "")
	t.Setenv("PROFILE_UUID", "")
	t.Setenv("DB_DSN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIHost != DefaultAPIHost {
		t.Errorf("APIHost = %q, want %q", cfg.APIHost, DefaultAPIHost)
	}
	if cfg.ChatTimeout != 20*time.Second {
		t.Errorf("ChatTimeout = %v, want 20s", cfg.ChatTimeout)
	}
	if cfg.SyncTimeout != 60*time.Second {
		t.Errorf("SyncTimeout = %v, want 60s", cfg.SyncTimeout)
	}
	if cfg.SyncMinGap != 20*time.Hour {
		t.Errorf("SyncMinGap = %v, want 20h", cfg.SyncMinGap)
	}
	if cfg.SyncSchedule != "@daily" {
		t.Errorf("SyncSchedule = %q, want @daily", cfg.SyncSchedule)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadTrimsHostSlash(t *testing.T) {
	t.Setenv("API_HOST", "https://bot.example.com/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIHost != "https://bot.example.com" {
		t.Errorf("APIHost = %q, want trailing slash trimmed", cfg.APIHost)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("CHAT_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid CHAT_TIMEOUT")
	}
}

func TestValidateRelayReady(t *testing.T) {
	t.Setenv("PROFILE_UUID", "11111111-2222-3333-4444-555555555555")
	cfg, _ := Load()
	if err := cfg.ValidateRelayReady(); err != nil {
		t.Errorf("expected valid relay config, got %v", err)
	}
	t.Setenv("PROFILE_UUID", "")
	cfg, _ = Load()
	if err := cfg.ValidateRelayReady(); err == nil {
		t.Errorf("expected error when PROFILE_UUID missing")
	}
}
