package config_test

import (
	"testing"
	"time"

	"github.com/fardannozami/healthsync/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HEALTHSYNC_SQLITE_PATH", "")
	t.Setenv("HEALTHSYNC_POLL_INTERVAL", "")

	cfg := config.Load()
	if cfg.SQLitePath != "./data/remote.db" {
		t.Errorf("SQLitePath: expected default, got '%s'", cfg.SQLitePath)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval: expected 2s, got %v", cfg.PollInterval)
	}
	if cfg.WSAddr != ":8089" {
		t.Errorf("WSAddr: expected ':8089', got '%s'", cfg.WSAddr)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HEALTHSYNC_IDENTITY", "alice")
	t.Setenv("HEALTHSYNC_POLL_INTERVAL", "500ms")
	t.Setenv("HEALTHSYNC_STATE_DIR", "/tmp/hs")

	cfg := config.Load()
	if cfg.Identity != "alice" {
		t.Errorf("Identity: expected 'alice', got '%s'", cfg.Identity)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval: expected 500ms, got %v", cfg.PollInterval)
	}
	if cfg.StateDir != "/tmp/hs" {
		t.Errorf("StateDir: expected '/tmp/hs', got '%s'", cfg.StateDir)
	}
}

func TestLoad_DurationInSeconds(t *testing.T) {
	t.Setenv("HEALTHSYNC_POLL_INTERVAL", "3")

	if got := config.Load().PollInterval; got != 3*time.Second {
		t.Errorf("PollInterval: expected 3s, got %v", got)
	}
	t.Setenv("HEALTHSYNC_POLL_INTERVAL", "soon")
	if got := config.Load().PollInterval; got != 2*time.Second {
		t.Errorf("PollInterval: expected fallback 2s, got %v", got)
	}
}
