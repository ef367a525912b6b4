package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("AGRO_PORT", "9090")
	path := writeConfig(t, `{
		"server": {"port": ${AGRO_PORT:8080}, "log_level": "${AGRO_LOG:info}"},
		"database": {"redis": {"url": "${AGRO_REDIS:redis://localhost:6379}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from env", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q, want default info", cfg.Server.LogLevel)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379" {
		t.Errorf("redis url = %q, want default", cfg.Database.Redis.URL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestClassifierDefaults(t *testing.T) {
	var c ClassifierConfig
	if got := c.CacheTTL(); got != 15*time.Minute {
		t.Errorf("CacheTTL = %v, want 15m default", got)
	}
	if got := c.CallTimeout(); got != 10*time.Second {
		t.Errorf("CallTimeout = %v, want 10s default", got)
	}
	c.CacheTTLSeconds = 60
	c.CallTimeoutMS = 500
	if got := c.CacheTTL(); got != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", got)
	}
	if got := c.CallTimeout(); got != 500*time.Millisecond {
		t.Errorf("CallTimeout = %v, want 500ms", got)
	}
}
