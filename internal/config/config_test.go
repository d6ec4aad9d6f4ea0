package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("CONFIG_ENV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Port)
	}
	if cfg.Mode != "release" {
		t.Errorf("default mode = %q, want release", cfg.Mode)
	}
	if cfg.TURN.TTL != time.Hour {
		t.Errorf("default turn ttl = %s, want 1h", cfg.TURN.TTL)
	}
	if cfg.Call.RingTimeout != 45*time.Second {
		t.Errorf("default ring timeout = %s, want 45s", cfg.Call.RingTimeout)
	}
	if cfg.Call.DialTimeout != 30*time.Second {
		t.Errorf("default dial timeout = %s, want 30s", cfg.Call.DialTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte(`
mode: debug
port: 9090
turn:
  realm: haven.test
  host: turn.haven.test
  secret: s3cret
  ttl: 600s
call:
  ring_timeout: 10s
`)
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.TURN.Realm != "haven.test" || cfg.TURN.TTL != 10*time.Minute {
		t.Errorf("turn config = %+v", cfg.TURN)
	}
	if cfg.Call.RingTimeout != 10*time.Second {
		t.Errorf("ring timeout = %s, want 10s", cfg.Call.RingTimeout)
	}
	// Unset keys still fall back to defaults.
	if cfg.Call.DialTimeout != 30*time.Second {
		t.Errorf("dial timeout = %s, want default 30s", cfg.Call.DialTimeout)
	}
}
