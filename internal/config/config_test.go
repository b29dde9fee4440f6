package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"reqmgr/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.PollInterval() != 60*time.Second || cfg.MaxInterval() != 300*time.Second {
		t.Fatalf("intervals: %s / %s", cfg.PollInterval(), cfg.MaxInterval())
	}
	if cfg.SessionTimeout() != time.Hour {
		t.Fatalf("session timeout: %s", cfg.SessionTimeout())
	}
}

func TestGeneratedTemplateParses(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if cfg.Database.Path != "users.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reqmgr.yaml")
	data := []byte("database:\n  path: /tmp/other.db\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.FromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
	if cfg.Scheduler.PollInterval != 60 {
		t.Fatalf("poll interval = %d, want default", cfg.Scheduler.PollInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		"database:\n  path: \"\"\n",
		"auth:\n  session_timeout: 0\n",
		"output:\n  default_format: xml\n",
		"scheduler:\n  poll_interval: 120\n  max_interval: 60\n",
	}
	for _, data := range cases {
		if _, err := config.FromYAML([]byte(data)); err == nil {
			t.Fatalf("expected error for %q", data)
		}
	}
}

func TestLoadPrefersEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("output:\n  max_rows: 7\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REQMGR_CONFIG", path)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.MaxRows != 7 {
		t.Fatalf("max rows = %d", cfg.Output.MaxRows)
	}
}
