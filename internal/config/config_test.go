package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  name: test\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Name != "test" {
		t.Errorf("expected server name test, got %q", cfg.Server.Name)
	}
	if cfg.Storage.Type != "redis" {
		t.Errorf("expected default storage redis, got %q", cfg.Storage.Type)
	}
	if cfg.Storage.StateKey != "session-store" {
		t.Errorf("expected default state key session-store, got %q", cfg.Storage.StateKey)
	}
	if cfg.Archive.RetentionDays != 365 {
		t.Errorf("expected retention 365, got %d", cfg.Archive.RetentionDays)
	}
	if cfg.Remote.EventsEnabled {
		t.Error("events should stay disabled without a remote base_url")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KCLINIC_STORAGE_TYPE", "memory")
	t.Setenv("KCLINIC_SERVER_API_PORT", "9000")

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("expected env storage type memory, got %q", cfg.Storage.Type)
	}
	if cfg.Server.APIPort != 9000 {
		t.Errorf("expected env api port 9000, got %d", cfg.Server.APIPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected file logging level debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadRemoteEnablesEvents(t *testing.T) {
	cfg, err := Load(writeConfig(t, "remote:\n  base_url: https://clinic.example.com/api\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Remote.EventsEnabled {
		t.Error("expected events to follow remote base_url")
	}

	cfg, err = Load(writeConfig(t, "remote:\n  base_url: https://clinic.example.com/api\n  events_enabled: false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.EventsEnabled {
		t.Error("expected explicit events_enabled=false to win")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad port", body: "server:\n  api_port: 70000\n", want: "invalid API port"},
		{name: "unknown storage", body: "storage:\n  type: etcd\n", want: "unknown storage type"},
		{name: "bad cleanup", body: "archive:\n  cleanup_time: noon\n", want: "cleanup_time"},
		{name: "bad retention", body: "archive:\n  retention_days: 0\n", want: "retention_days"},
		{name: "bad remote", body: "remote:\n  base_url: not-a-url\n", want: "base_url"},
		{name: "events without remote", body: "remote:\n  events_enabled: true\n", want: "remote events"},
		{name: "bad format", body: "logging:\n  format: xml\n", want: "logging format"},
		{name: "bad persist timeout", body: "tracker:\n  persist_timeout: soon\n", want: "persist_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Tracker.PersistTimeout != "2s" {
		t.Errorf("expected persist timeout 2s, got %q", cfg.Tracker.PersistTimeout)
	}
}
