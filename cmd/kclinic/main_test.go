package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/session"
	"github.com/goodtune/kclinic/internal/storage/memory"
	"github.com/rs/zerolog"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  api_port: 8081
  dns_port: 53
storage:
  type: sqlite
  sqlite:
    path: /tmp/kclinic.db
  redis:
    hots: localhost
remote:
  base_url: https://clinic.example
api:
  allowed_origins:
    - https://clinic.example
extra: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys failed: %v", err)
	}

	want := []string{"extra", "server.dns_port", "storage.redis.hots"}
	if !reflect.DeepEqual(unknown, want) {
		t.Fatalf("expected %v, got %v", want, unknown)
	}
}

func TestValidKeysCoverConfig(t *testing.T) {
	keys := validKeys(reflect.TypeOf(config.Config{}), "")

	for _, key := range []string{
		"server.api_port",
		"storage.redis.write_timeout",
		"storage.mongo.uri",
		"storage.bolt.path",
		"remote.events_enabled",
		"api.allowed_origins",
		"archive.cleanup_time",
		"logging.format",
	} {
		if !keys[key] {
			t.Errorf("expected %s to be a valid key", key)
		}
	}
	if keys["storage.redis"] {
		t.Error("section names are not leaf keys")
	}
}

func TestOpenStorage(t *testing.T) {
	store, err := openStorage(config.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory storage: %v", err)
	}
	_ = store.Close()

	store, err = openStorage(config.StorageConfig{Type: "sqlite", SQLite: config.FileConfig{Path: filepath.Join(t.TempDir(), "k.db")}})
	if err != nil {
		t.Fatalf("sqlite storage: %v", err)
	}
	_ = store.Close()

	if _, err := openStorage(config.StorageConfig{Type: "cassandra"}); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0:00"},
		{65, "1:05"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-5, "-0:05"},
	}

	for _, tt := range tests {
		if got := formatElapsed(tt.seconds); got != tt.want {
			t.Errorf("formatElapsed(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestPrintSessions(t *testing.T) {
	color.NoColor = true

	tracker := session.NewTracker(memory.New().State(), session.Config{}, zerolog.Nop())
	clock := &session.TestClock{}
	clock.SetMillis(1_700_000_000_000)
	tracker.SetClock(clock)

	var empty bytes.Buffer
	printSessions(&empty, tracker)
	if !strings.Contains(empty.String(), "No active sessions") {
		t.Fatalf("unexpected empty output: %q", empty.String())
	}

	tracker.StartSession("p1", "Dr. Amal", session.SessionData{
		PatientID: "pt1", PatientName: "Sara B.", TreatmentZoneID: "z1", ZoneName: "Jambes",
		SessionNumber: 3, TotalSessions: 8,
	})
	tracker.SetPendingZones("p2", []session.PendingZone{{PatientName: "Lina K.", ZoneName: "Aisselles", SessionNumber: 1, TotalSessions: 6}})
	clock.Advance(125 * time.Second)

	var out bytes.Buffer
	printSessions(&out, tracker)

	for _, want := range []string{"Dr. Amal (p1)", "running", "2:05", "Sara B. - Jambes (session 3/8)", "p2", "no active session", "next 1: Lina K. - Aisselles"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q:\n%s", want, out.String())
		}
	}
}

func TestRedactURI(t *testing.T) {
	if got := redactURI("mongodb://user:pass@db:27017"); got != "mongodb://***REDACTED***@db:27017" {
		t.Fatalf("unexpected redaction: %s", got)
	}
	if got := redactURI("mongodb://localhost:27017"); got != "mongodb://localhost:27017" {
		t.Fatalf("unexpected change: %s", got)
	}
}
