package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: DEBUG
  console: true
storage:
  driver: sqlite
  path: /tmp/leadnotify.db
  busy_timeout: 5s
device:
  data_dir: ./data
  user_id: alice
bus:
  window: 25
  ttl: 12h
  poll_interval: 1s
notifications:
  enabled: true
  app_name: leadnotify
  rate_per_sec: 5
janitor:
  enabled: true
  schedule: "@hourly"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.Console {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
	if cfg.Device.UserID != "alice" {
		t.Fatalf("device: %+v", cfg.Device)
	}
	if cfg.Bus.Window != 25 || cfg.Bus.TTL != "12h" || cfg.Bus.PollInterval != "1s" {
		t.Fatalf("bus: %+v", cfg.Bus)
	}
	if !cfg.Notifications.Enabled || cfg.Notifications.RatePerSec != 5 {
		t.Fatalf("notifications: %+v", cfg.Notifications)
	}
	if !cfg.Janitor.Enabled || cfg.Janitor.Schedule != "@hourly" {
		t.Fatalf("janitor: %+v", cfg.Janitor)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json",
		`{"logging":{"level":"INFO","console":true,"file":{"enabled":false,"path":""}},"storage":{"driver":"memory","path":""},"device":{"data_dir":"./data"}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: INFO
storage:
  driver: memory
  pathh: /oops
device:
  data_dir: ./data
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging":{"level":"INFO","console":false,"file":{"enabled":false,"path":""}},"storage":{"driver":"memory","path":""},"device":{"data_dir":"."}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: INFO
storage:
  driver: memory
device:
  data_dir: ./data
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"simple", "5s", 5 * time.Second, false},
		{"compound", "1h30m", 90 * time.Minute, false},
		{"empty means unset", "", 0, false},
		{"garbage", "soon", 0, true},
		{"negative", "-5s", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDurationField("field", tc.value)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q): expected error", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tc.value, err)
			}
			if got != tc.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("field", "", 2*time.Second)
	if err != nil || got != 2*time.Second {
		t.Fatalf("empty value: got %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("field", "750ms", 2*time.Second)
	if err != nil || got != 750*time.Millisecond {
		t.Fatalf("explicit value: got %v, %v", got, err)
	}
	if _, err := ParseDurationOrDefault("field", "nope", 2*time.Second); err == nil {
		t.Fatal("expected error for malformed value")
	}
}
