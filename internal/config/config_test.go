package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "allowed_uids: [1000, 1001]\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	want.AllowedUIDs = []uint32{1000, 1001}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("got %+v\nwant %+v", cfg, want)
	}
	if cfg.JournalRetention() != 30*24*time.Hour {
		t.Errorf("unexpected retention %s", cfg.JournalRetention())
	}
	if cfg.RequestTimeout() != 0 {
		t.Errorf("expected no request timeout, got %s", cfg.RequestTimeout())
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
socket_path: /tmp/mb.sock
log_level: debug
journal_retention_days: 7
journal_prune_schedule: "*/15 * * * *"
locale: de
request_timeout_seconds: 120
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SocketPath != "/tmp/mb.sock" || cfg.LogLevel != "debug" || cfg.Locale != "de" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RequestTimeout() != 2*time.Minute {
		t.Errorf("unexpected timeout %s", cfg.RequestTimeout())
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"log level", "log_level: loud\n", ErrInvalidLogLevel},
		{"retention", "journal_retention_days: -1\n", ErrInvalidRetention},
		{"schedule", "journal_prune_schedule: \"every day\"\n", ErrInvalidPruneSchedule},
		{"timeout", "request_timeout_seconds: -5\n", ErrInvalidRequestTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Load(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "mbtool", "config.yaml")
	cfg := Default()
	cfg.AllowedUIDs = []uint32{2000}
	cfg.Locale = "de"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("got %+v\nwant %+v", got, cfg)
	}
}
