package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewLoaderAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	_, cfg, err := NewLoader(nil, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ports.LRCP != 4321 {
		t.Fatalf("got lrcp port %d, want default 4321", cfg.Ports.LRCP)
	}
	if cfg.Retransmit != 3*time.Second {
		t.Fatalf("got retransmit %v, want default 3s", cfg.Retransmit)
	}
}

func TestNewLoaderReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protopuzzles.yaml")
	contents := "ports:\n  lrcp: 9999\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, cfg, err := NewLoader(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ports.LRCP != 9999 {
		t.Fatalf("got lrcp port %d, want 9999", cfg.Ports.LRCP)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("got log level %q, want debug", cfg.LogLevel)
	}
}

func TestNewLoaderRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protopuzzles.yaml")
	if err := os.WriteFile(path, []byte("log_level: chatty\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := NewLoader(nil, path); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestNewLoaderRejectsOutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protopuzzles.yaml")
	if err := os.WriteFile(path, []byte("ports:\n  lrcp: 70000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := NewLoader(nil, path); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestLoaderTimersSeededFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protopuzzles.yaml")
	contents := "retransmit: 1s\nidle_timeout: 5s\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	l, _, err := NewLoader(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := l.Timers().Retransmit(); got != time.Second {
		t.Fatalf("got retransmit %v, want 1s", got)
	}
	if got := l.Timers().Idle(); got != 5*time.Second {
		t.Fatalf("got idle %v, want 5s", got)
	}
}
