package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected Load(\"\") to equal Default()")
	}
}

func TestLoad_OverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9100\"\nstats_interval: 1s\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Fatalf("expected overridden listen_addr, got %q", cfg.ListenAddr)
	}
	if cfg.StatsInterval != time.Second {
		t.Fatalf("expected overridden stats_interval, got %v", cfg.StatsInterval)
	}
	if cfg.SnapshotPath != Default().SnapshotPath {
		t.Fatalf("expected unset fields to keep their default, got %q", cfg.SnapshotPath)
	}
}

func TestLoad_MissingExplicitPathIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected an error for a missing explicitly-requested config file")
	}
}
