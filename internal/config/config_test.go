package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":2882" {
		t.Errorf("Addr = %q, want default :2882", cfg.Server.Addr)
	}
	if cfg.Prune.MaxDistance != 5 || cfg.Prune.BatchSize != 1000 {
		t.Errorf("prune defaults = %+v", cfg.Prune)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadOverridesAndTreePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openingtree.toml")
	doc := `
[server]
addr = ":9000"

[ingest]
max_ply = 30
min_rating = 2200

[log]
level = "debug"

[[trees]]
name = "masters"
path = "trees/masters.db"

[[trees]]
name = "lichess"
path = "/data/lichess.db"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Ingest.MaxPly != 30 || cfg.Ingest.MinRating != 2200 {
		t.Errorf("ingest = %+v, want overrides applied", cfg.Ingest)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Database.BusyTimeoutMS != 5000 {
		t.Errorf("BusyTimeoutMS = %d, want default 5000", cfg.Database.BusyTimeoutMS)
	}

	if len(cfg.Trees) != 2 {
		t.Fatalf("got %d trees, want 2", len(cfg.Trees))
	}
	want := filepath.Join(dir, "trees/masters.db")
	if cfg.Trees[0].Path != want {
		t.Errorf("relative tree path = %q, want %q", cfg.Trees[0].Path, want)
	}
	if cfg.Trees[1].Path != "/data/lichess.db" {
		t.Errorf("absolute tree path rewritten to %q", cfg.Trees[1].Path)
	}
}

func TestLoadRejectsUnnamedTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openingtree.toml")
	doc := `
[[trees]]
path = "trees/masters.db"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load with unnamed tree: got nil error")
	}
}
