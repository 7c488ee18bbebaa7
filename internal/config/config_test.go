package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Backend != "native" {
		t.Errorf("expected backend native, got %s", cfg.Engine.Backend)
	}
	if cfg.History.Every <= 0 {
		t.Error("sampling interval should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdctl.yaml")
	data := "engine:\n  threads: 4\nhistory:\n  every: 5\n  track: [compute/thermo_temp]\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Threads != 4 {
		t.Errorf("expected 4 threads, got %d", cfg.Engine.Threads)
	}
	if cfg.History.Every != 5 {
		t.Errorf("expected every 5, got %d", cfg.History.Every)
	}
	if cfg.Engine.Backend != "native" {
		t.Errorf("unset backend should keep default, got %q", cfg.Engine.Backend)
	}
	if len(cfg.History.Track) != 1 || cfg.History.Track[0] != "compute/thermo_temp" {
		t.Errorf("unexpected track list %v", cfg.History.Track)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdctl.yaml")
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", got.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Engine.Backend = "gpu" }, "unknown engine backend"},
		{"wasm without binary", func(c *Config) { c.Engine.Backend = "wasm" }, "wasm_binary"},
		{"no threads", func(c *Config) { c.Engine.Threads = 0 }, "threads"},
		{"bad interval", func(c *Config) { c.History.Every = 0 }, "history.every"},
		{"bad fps", func(c *Config) { c.Watch.FPS = 0 }, "fps"},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func TestGetPreset(t *testing.T) {
	p := GetPreset("melt")
	if p == nil {
		t.Fatal("expected preset, got nil")
	}
	if !strings.Contains(p.Script, "lattice fcc 0.8442") {
		t.Error("melt preset should build the fcc lattice")
	}
	if p.Steps <= 0 {
		t.Error("preset steps should be positive")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if p := GetPreset("nonexistent"); p != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	if len(names) != len(Presets) {
		t.Errorf("expected %d presets, got %d", len(Presets), len(names))
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("presets not sorted: %v", names)
	}
}
