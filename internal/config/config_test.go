package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltinDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.DurationTicks != 600 {
		t.Fatalf("duration_ticks = %d, want 600", cfg.World.DurationTicks)
	}
	if cfg.MaxSum.Iterations != 50 {
		t.Fatalf("iterations = %d, want 50", cfg.MaxSum.Iterations)
	}
	if cfg.MaxSum.CostPolicy != "independent" {
		t.Fatalf("cost_policy = %q, want independent", cfg.MaxSum.CostPolicy)
	}
	if err := cfg.WithDefaults().Validate(); err != nil {
		t.Fatalf("built-in defaults do not validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	raw := `[world]
seed = 7

[maxsum]
iterations = 25
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.World.Seed != 7 {
		t.Fatalf("seed = %d, want 7", cfg.World.Seed)
	}
	if cfg.MaxSum.Iterations != 25 {
		t.Fatalf("iterations = %d, want 25", cfg.MaxSum.Iterations)
	}
	if cfg.Path != path {
		t.Fatalf("Path = %q, want %q", cfg.Path, path)
	}

	cfg = cfg.WithDefaults()
	if cfg.Planes.Count != 8 {
		t.Fatalf("planes count not defaulted: %d", cfg.Planes.Count)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("Load accepted a missing file")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	base = base.WithDefaults()

	cases := map[string]func(*Config){
		"zero planes":     func(c *Config) { c.Planes.Count = -1 },
		"zero duration":   func(c *Config) { c.World.DurationTicks = -5 },
		"damping one":     func(c *Config) { c.MaxSum.Damping = 1 },
		"damping under":   func(c *Config) { c.MaxSum.Damping = -0.1 },
		"unknown policy":  func(c *Config) { c.MaxSum.CostPolicy = "greedy" },
		"bad workload k":  func(c *Config) { c.MaxSum.CostPolicy = "workload"; c.MaxSum.WorkloadK = -1 },
		"zero comm range": func(c *Config) { c.Planes.CommRange = -10 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate accepted %s", name)
			}
		})
	}
}

func TestApplyOverride(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := cfg.ApplyOverride("maxsum.iterations", "120"); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if cfg.MaxSum.Iterations != 120 {
		t.Fatalf("iterations = %d, want 120", cfg.MaxSum.Iterations)
	}

	if err := cfg.ApplyOverride("world.seed", "99"); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if cfg.World.Seed != 99 {
		t.Fatalf("seed = %d, want 99", cfg.World.Seed)
	}

	if err := cfg.ApplyOverride("maxsum.cost_policy", "workload"); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if cfg.MaxSum.CostPolicy != "workload" {
		t.Fatalf("cost_policy = %q, want workload", cfg.MaxSum.CostPolicy)
	}

	if err := cfg.ApplyOverride("nope.unknown", "1"); err == nil {
		t.Fatalf("ApplyOverride accepted an unknown key")
	}
	if err := cfg.ApplyOverride("maxsum.iterations", "abc"); err == nil {
		t.Fatalf("ApplyOverride accepted a non-numeric value")
	}
}
