package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultPolicy != "fail" {
		t.Errorf("DefaultPolicy = %q, want fail", cfg.DefaultPolicy)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if !cfg.History.Enabled {
		t.Error("history should default to enabled")
	}
	if cfg.History.KeepRuns != 100 {
		t.Errorf("KeepRuns = %d, want 100", cfg.History.KeepRuns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DefaultPolicy != "fail" {
		t.Errorf("DefaultPolicy = %q, want default", cfg.DefaultPolicy)
	}
}

func TestLoadConfigMergesWithDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
default_policy: merge
case_insensitive: true
ignore:
  - node_modules
  - "*.log"
max_content_bytes: 4096
workers: 8
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DefaultPolicy != "merge" {
		t.Errorf("DefaultPolicy = %q, want merge", cfg.DefaultPolicy)
	}
	if !cfg.CaseInsensitive {
		t.Error("CaseInsensitive not applied")
	}
	if len(cfg.Ignore) != 2 || cfg.Ignore[0] != "node_modules" {
		t.Errorf("Ignore = %v", cfg.Ignore)
	}
	if cfg.MaxContentBytes != 4096 {
		t.Errorf("MaxContentBytes = %d", cfg.MaxContentBytes)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	// Unset fields keep their defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
	}
	if !cfg.History.Enabled {
		t.Error("history default lost during merge")
	}
}

func TestLoadConfigHistorySection(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
history:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.History.Enabled {
		t.Error("explicit history.enabled=false was ignored")
	}
	// Untouched keys in the section keep defaults.
	if cfg.History.DBPath != ".dirtree/history.db" {
		t.Errorf("DBPath = %q", cfg.History.DBPath)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "default_policy: [not, a, string")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".dirtree"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "default_policy: skip\n"
	if err := os.WriteFile(filepath.Join(dir, ".dirtree", "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromDir(dir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir: %v", err)
	}
	if cfg.DefaultPolicy != "skip" {
		t.Errorf("DefaultPolicy = %q, want skip", cfg.DefaultPolicy)
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()

	policy := "overwrite"
	workers := 4
	caseIns := true
	cfg.MergeWithFlags(&policy, &caseIns, nil, nil, &workers, nil)

	if cfg.DefaultPolicy != "overwrite" {
		t.Errorf("DefaultPolicy = %q", cfg.DefaultPolicy)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if !cfg.CaseInsensitive {
		t.Error("CaseInsensitive flag not applied")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("nil flag overwrote LogLevel: %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad policy", func(c *Config) { c.DefaultPolicy = "clobber" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"negative content cap", func(c *Config) { c.MaxContentBytes = -1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"history without db path", func(c *Config) { c.History.DBPath = "" }, true},
		{"negative keep runs", func(c *Config) { c.History.KeepRuns = -1 }, true},
		{"history disabled skips checks", func(c *Config) {
			c.History.Enabled = false
			c.History.DBPath = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
