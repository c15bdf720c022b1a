// Package config loads per-project settings from .dirtree/config.yaml and
// merges them with CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HistoryConfig controls run history persistence.
type HistoryConfig struct {
	// Enabled records every build run in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepRuns is how many runs to retain; older runs are pruned after each
	// recording (0 = keep all)
	KeepRuns int `yaml:"keep_runs"`
}

// Config represents dirtree configuration options
type Config struct {
	// DefaultPolicy is the conflict policy used when --policy is not given
	// (fail, skip, overwrite, merge)
	DefaultPolicy string `yaml:"default_policy"`

	// CaseInsensitive treats sibling names that differ only by case as
	// colliding
	CaseInsensitive bool `yaml:"case_insensitive"`

	// Ignore holds glob patterns excluded from scans
	Ignore []string `yaml:"ignore"`

	// FollowSymlinks resolves in-root symlinks during scans
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// MaxContentBytes caps embedded file content per scanned node
	// (0 = unlimited)
	MaxContentBytes int64 `yaml:"max_content_bytes"`

	// Workers is the build parallelism (0 or 1 = sequential)
	Workers int `yaml:"workers"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		DefaultPolicy:   "fail",
		CaseInsensitive: false,
		Ignore:          nil,
		FollowSymlinks:  false,
		MaxContentBytes: 0,
		Workers:         0,
		LogLevel:        "info",
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   ".dirtree/history.db",
			KeepRuns: 100,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if fileCfg.DefaultPolicy != "" {
		cfg.DefaultPolicy = fileCfg.DefaultPolicy
	}
	if fileCfg.Ignore != nil {
		cfg.Ignore = fileCfg.Ignore
	}
	if fileCfg.MaxContentBytes != 0 {
		cfg.MaxContentBytes = fileCfg.MaxContentBytes
	}
	if fileCfg.Workers != 0 {
		cfg.Workers = fileCfg.Workers
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.CaseInsensitive {
		cfg.CaseInsensitive = true
	}
	if fileCfg.FollowSymlinks {
		cfg.FollowSymlinks = true
	}

	// Booleans inside the history section need presence detection: a bare
	// zero-value unmarshal cannot distinguish "enabled: false" from the
	// section being absent.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["history"]; exists && section != nil {
			sectionMap, _ := section.(map[string]interface{})
			if _, exists := sectionMap["enabled"]; exists {
				cfg.History.Enabled = fileCfg.History.Enabled
			}
			if _, exists := sectionMap["db_path"]; exists {
				cfg.History.DBPath = fileCfg.History.DBPath
			}
			if _, exists := sectionMap["keep_runs"]; exists {
				cfg.History.KeepRuns = fileCfg.History.KeepRuns
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .dirtree/config.yaml in the
// specified directory. A missing directory or file yields defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".dirtree", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(policy *string, caseInsensitive *bool, followSymlinks *bool, maxContentBytes *int64, workers *int, logLevel *string) {
	if policy != nil {
		c.DefaultPolicy = *policy
	}
	if caseInsensitive != nil {
		c.CaseInsensitive = *caseInsensitive
	}
	if followSymlinks != nil {
		c.FollowSymlinks = *followSymlinks
	}
	if maxContentBytes != nil {
		c.MaxContentBytes = *maxContentBytes
	}
	if workers != nil {
		c.Workers = *workers
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}

// Validate validates the configuration values.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	switch c.DefaultPolicy {
	case "fail", "skip", "overwrite", "merge":
	default:
		return fmt.Errorf("invalid default_policy %q, must be one of: fail, skip, overwrite, merge", c.DefaultPolicy)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.MaxContentBytes < 0 {
		return fmt.Errorf("max_content_bytes must be >= 0, got %d", c.MaxContentBytes)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepRuns < 0 {
			return fmt.Errorf("history.keep_runs must be >= 0, got %d", c.History.KeepRuns)
		}
	}

	return nil
}
