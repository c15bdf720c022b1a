// Package cmd wires the dirtree CLI: build, scan, diff and history.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calder/dirtree/internal/codec"
	"github.com/calder/dirtree/internal/config"
	"github.com/calder/dirtree/internal/tree"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for dirtree
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirtree",
		Short: "Declarative directory tree builder and scanner",
		Long: `Dirtree converts between declarative tree descriptions and real
directory hierarchies, in both directions.

A description file (JSON, YAML, or a fenced block in Markdown) declares
directories, files with optional content, and symlinks. The build command
materializes it under a target root with a chosen conflict policy; the scan
command reads an existing hierarchy back into a description.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewBuildCommand())
	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewDiffCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}

// loadConfig resolves the effective configuration: an explicit --config path
// wins, otherwise .dirtree/config.yaml in the working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadDescription decodes a description file, dispatching on its extension.
func loadDescription(path string, opts tree.Options) (*tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read description %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec.DecodeJSON(data, opts)
	case ".yaml", ".yml":
		return codec.DecodeYAML(data, opts)
	case ".md", ".markdown":
		return codec.DecodeMarkdown(data, opts)
	default:
		return nil, fmt.Errorf("unsupported description format %q (want .json, .yaml, .yml or .md)", filepath.Ext(path))
	}
}

// parseVars turns repeated --var key=value flags into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
