package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/calder/dirtree/internal/codec"
	"github.com/calder/dirtree/internal/filelock"
	"github.com/calder/dirtree/internal/logger"
	"github.com/calder/dirtree/internal/scanner"
	"github.com/calder/dirtree/internal/tree"
)

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Read a directory hierarchy into a tree description",
		Long: `Scan walks an existing directory hierarchy and emits the equivalent tree
description. Symlinks are recorded literally unless --follow-symlinks is
given; links leaving the root are always recorded literally, and link cycles
terminate.

Examples:
  dirtree scan ./out
  dirtree scan ./out --format yaml
  dirtree scan ./src --ignore 'node_modules' --ignore '**/*.log'
  dirtree scan ./src -o layout.json
  dirtree scan ./data --max-content-bytes 4096 --mime`,
		Args: cobra.ExactArgs(1),
		RunE: scanCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .dirtree/config.yaml)")
	cmd.Flags().StringArray("ignore", nil, "Glob pattern to exclude, relative to the root (repeatable)")
	cmd.Flags().Bool("follow-symlinks", false, "Resolve in-root symlinks instead of recording them")
	cmd.Flags().Int64("max-content-bytes", 0, "Cap embedded file content per node (0 = unlimited)")
	cmd.Flags().Bool("mime", false, "Record detected mime types on binary files")
	cmd.Flags().Bool("case-insensitive", false, "Treat sibling names differing only by case as colliding")
	cmd.Flags().String("format", "json", "Output format: json or yaml")
	cmd.Flags().StringP("output", "o", "", "Write the description to a file instead of stdout")
	cmd.Flags().Bool("verbose", false, "Show scan progress")

	return cmd
}

func scanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("follow-symlinks") {
		follow, _ := cmd.Flags().GetBool("follow-symlinks")
		cfg.MergeWithFlags(nil, nil, &follow, nil, nil, nil)
	}
	if cmd.Flags().Changed("max-content-bytes") {
		maxBytes, _ := cmd.Flags().GetInt64("max-content-bytes")
		cfg.MergeWithFlags(nil, nil, nil, &maxBytes, nil, nil)
	}
	if cmd.Flags().Changed("case-insensitive") {
		caseIns, _ := cmd.Flags().GetBool("case-insensitive")
		cfg.MergeWithFlags(nil, &caseIns, nil, nil, nil, nil)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level := "debug"
		cfg.MergeWithFlags(nil, nil, nil, nil, nil, &level)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("invalid format %q, want json or yaml", format)
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", args[0], err)
	}

	ignore := cfg.Ignore
	if flagIgnore, _ := cmd.Flags().GetStringArray("ignore"); len(flagIgnore) > 0 {
		ignore = flagIgnore
	}
	detectMime, _ := cmd.Flags().GetBool("mime")

	log := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	log.LogDebug(fmt.Sprintf("scanning %s", root))

	t, err := scanner.Scan(cmd.Context(), osfs.New("/"), root, scanner.Options{
		Ignore:          ignore,
		FollowSymlinks:  cfg.FollowSymlinks,
		MaxContentBytes: cfg.MaxContentBytes,
		DetectMime:      detectMime,
		CaseInsensitive: cfg.CaseInsensitive,
	})
	if err != nil {
		return err
	}

	var data []byte
	if format == "yaml" {
		data, err = codec.EncodeYAML(t)
	} else {
		data, err = codec.EncodeJSON(t)
	}
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	// Atomic so a concurrent reader of the description never sees a
	// half-written file.
	if err := filelock.AtomicWrite(output, data, 0o644); err != nil {
		return err
	}
	log.LogInfo(fmt.Sprintf("wrote %d nodes to %s", countNodes(t), output))
	return nil
}

func countNodes(t *tree.Tree) int {
	count := 0
	t.Walk(func(_ []string, _ *tree.Node) error {
		count++
		return nil
	})
	return count
}
