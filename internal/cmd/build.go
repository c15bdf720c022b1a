package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/calder/dirtree/internal/builder"
	"github.com/calder/dirtree/internal/config"
	"github.com/calder/dirtree/internal/filelock"
	"github.com/calder/dirtree/internal/history"
	"github.com/calder/dirtree/internal/logger"
	"github.com/calder/dirtree/internal/tree"
)

// NewBuildCommand creates the build command
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <description> <root>",
		Short: "Materialize a tree description under a target root",
		Long: `Build reads a tree description (JSON, YAML, or a dirtree fenced block in
Markdown) and creates the declared directories, files and symlinks under the
target root.

Existing entries are handled according to the conflict policy:

  fail       abort on the first conflict (default)
  skip       keep existing entries, do not descend into existing directories
  overwrite  replace files and symlinks, descend into directories
  merge      like overwrite, but leave identical entries untouched

Configuration is loaded from .dirtree/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  dirtree build layout.json ./out
  dirtree build layout.yaml /srv/app --policy merge
  dirtree build README.md ./scaffold --var name=myproject --var author=me
  dirtree build layout.json ./out --dry-run
  dirtree build layout.json ./out --workers 8`,
		Args: cobra.ExactArgs(2),
		RunE: buildCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .dirtree/config.yaml)")
	cmd.Flags().String("policy", "", "Conflict policy: fail, skip, overwrite, merge")
	cmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	cmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().Int("workers", 0, "Parallel workers for sibling subtrees (0 = sequential)")
	cmd.Flags().Bool("case-insensitive", false, "Treat sibling names differing only by case as colliding")
	cmd.Flags().Bool("verbose", false, "Show per-node progress")
	cmd.Flags().Bool("no-history", false, "Do not record this run in the history database")

	return cmd
}

func buildCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("policy") {
		policy, _ := cmd.Flags().GetString("policy")
		cfg.MergeWithFlags(&policy, nil, nil, nil, nil, nil)
	}
	if cmd.Flags().Changed("case-insensitive") {
		caseIns, _ := cmd.Flags().GetBool("case-insensitive")
		cfg.MergeWithFlags(nil, &caseIns, nil, nil, nil, nil)
	}
	if cmd.Flags().Changed("workers") {
		workers, _ := cmd.Flags().GetInt("workers")
		cfg.MergeWithFlags(nil, nil, nil, nil, &workers, nil)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level := "debug"
		cfg.MergeWithFlags(nil, nil, nil, nil, nil, &level)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := builder.ParsePolicy(cfg.DefaultPolicy)
	if err != nil {
		return err
	}

	varFlags, _ := cmd.Flags().GetStringArray("var")
	vars, err := parseVars(varFlags)
	if err != nil {
		return err
	}

	t, err := loadDescription(args[0], tree.Options{CaseInsensitive: cfg.CaseInsensitive})
	if err != nil {
		return err
	}

	root, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", args[1], err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// One build at a time per root. The lock file sits next to the root so
	// it never collides with declared entries.
	if !dryRun {
		if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of root: %w", err)
		}
		lock := filelock.NewFileLock(root + ".lock")
		acquired, err := lock.TryLock()
		if err != nil {
			return err
		}
		if !acquired {
			return fmt.Errorf("another build is running against %s", root)
		}
		defer lock.Unlock()
	}

	log := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	log.LogInfo(fmt.Sprintf("building %s under %s (policy %s)", args[0], root, policy))

	report, buildErr := builder.Build(cmd.Context(), osfs.New("/"), t, root, builder.Options{
		Policy:    policy,
		Variables: vars,
		DryRun:    dryRun,
		Workers:   cfg.Workers,
		Logger:    log,
	})

	colorize := isatty.IsTerminal(os.Stdout.Fd())
	report.Render(cmd.OutOrStdout(), colorize)

	noHistory, _ := cmd.Flags().GetBool("no-history")
	if cfg.History.Enabled && !noHistory && !dryRun {
		if err := recordHistory(cmd, cfg, report); err != nil {
			log.LogWarn(fmt.Sprintf("history not recorded: %v", err))
		}
	}

	if buildErr != nil {
		return buildErr
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d node(s) failed", report.Failed)
	}
	return nil
}

func recordHistory(cmd *cobra.Command, cfg *config.Config, report *builder.Report) error {
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordRun(cmd.Context(), report); err != nil {
		return err
	}
	if cfg.History.KeepRuns > 0 {
		if _, err := store.PruneRuns(cmd.Context(), cfg.History.KeepRuns); err != nil {
			return err
		}
	}
	return nil
}
