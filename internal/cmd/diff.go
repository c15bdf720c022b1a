package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/calder/dirtree/internal/scanner"
	"github.com/calder/dirtree/internal/tmpl"
	"github.com/calder/dirtree/internal/tree"
)

// NewDiffCommand creates the diff command
func NewDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <description> <root>",
		Short: "Compare a tree description against a directory hierarchy",
		Long: `Diff scans the target root and compares it against the description,
reporting missing entries, extra entries, kind mismatches and content drift.

The exit code is non-zero when differences are found, so diff can gate
scripts on a hierarchy matching its declaration.

Examples:
  dirtree diff layout.json ./out
  dirtree diff layout.yaml /srv/app --ignore '**/*.log'`,
		Args: cobra.ExactArgs(2),
		RunE: diffCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .dirtree/config.yaml)")
	cmd.Flags().StringArray("ignore", nil, "Glob pattern to exclude from the scan (repeatable)")
	cmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().Bool("case-insensitive", false, "Treat sibling names differing only by case as colliding")

	return cmd
}

// expandDeclaration resolves template placeholders in a declared tree so it
// compares against scanned hierarchies, which only ever hold concrete names.
func expandDeclaration(t *tree.Tree, overrides map[string]string) error {
	vars := t.MergedVariables(overrides)
	err := t.Walk(func(segments []string, n *tree.Node) error {
		nodePath := strings.Join(segments, "/")

		name, err := tmpl.Expand(nodePath, n.Name, vars)
		if err != nil {
			return err
		}
		n.Name = name

		if n.Content != nil {
			content, err := tmpl.Expand(nodePath, *n.Content, vars)
			if err != nil {
				return err
			}
			n.Content = &content
		}
		if n.Kind == tree.Symlink {
			target, err := tmpl.Expand(nodePath, n.Target, vars)
			if err != nil {
				return err
			}
			n.Target = target
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Expansion can introduce sibling collisions the declared names hid.
	return t.Revalidate()
}

func diffCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("case-insensitive") {
		caseIns, _ := cmd.Flags().GetBool("case-insensitive")
		cfg.MergeWithFlags(nil, &caseIns, nil, nil, nil, nil)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := tree.Options{CaseInsensitive: cfg.CaseInsensitive}
	want, err := loadDescription(args[0], opts)
	if err != nil {
		return err
	}

	varFlags, _ := cmd.Flags().GetStringArray("var")
	vars, err := parseVars(varFlags)
	if err != nil {
		return err
	}
	if err := expandDeclaration(want, vars); err != nil {
		return err
	}

	root, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", args[1], err)
	}

	ignore := cfg.Ignore
	if flagIgnore, _ := cmd.Flags().GetStringArray("ignore"); len(flagIgnore) > 0 {
		ignore = flagIgnore
	}

	got, err := scanner.Scan(cmd.Context(), osfs.New("/"), root, scanner.Options{
		Ignore:          ignore,
		CaseInsensitive: cfg.CaseInsensitive,
	})
	if err != nil {
		return err
	}

	diffs := tree.Diff(want, got)
	if len(diffs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s matches %s\n", root, args[0])
		return nil
	}

	colorize := isatty.IsTerminal(os.Stdout.Fd())
	for _, d := range diffs {
		fmt.Fprintln(cmd.OutOrStdout(), formatDifference(d, colorize))
	}
	return fmt.Errorf("%d difference(s) between %s and %s", len(diffs), args[0], root)
}

func formatDifference(d tree.Difference, colorize bool) string {
	var line string
	switch d.Kind {
	case tree.DiffMissing:
		line = fmt.Sprintf("- %s (%s missing)", d.Path, d.Want)
	case tree.DiffExtra:
		line = fmt.Sprintf("+ %s (unexpected %s)", d.Path, d.Got)
	case tree.DiffKindMismatch:
		line = fmt.Sprintf("! %s (want %s, got %s)", d.Path, d.Want, d.Got)
	case tree.DiffContent:
		if d.Want != "" || d.Got != "" {
			line = fmt.Sprintf("~ %s (target %q, got %q)", d.Path, d.Want, d.Got)
		} else {
			line = fmt.Sprintf("~ %s (content differs)", d.Path)
		}
	default:
		line = fmt.Sprintf("? %s", d.Path)
	}

	if !colorize {
		return line
	}
	switch d.Kind {
	case tree.DiffMissing:
		return color.New(color.FgRed).Sprint(line)
	case tree.DiffExtra:
		return color.New(color.FgGreen).Sprint(line)
	case tree.DiffKindMismatch:
		return color.New(color.FgYellow).Sprint(line)
	default:
		return color.New(color.FgCyan).Sprint(line)
	}
}
