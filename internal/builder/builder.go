// Package builder materializes a validated tree model onto a filesystem,
// applying the per-run conflict policy and recording a per-node outcome
// report.
//
// The raw file primitives are a capability, not an implementation detail:
// the builder writes through a billy.Filesystem, so the CLI hands it the
// host filesystem while tests hand it an in-memory one.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/calder/dirtree/internal/safepath"
	"github.com/calder/dirtree/internal/tmpl"
	"github.com/calder/dirtree/internal/tree"
)

// Logger receives build progress messages. The console logger satisfies it;
// a nil-safe no-op is used when none is supplied.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

type noopLogger struct{}

func (noopLogger) LogDebug(string) {}
func (noopLogger) LogInfo(string)  {}
func (noopLogger) LogWarn(string)  {}
func (noopLogger) LogError(string) {}

// chmodFS is the optional mode-setting capability. The host filesystem has
// it; the in-memory test filesystem does not, and mode metadata is then
// ignored rather than failing the node.
type chmodFS interface {
	Chmod(name string, mode os.FileMode) error
}

// Options configures one build run.
type Options struct {
	// Policy is the conflict-handling mode. Empty defaults to fail, the
	// safest choice: mutation of existing entries is explicit opt-in.
	Policy Policy
	// Variables override the tree's own variable mapping.
	Variables map[string]string
	// DryRun walks, expands and conflict-checks without touching the
	// filesystem. Outcomes reflect what a real run would do.
	DryRun bool
	// Workers > 1 processes sibling subtrees in parallel. Directories are
	// still created before their children; report order is then
	// unspecified. Zero or one keeps the sequential default.
	Workers int
	// DirMode and FileMode are the creation modes; zero values default to
	// 0755 and 0644. A node's "mode" metadata key (octal string)
	// overrides them per entry.
	DirMode  os.FileMode
	FileMode os.FileMode
	Logger   Logger
}

// Build materializes tree t under root on fsys and returns the per-node
// report. root must be absolute; it is created if missing.
//
// Fatal errors (StructureError, PathSafetyError, TemplateError, and
// ConflictError under the fail policy) abort the run; the partial report is
// returned alongside the error so callers can see what was written before
// the abort. Per-node I/O failures and non-fail-policy kind mismatches are
// recorded as failed outcomes and do not stop siblings.
func Build(ctx context.Context, fsys billy.Filesystem, t *tree.Tree, root string, opts Options) (*Report, error) {
	if opts.Policy == "" {
		opts.Policy = PolicyFail
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Root:      root,
		Policy:    opts.Policy,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}

	// Names and shape are re-validated before any write; a tree mutated
	// after construction fails here instead of half-building.
	if err := t.Revalidate(); err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}

	if !opts.DryRun {
		if err := fsys.MkdirAll(root, opts.DirMode); err != nil {
			report.FinishedAt = time.Now()
			return report, &IOError{Op: "mkdir", Path: root, Err: err}
		}
	}

	b := &builder{
		fs:     fsys,
		root:   root,
		opts:   opts,
		vars:   t.MergedVariables(opts.Variables),
		report: report,
		log:    opts.Logger,
	}

	err := b.children(ctx, nil, "", t.Root)
	report.FinishedAt = time.Now()
	return report, err
}

type builder struct {
	fs     billy.Filesystem
	root   string
	opts   Options
	vars   map[string]string
	report *Report
	log    Logger
}

// children processes the child nodes of a directory whose own path has
// already been created and validated. With Workers > 1 siblings run
// concurrently; the first fatal error cancels the rest.
func (b *builder) children(ctx context.Context, segments []string, relPath string, n *tree.Node) error {
	if b.opts.Workers <= 1 || len(n.Children) < 2 {
		for _, child := range n.Children {
			if err := b.node(ctx, segments, relPath, child); err != nil {
				return err
			}
		}
		return nil
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, b.opts.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, child := range n.Children {
		wg.Add(1)
		sem <- struct{}{}
		go func(child *tree.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			if workCtx.Err() != nil {
				return
			}
			if err := b.node(workCtx, segments, relPath, child); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
			}
		}(child)
	}
	wg.Wait()
	return firstErr
}

// node handles one node: resolve, expand, conflict-check, write, record.
// A returned error is fatal to the run.
func (b *builder) node(ctx context.Context, parentSegs []string, parentPath string, n *tree.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	declPath := joinRel(parentPath, n.Name)
	name, err := tmpl.Expand(declPath, n.Name, b.vars)
	if err != nil {
		return err
	}

	segments := append(append([]string{}, parentSegs...), name)
	relPath := joinRel(parentPath, name)

	// The checks run per node, after expansion: a template value can smuggle
	// separators or traversal sequences the declared tree never had. A name
	// that escapes the root is a safety violation; one that merely nests
	// ("a/b") is a malformed name and must not materialize extra levels.
	if nameErr := tree.ValidName(name); nameErr != nil {
		var verr error
		if _, resolveErr := safepath.Resolve(b.root, segments...); resolveErr != nil {
			verr = resolveErr
		} else {
			verr = &tree.StructureError{Path: declPath, Reason: fmt.Sprintf("expanded name %q: %v", name, nameErr)}
		}
		b.report.add(NodeResult{Path: relPath, Kind: n.Kind, Outcome: OutcomeFailed, Err: verr.Error()})
		return verr
	}

	abs, err := safepath.Resolve(b.root, segments...)
	if err != nil {
		b.report.add(NodeResult{Path: relPath, Kind: n.Kind, Outcome: OutcomeFailed, Err: err.Error()})
		return err
	}

	info, statErr := b.fs.Lstat(abs)
	switch {
	case statErr == nil:
		return b.existing(ctx, segments, relPath, declPath, abs, n, info)
	case os.IsNotExist(statErr):
		return b.create(ctx, segments, relPath, declPath, abs, n)
	default:
		ioErr := &IOError{Op: "lstat", Path: abs, Err: statErr}
		b.fail(relPath, n.Kind, ioErr)
		return nil
	}
}

// create materializes a node at a path that does not exist yet.
func (b *builder) create(ctx context.Context, segments []string, relPath, declPath, abs string, n *tree.Node) error {
	switch n.Kind {
	case tree.Directory:
		if !b.opts.DryRun {
			if err := b.fs.MkdirAll(abs, b.opts.DirMode); err != nil {
				b.fail(relPath, n.Kind, &IOError{Op: "mkdir", Path: abs, Err: err})
				return nil
			}
		}
		b.applyMode(abs, n)
		b.record(relPath, n.Kind, OutcomeCreated)
		return b.children(ctx, segments, relPath, n)

	case tree.File:
		content, err := b.fileContent(declPath, n)
		if err != nil {
			return err
		}
		if !b.opts.DryRun {
			if err := util.WriteFile(b.fs, abs, content, b.opts.FileMode); err != nil {
				b.fail(relPath, n.Kind, &IOError{Op: "write", Path: abs, Err: err})
				return nil
			}
		}
		b.applyMode(abs, n)
		b.record(relPath, n.Kind, OutcomeCreated)
		return nil

	case tree.Symlink:
		target, err := tmpl.Expand(declPath, n.Target, b.vars)
		if err != nil {
			return err
		}
		if !b.opts.DryRun {
			if err := b.fs.Symlink(target, abs); err != nil {
				b.fail(relPath, n.Kind, &IOError{Op: "symlink", Path: abs, Err: err})
				return nil
			}
		}
		b.record(relPath, n.Kind, OutcomeCreated)
		return nil
	}
	return &tree.StructureError{Path: declPath, Reason: fmt.Sprintf("unknown kind %q", n.Kind)}
}

// existing applies the conflict decision table to a node whose target path
// is already occupied.
func (b *builder) existing(ctx context.Context, segments []string, relPath, declPath, abs string, n *tree.Node, info os.FileInfo) error {
	act, conflict := decide(b.opts.Policy, n.Kind, kindOf(info), relPath)

	switch act {
	case actAbort:
		b.fail(relPath, n.Kind, conflict)
		return conflict

	case actFailNode:
		// Kind mismatch under a permissive policy: fatal for this node
		// only, and the existing entry is left untouched.
		b.fail(relPath, n.Kind, conflict)
		return nil

	case actSkip:
		b.record(relPath, n.Kind, OutcomeSkipped)
		// Declared descendants are recorded as skipped too, so the report
		// covers every node, but the existing directory itself is never
		// read or written.
		return b.skipChildren(relPath, declPath, n)

	case actReuseDir:
		b.applyMode(abs, n)
		b.record(relPath, n.Kind, OutcomeOverwritten)
		return b.children(ctx, segments, relPath, n)

	case actRewriteFile:
		content, err := b.fileContent(declPath, n)
		if err != nil {
			return err
		}
		return b.rewriteFile(relPath, abs, n, content)

	case actMergeFile:
		content, err := b.fileContent(declPath, n)
		if err != nil {
			return err
		}
		existing, readErr := util.ReadFile(b.fs, abs)
		if readErr != nil {
			b.fail(relPath, n.Kind, &IOError{Op: "read", Path: abs, Err: readErr})
			return nil
		}
		if bytes.Equal(existing, content) {
			b.record(relPath, n.Kind, OutcomeUnchanged)
			return nil
		}
		return b.rewriteFile(relPath, abs, n, content)

	case actRelink:
		target, err := tmpl.Expand(declPath, n.Target, b.vars)
		if err != nil {
			return err
		}
		return b.relink(relPath, abs, n, target)

	case actMergeLink:
		target, err := tmpl.Expand(declPath, n.Target, b.vars)
		if err != nil {
			return err
		}
		if current, readErr := b.fs.Readlink(abs); readErr == nil && current == target {
			b.record(relPath, n.Kind, OutcomeUnchanged)
			return nil
		}
		return b.relink(relPath, abs, n, target)
	}
	return nil
}

// skipChildren records the declared descendants of a skipped directory as
// skipped without touching the filesystem. Names are still expanded so the
// report shows the paths a run would have used; a template failure stays
// fatal.
func (b *builder) skipChildren(parentPath, parentDecl string, n *tree.Node) error {
	for _, child := range n.Children {
		declPath := joinRel(parentDecl, child.Name)
		name, err := tmpl.Expand(declPath, child.Name, b.vars)
		if err != nil {
			return err
		}
		relPath := joinRel(parentPath, name)
		b.record(relPath, child.Kind, OutcomeSkipped)
		if err := b.skipChildren(relPath, declPath, child); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) rewriteFile(relPath, abs string, n *tree.Node, content []byte) error {
	if !b.opts.DryRun {
		if err := util.WriteFile(b.fs, abs, content, b.opts.FileMode); err != nil {
			b.fail(relPath, n.Kind, &IOError{Op: "write", Path: abs, Err: err})
			return nil
		}
	}
	b.applyMode(abs, n)
	b.record(relPath, n.Kind, OutcomeOverwritten)
	return nil
}

func (b *builder) relink(relPath, abs string, n *tree.Node, target string) error {
	if !b.opts.DryRun {
		if err := b.fs.Remove(abs); err != nil {
			b.fail(relPath, n.Kind, &IOError{Op: "remove", Path: abs, Err: err})
			return nil
		}
		if err := b.fs.Symlink(target, abs); err != nil {
			b.fail(relPath, n.Kind, &IOError{Op: "symlink", Path: abs, Err: err})
			return nil
		}
	}
	b.record(relPath, n.Kind, OutcomeOverwritten)
	return nil
}

// fileContent expands a file node's content. Absent content means an empty
// file.
func (b *builder) fileContent(declPath string, n *tree.Node) ([]byte, error) {
	if n.Content == nil {
		return nil, nil
	}
	expanded, err := tmpl.Expand(declPath, *n.Content, b.vars)
	if err != nil {
		return nil, err
	}
	return []byte(expanded), nil
}

// applyMode honors a node's "mode" metadata key when the filesystem
// supports chmod. Metadata is otherwise opaque to the builder.
func (b *builder) applyMode(abs string, n *tree.Node) {
	raw, ok := n.Metadata["mode"].(string)
	if !ok || b.opts.DryRun {
		return
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(raw, "0o"), 8, 32)
	if err != nil {
		b.log.LogWarn(fmt.Sprintf("ignoring invalid mode %q at %s", raw, abs))
		return
	}
	if ch, ok := b.fs.(chmodFS); ok {
		if err := ch.Chmod(abs, os.FileMode(parsed)); err != nil {
			b.log.LogWarn(fmt.Sprintf("chmod %s: %v", abs, err))
		}
	}
}

func (b *builder) record(relPath string, kind tree.Kind, outcome Outcome) {
	b.log.LogDebug(fmt.Sprintf("%s %s (%s)", outcome, relPath, kind))
	b.report.add(NodeResult{Path: relPath, Kind: kind, Outcome: outcome})
}

func (b *builder) fail(relPath string, kind tree.Kind, err error) {
	b.log.LogError(fmt.Sprintf("failed %s: %v", relPath, err))
	b.report.add(NodeResult{Path: relPath, Kind: kind, Outcome: OutcomeFailed, Err: err.Error()})
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
